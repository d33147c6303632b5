package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/seantiz/crucible/internal/api"
	"github.com/seantiz/crucible/internal/cache"
	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/dataset"
	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/pipeline"
	"github.com/seantiz/crucible/internal/service"
	"github.com/seantiz/crucible/internal/sink"
	"github.com/seantiz/crucible/internal/store"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("crucible: starting",
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"models_db", cfg.ModelsDB,
		"workers", cfg.Workers,
	)

	models, err := store.NewSQLiteModelStore(cfg.ModelsDB)
	if err != nil {
		log.Fatalf("failed to open model store: %v", err)
	}
	defer models.Close()

	datasets, err := dataset.NewDirStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open dataset directory: %v", err)
	}
	out, err := sink.NewDirSink(cfg.OutputDir)
	if err != nil {
		log.Fatalf("failed to open output directory: %v", err)
	}

	var opts []engine.Option
	if cfg.NATSURL != "" {
		notifier, err := engine.NewNATSNotifier(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect notifier: %v", err)
		}
		defer notifier.Close()
		opts = append(opts, engine.WithNotifier(notifier))
		logger.Info("completion notifier enabled", "subject", engine.CompletionSubject)
	}

	jobs := store.NewJobRegistry(cfg.MaxRetainedJobs)
	eng := engine.NewEngine(jobs, engine.NewPool(cfg.Workers, logger), logger, opts...)

	retention, err := engine.NewRetention(jobs, eng.Broker(), cfg.JobTTL, cfg.SweepSchedule, logger)
	if err != nil {
		log.Fatalf("failed to schedule job retention: %v", err)
	}
	retention.Start()

	env := pipeline.Env{
		Datasets:   datasets,
		Models:     models,
		Cache:      cache.New(),
		Algorithms: estimator.DefaultRegistry(),
		Logger:     logger,
	}
	svc := service.New(eng, jobs, env, out, service.WithChunkSize(cfg.ChunkSize))

	srv := api.NewServer(cfg.ListenAddr, svc, logger)
	runErr := srv.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	retention.Stop(ctx)
	if err := eng.Shutdown(ctx); err != nil {
		logger.Error("engine shutdown", "error", err)
	}

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
