// Package service is the caller-facing API of the job engine. It validates
// requests synchronously, rejecting bad specs and unknown ids before any work
// is scheduled, and hands accepted work to the engine.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/evaluation"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/pipeline"
	"github.com/seantiz/crucible/internal/sink"
	"github.com/seantiz/crucible/internal/store"
)

// DefaultCriterion ranks comparisons when the caller names none.
const DefaultCriterion = evaluation.Accuracy

// Service wires the pipelines to the engine.
type Service struct {
	engine *engine.Engine
	jobs   store.JobStore
	env    pipeline.Env

	trainer    *pipeline.Trainer
	batch      *pipeline.BatchPredictor
	validator  *pipeline.Validator
	comparator *pipeline.Comparator
	realtime   *pipeline.Predictor

	chunkSize int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChunkSize sets the batch prediction chunk size used when a spec leaves
// it unset.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New creates a service. Comparisons evaluate as many candidates at once as
// the engine has workers.
func New(eng *engine.Engine, jobs store.JobStore, env pipeline.Env, out sink.Sink, opts ...Option) *Service {
	s := &Service{
		engine:     eng,
		jobs:       jobs,
		env:        env,
		trainer:    pipeline.NewTrainer(env),
		batch:      pipeline.NewBatchPredictor(env, out),
		validator:  pipeline.NewValidator(env),
		comparator: pipeline.NewComparator(env, eng.Workers()),
		realtime:   pipeline.NewPredictor(env),
		chunkSize:  model.DefaultChunkSize,
		logger:     env.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitTraining validates spec and schedules a training job.
func (s *Service) SubmitTraining(ctx context.Context, spec model.TrainingSpec) (*model.Job, error) {
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := s.env.Algorithms.Build(spec.Algorithm, spec.Hyperparameters); err != nil {
		return nil, err
	}
	if err := s.requireDataset(ctx, spec.DatasetID); err != nil {
		return nil, err
	}

	refs := model.Refs{DatasetID: spec.DatasetID, Algorithm: spec.Algorithm}
	return s.engine.Submit(ctx, model.KindTraining, refs, func(ctx context.Context, r engine.Reporter) (*model.Result, error) {
		return s.trainer.Run(ctx, spec, r)
	})
}

// SubmitBatchPrediction validates spec and schedules a batch prediction job.
func (s *Service) SubmitBatchPrediction(ctx context.Context, spec model.PredictionSpec) (*model.Job, error) {
	spec.ApplyDefaults(s.chunkSize)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireModel(ctx, spec.ModelID); err != nil {
		return nil, err
	}
	if err := s.requireDataset(ctx, spec.DatasetID); err != nil {
		return nil, err
	}

	refs := model.Refs{ModelID: spec.ModelID, DatasetID: spec.DatasetID}
	return s.engine.Submit(ctx, model.KindBatchPrediction, refs, func(ctx context.Context, r engine.Reporter) (*model.Result, error) {
		return s.batch.Run(ctx, spec, r)
	})
}

// SubmitValidation validates spec and schedules a validation job.
func (s *Service) SubmitValidation(ctx context.Context, spec model.ValidationSpec) (*model.Job, error) {
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	for _, m := range spec.Metrics {
		if !evaluation.Known(m) {
			return nil, model.Validationf("unsupported metric %q", m)
		}
	}
	if err := s.requireModel(ctx, spec.ModelID); err != nil {
		return nil, err
	}
	if err := s.requireDataset(ctx, spec.DatasetID); err != nil {
		return nil, err
	}

	refs := model.Refs{ModelID: spec.ModelID, DatasetID: spec.DatasetID}
	return s.engine.Submit(ctx, model.KindValidation, refs, func(ctx context.Context, r engine.Reporter) (*model.Result, error) {
		return s.validator.Run(ctx, spec, r)
	})
}

// GetStatus returns a snapshot of one job.
func (s *Service) GetStatus(ctx context.Context, id string) (*model.Job, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs returns job snapshots, newest first, and the total matching count.
func (s *Service) ListJobs(ctx context.Context, f store.ListFilter) ([]*model.Job, int, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, 0, model.Validationf("unknown job kind %q", f.Kind)
	}
	return s.jobs.List(ctx, f)
}

// Cancel marks a queued or running job cancelled. It reports false when the
// job already finished.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	return s.engine.Cancel(ctx, id)
}

// Watch subscribes to a job's events. The returned snapshot is taken after
// subscribing, so no transition between the two is missed. The channel is
// closed once the job is terminal.
func (s *Service) Watch(ctx context.Context, id string) (*model.Job, <-chan model.JobEvent, func(), error) {
	ch, unsub := s.engine.Broker().Subscribe(id)
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		unsub()
		s.engine.Broker().Forget(id)
		return nil, nil, nil, err
	}
	return job, ch, unsub, nil
}

// CompareModels ranks models on one dataset. It runs synchronously.
func (s *Service) CompareModels(ctx context.Context, ids []string, datasetID, criterion string) (*model.Comparison, error) {
	if criterion == "" {
		criterion = DefaultCriterion
	}
	if err := s.requireDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.comparator.Compare(ctx, ids, datasetID, criterion)
}

// Predict serves synchronous predictions for inline records.
func (s *Service) Predict(ctx context.Context, req model.PredictRequest) (*model.PredictResponse, error) {
	return s.realtime.Predict(ctx, req)
}

// ListModels returns stored model metadata, newest first.
func (s *Service) ListModels(ctx context.Context) ([]*model.ModelRecord, error) {
	return s.env.Models.ListModels(ctx)
}

// DeleteModel removes a stored model and evicts it from the cache. Jobs that
// already loaded the model finish with their copy.
func (s *Service) DeleteModel(ctx context.Context, id string) error {
	err := s.env.Models.DeleteModel(ctx, id)
	evicted := s.env.Cache.Remove(id)
	if err != nil {
		return err
	}
	s.logger.Info("model deleted", "model_id", id, "evicted", evicted)
	return nil
}

// ClearCache drops every cached model and returns how many were dropped.
func (s *Service) ClearCache() int {
	n := s.env.Cache.Clear()
	s.logger.Info("model cache cleared", "entries", n)
	return n
}

// Algorithms lists the algorithms training jobs may name.
func (s *Service) Algorithms() []estimator.AlgorithmInfo {
	return s.env.Algorithms.List()
}

// Workers reports the size of the engine's worker pool.
func (s *Service) Workers() int {
	return s.engine.Workers()
}

// Stats aggregates job, worker and cache state.
type Stats struct {
	Jobs         *store.JobStats `json:"jobs"`
	Workers      int             `json:"workers"`
	CachedModels int             `json:"cached_models"`
}

// Stats returns current service statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	js, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &Stats{
		Jobs:         js,
		Workers:      s.engine.Workers(),
		CachedModels: s.env.Cache.Len(),
	}, nil
}

func (s *Service) requireDataset(ctx context.Context, id string) error {
	ok, err := s.env.Datasets.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return model.NotFoundf("dataset %q", id)
	}
	return nil
}

func (s *Service) requireModel(ctx context.Context, id string) error {
	if _, cached := s.env.Cache.Get(id); cached {
		return nil
	}
	ok, err := s.env.Models.ModelExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return model.NotFoundf("model %q", id)
	}
	return nil
}
