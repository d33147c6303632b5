package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seantiz/crucible/internal/cache"
	"github.com/seantiz/crucible/internal/dataset"
	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/pipeline"
	"github.com/seantiz/crucible/internal/store"
)

type fakeReporter struct {
	id string

	mu       sync.Mutex
	progress []float64
	records  []model.RecordProgress
}

func newReporter() *fakeReporter {
	return &fakeReporter{id: model.NewID()}
}

func (r *fakeReporter) JobID() string { return r.id }

func (r *fakeReporter) Progress(pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
}

func (r *fakeReporter) Records(processed, total int, pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
	r.records = append(r.records, model.RecordProgress{Total: total, Processed: processed})
}

type testEnv struct {
	pipeline.Env
	datasets *dataset.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	models, err := store.NewSQLiteModelStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { models.Close() })

	datasets := dataset.NewMemoryStore()
	return &testEnv{
		Env: pipeline.Env{
			Datasets:   datasets,
			Models:     models,
			Cache:      cache.New(),
			Algorithms: estimator.DefaultRegistry(),
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		datasets: datasets,
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// linearFrame is y = 2*x1 - 3*x2 + 0.5*x3 + 1 plus a little noise.
func linearFrame(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	r := rand.New(rand.NewPCG(1, 2))
	rows := make([][]string, n)
	for i := range rows {
		x1, x2, x3 := r.Float64()*10, r.Float64()*10, r.Float64()*10
		y := 2*x1 - 3*x2 + 0.5*x3 + 1 + r.NormFloat64()*0.01
		rows[i] = []string{fmtFloat(x1), fmtFloat(x2), fmtFloat(x3), fmtFloat(y)}
	}
	f, err := dataset.NewFrame([]string{"x1", "x2", "x3", "y"}, rows)
	require.NoError(t, err)
	return f
}

// classFrame labels rows by which third of [0, 9) x1 falls in.
func classFrame(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	r := rand.New(rand.NewPCG(3, 4))
	names := []string{"low", "mid", "high"}
	rows := make([][]string, n)
	for i := range rows {
		x1, x2 := r.Float64()*9, r.Float64()
		rows[i] = []string{fmtFloat(x1), fmtFloat(x2), names[int(x1/3)]}
	}
	f, err := dataset.NewFrame([]string{"x1", "x2", "label"}, rows)
	require.NoError(t, err)
	return f
}

var smallForest = map[string]any{"n_estimators": 10, "max_depth": 6}

// train fits and persists a model, returning its id.
func train(t *testing.T, env *testEnv, spec model.TrainingSpec) string {
	t.Helper()
	res, err := pipeline.NewTrainer(env.Env).Run(context.Background(), spec, newReporter())
	require.NoError(t, err)
	require.NotNil(t, res.Training)
	return res.Training.ModelID
}

func linearSpec(datasetID string) model.TrainingSpec {
	return model.TrainingSpec{
		DatasetID:      datasetID,
		Algorithm:      estimator.LinearRegression,
		TargetColumn:   "y",
		FeatureColumns: []string{"x1", "x2", "x3"},
	}
}

func classSpec(datasetID string) model.TrainingSpec {
	return model.TrainingSpec{
		DatasetID:       datasetID,
		Algorithm:       estimator.RandomForestClassifier,
		TargetColumn:    "label",
		FeatureColumns:  []string{"x1", "x2"},
		Hyperparameters: smallForest,
	}
}
