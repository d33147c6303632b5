package pipeline_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/pipeline"
	"github.com/seantiz/crucible/internal/sink"
)

func newBatchPredictor(t *testing.T, env *testEnv) (*pipeline.BatchPredictor, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := sink.NewDirSink(dir)
	require.NoError(t, err)
	return pipeline.NewBatchPredictor(env.Env, s), dir
}

func TestBatchPredictChunks(t *testing.T) {
	env := newTestEnv(t)
	env.datasets.Put("train", linearFrame(t, 100))
	env.datasets.Put("big", linearFrame(t, 2500))
	modelID := train(t, env, linearSpec("train"))
	bp, dir := newBatchPredictor(t, env)

	rep := newReporter()
	res, err := bp.Run(context.Background(), model.PredictionSpec{
		ModelID:   modelID,
		DatasetID: "big",
		ChunkSize: 1000,
	}, rep)
	require.NoError(t, err)

	assert.Equal(t, []model.RecordProgress{
		{Total: 2500, Processed: 1000},
		{Total: 2500, Processed: 2000},
		{Total: 2500, Processed: 2500},
	}, rep.records)
	assert.Equal(t, []float64{5, 10, 20, 44, 68, 80, 100}, rep.progress)

	pr := res.Prediction
	require.NotNil(t, pr)
	assert.Equal(t, 2500, pr.Count)
	assert.Equal(t, model.FormatJSON, pr.Format)
	assert.Equal(t, model.InsightNotRequested, pr.Confidence)
	assert.Equal(t, filepath.Join(dir, rep.JobID()+"_predictions.json"), pr.Location)

	data, err := os.ReadFile(pr.Location)
	require.NoError(t, err)
	var doc struct {
		Count       int       `json:"count"`
		Predictions []float64 `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2500, doc.Count)
	assert.Len(t, doc.Predictions, 2500)
}

func TestBatchPredictEnsembleConfidenceCSV(t *testing.T) {
	env := newTestEnv(t)
	env.datasets.Put("ds1", linearFrame(t, 120))
	spec := linearSpec("ds1")
	spec.Algorithm = estimator.RandomForest
	spec.Hyperparameters = smallForest
	modelID := train(t, env, spec)
	bp, _ := newBatchPredictor(t, env)

	res, err := bp.Run(context.Background(), model.PredictionSpec{
		ModelID:           modelID,
		DatasetID:         "ds1",
		ChunkSize:         50,
		IncludeConfidence: true,
		OutputFormat:      model.FormatCSV,
	}, newReporter())
	require.NoError(t, err)
	assert.Equal(t, model.InsightAvailable, res.Prediction.Confidence)

	f, err := os.Open(res.Prediction.Location)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 121)
	header := records[0]
	assert.Equal(t, []string{"x1", "x2", "x3", "y", "prediction", "confidence"}, header)
}

func TestBatchPredictClassNamesCSV(t *testing.T) {
	env := newTestEnv(t)
	env.datasets.Put("ds1", classFrame(t, 150))
	modelID := train(t, env, classSpec("ds1"))
	bp, _ := newBatchPredictor(t, env)

	res, err := bp.Run(context.Background(), model.PredictionSpec{
		ModelID:      modelID,
		DatasetID:    "ds1",
		OutputFormat: model.FormatCSV,
	}, newReporter())
	require.NoError(t, err)

	f, err := os.Open(res.Prediction.Location)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 151)
	assert.Equal(t, []string{"x1", "x2", "label", "prediction", "predicted_label"}, records[0])
	hits := 0
	for _, rec := range records[1:] {
		assert.Contains(t, []string{"low", "mid", "high"}, rec[4])
		if rec[4] == rec[2] {
			hits++
		}
	}
	assert.Greater(t, hits, 120, "decoded labels match the training labels")
}

func TestBatchPredictFailures(t *testing.T) {
	env := newTestEnv(t)
	env.datasets.Put("train", linearFrame(t, 50))
	modelID := train(t, env, linearSpec("train"))

	bad := classFrame(t, 10)
	env.datasets.Put("wrong-columns", bad)
	bp, dir := newBatchPredictor(t, env)
	ctx := context.Background()

	_, err := bp.Run(ctx, model.PredictionSpec{ModelID: "missing", DatasetID: "train"}, newReporter())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = bp.Run(ctx, model.PredictionSpec{ModelID: modelID, DatasetID: "wrong-columns"}, newReporter())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = bp.Run(ctx, model.PredictionSpec{ModelID: modelID, DatasetID: "train", OutputFormat: "parquet"}, newReporter())
	assert.ErrorIs(t, err, model.ErrValidation)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed jobs must not leave output behind")
}

func TestConfidence(t *testing.T) {
	lin := &estimator.Linear{Coef: []float64{1}}
	got, err := pipeline.Confidence(lin, nil, []float64{-2, 1, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 1}, got)

	got, err = pipeline.Confidence(lin, nil, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, got)
}
