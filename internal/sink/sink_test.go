package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/crucible/internal/model"
)

func sampleOutput(format string) *Output {
	return &Output{
		JobID:       "job1",
		ModelID:     "m1",
		DatasetID:   "ds1",
		Format:      format,
		Columns:     []string{"a", "b"},
		Rows:        [][]string{{"1", "2"}, {"3", "4"}},
		Predictions: []float64{0.5, 1.25},
		Confidence:  []float64{1, 0.4},
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newSink(t *testing.T) (*DirSink, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewDirSink(dir)
	require.NoError(t, err)
	return s, dir
}

func TestWriteJSON(t *testing.T) {
	s, dir := newSink(t)

	path, err := s.Write(context.Background(), sampleOutput(model.FormatJSON))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job1_predictions.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []float64{0.5, 1.25}, doc.Predictions)
	assert.Equal(t, []float64{1, 0.4}, doc.Confidence)
	assert.Equal(t, 2, doc.Count)
	assert.Equal(t, "2024-01-02T03:04:05Z", doc.CreatedAt)
}

func TestWriteJSONWithoutConfidence(t *testing.T) {
	s, _ := newSink(t)
	out := sampleOutput(model.FormatJSON)
	out.Confidence = nil

	path, err := s.Write(context.Background(), out)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "confidence_scores")
}

func TestWriteCSV(t *testing.T) {
	s, _ := newSink(t)

	path, err := s.Write(context.Background(), sampleOutput(model.FormatCSV))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"a", "b", "prediction", "confidence"},
		{"1", "2", "0.5", "1"},
		{"3", "4", "1.25", "0.4"},
	}, records)
}

func TestWriteLabels(t *testing.T) {
	s, _ := newSink(t)
	out := sampleOutput(model.FormatCSV)
	out.Labels = []string{"cat", "dog"}

	path, err := s.Write(context.Background(), out)
	require.NoError(t, err)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"a", "b", "prediction", "predicted_label", "confidence"},
		{"1", "2", "0.5", "cat", "1"},
		{"3", "4", "1.25", "dog", "0.4"},
	}, records)

	out.Format = model.FormatJSON
	path, err = s.Write(context.Background(), out)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"cat", "dog"}, doc.Labels)

	out.Labels = []string{"cat"}
	_, err = s.Write(context.Background(), out)
	assert.Error(t, err)
}

func TestWriteYAML(t *testing.T) {
	s, _ := newSink(t)

	path, err := s.Write(context.Background(), sampleOutput(model.FormatYAML))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "m1", doc.ModelID)
	assert.Equal(t, []float64{0.5, 1.25}, doc.Predictions)
}

func TestWriteRejectsBadOutput(t *testing.T) {
	s, dir := newSink(t)

	_, err := s.Write(context.Background(), sampleOutput("parquet"))
	assert.ErrorIs(t, err, model.ErrValidation)

	out := sampleOutput(model.FormatCSV)
	out.Rows = out.Rows[:1]
	_, err = s.Write(context.Background(), out)
	assert.Error(t, err)

	out = sampleOutput(model.FormatJSON)
	out.Confidence = []float64{1}
	_, err = s.Write(context.Background(), out)
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed writes leave no files behind")
}
