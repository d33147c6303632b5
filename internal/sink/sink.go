// Package sink persists batch prediction output.
package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/crucible/internal/model"
)

// Output is the complete result of one batch prediction job.
type Output struct {
	JobID       string
	ModelID     string
	DatasetID   string
	Format      string
	Columns     []string   // input columns, written by the csv format
	Rows        [][]string // input rows, aligned with Predictions
	Predictions []float64
	Labels      []string  // class names of Predictions, nil for unnamed outputs
	Confidence  []float64 // nil when not requested or unavailable
	CreatedAt   time.Time
}

// Sink stores an Output and returns where it was written.
type Sink interface {
	Write(ctx context.Context, out *Output) (string, error)
}

// document is the record-oriented form written by the json and yaml formats.
type document struct {
	JobID       string    `json:"job_id" yaml:"job_id"`
	ModelID     string    `json:"model_id" yaml:"model_id"`
	DatasetID   string    `json:"dataset_id" yaml:"dataset_id"`
	Count       int       `json:"count" yaml:"count"`
	Predictions []float64 `json:"predictions" yaml:"predictions"`
	Labels      []string  `json:"predicted_labels,omitempty" yaml:"predicted_labels,omitempty"`
	Confidence  []float64 `json:"confidence_scores,omitempty" yaml:"confidence_scores,omitempty"`
	CreatedAt   string    `json:"created_at" yaml:"created_at"`
}

// DirSink writes <dir>/<jobID>_predictions.<format>.
type DirSink struct {
	dir string
}

// NewDirSink creates a sink rooted at dir, creating the directory if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Write encodes out in its format. The file appears only once fully written.
func (s *DirSink) Write(ctx context.Context, out *Output) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if out.Confidence != nil && len(out.Confidence) != len(out.Predictions) {
		return "", fmt.Errorf("%d confidence scores for %d predictions", len(out.Confidence), len(out.Predictions))
	}
	if out.Labels != nil && len(out.Labels) != len(out.Predictions) {
		return "", fmt.Errorf("%d labels for %d predictions", len(out.Labels), len(out.Predictions))
	}

	var encode func(io.Writer, *Output) error
	switch out.Format {
	case model.FormatJSON:
		encode = writeJSON
	case model.FormatCSV:
		encode = writeCSV
	case model.FormatYAML:
		encode = writeYAML
	default:
		return "", model.Validationf("unsupported output format %q", out.Format)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_predictions.%s", out.JobID, out.Format))
	tmp, err := os.CreateTemp(s.dir, ".predictions-*")
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, out); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s output: %w", out.Format, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish output: %w", err)
	}
	return path, nil
}

func toDocument(out *Output) document {
	return document{
		JobID:       out.JobID,
		ModelID:     out.ModelID,
		DatasetID:   out.DatasetID,
		Count:       len(out.Predictions),
		Predictions: out.Predictions,
		Labels:      out.Labels,
		Confidence:  out.Confidence,
		CreatedAt:   out.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w io.Writer, out *Output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toDocument(out))
}

func writeYAML(w io.Writer, out *Output) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toDocument(out)); err != nil {
		return err
	}
	return enc.Close()
}

// writeCSV writes the input rows with prediction and, when present,
// predicted_label and confidence columns appended.
func writeCSV(w io.Writer, out *Output) error {
	if len(out.Rows) != len(out.Predictions) {
		return fmt.Errorf("%d input rows for %d predictions", len(out.Rows), len(out.Predictions))
	}
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), out.Columns...), "prediction")
	if out.Labels != nil {
		header = append(header, "predicted_label")
	}
	if out.Confidence != nil {
		header = append(header, "confidence")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range out.Rows {
		rec := append(append(make([]string, 0, len(header)), row...), formatFloat(out.Predictions[i]))
		if out.Labels != nil {
			rec = append(rec, out.Labels[i])
		}
		if out.Confidence != nil {
			rec = append(rec, formatFloat(out.Confidence[i]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
