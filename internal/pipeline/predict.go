package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/sink"
)

// BatchPredictor runs a stored model over a whole dataset in chunks.
type BatchPredictor struct {
	env  Env
	sink sink.Sink
}

// NewBatchPredictor creates a batch predictor writing its output to s.
func NewBatchPredictor(env Env, s sink.Sink) *BatchPredictor {
	return &BatchPredictor{env: env, sink: s}
}

// Run executes a batch prediction job. Checkpoints: 5 started, 10 dataset
// loaded, 20 model loaded, then 20 + 60*processed/total after each chunk, and
// 100 once the output is written. A failing chunk aborts the job and nothing
// is written.
func (b *BatchPredictor) Run(ctx context.Context, spec model.PredictionSpec, r Reporter) (*model.Result, error) {
	start := time.Now()
	spec.ApplyDefaults(model.DefaultChunkSize)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	logger := b.env.Logger.With("job_id", r.JobID())
	r.Progress(5)

	frame, err := b.env.Datasets.Load(ctx, spec.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	r.Progress(10)

	art, err := b.env.Artifact(ctx, spec.ModelID)
	if err != nil {
		return nil, err
	}
	r.Progress(20)

	features := art.Info.FeatureColumns
	if missing := frame.Missing(features...); len(missing) > 0 {
		return nil, model.Validationf("dataset %s lacks model features %v", spec.DatasetID, missing)
	}
	total := frame.Len()
	if total == 0 {
		return nil, model.Validationf("dataset %s has no rows", spec.DatasetID)
	}

	preds := make([]float64, 0, total)
	var conf []float64
	confidence := model.InsightNotRequested
	if spec.IncludeConfidence {
		confidence = model.InsightAvailable
		conf = make([]float64, 0, total)
	}

	for from := 0; from < total; from += spec.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := min(from+spec.ChunkSize, total)
		X, err := frame.Slice(from, to).Matrix(features)
		if err != nil {
			return nil, model.Validationf("rows %d-%d: %v", from, to, err)
		}
		p, err := art.Estimator.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("predict rows %d-%d: %w", from, to, err)
		}
		preds = append(preds, p...)

		if confidence == model.InsightAvailable {
			c, err := Confidence(art.Estimator, X, p)
			if err != nil {
				logger.Warn("confidence scores unavailable", "rows", fmt.Sprintf("%d-%d", from, to), "error", err)
				confidence, conf = model.InsightUnavailable, nil
			} else {
				conf = append(conf, c...)
			}
		}
		r.Records(to, total, 20+60*float64(to)/float64(total))
	}

	loc, err := b.sink.Write(ctx, &sink.Output{
		JobID:       r.JobID(),
		ModelID:     spec.ModelID,
		DatasetID:   spec.DatasetID,
		Format:      spec.OutputFormat,
		Columns:     frame.Columns,
		Rows:        frame.Rows,
		Predictions: preds,
		Labels:      art.Info.Labels(preds),
		Confidence:  conf,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("write predictions: %w", err)
	}
	r.Progress(100)

	logger.Info("batch prediction written", "model_id", spec.ModelID, "count", len(preds), "location", loc)
	return &model.Result{Prediction: &model.PredictionResult{
		Location:   loc,
		Format:     spec.OutputFormat,
		Count:      len(preds),
		Confidence: confidence,
		DurationMS: time.Since(start).Milliseconds(),
	}}, nil
}
