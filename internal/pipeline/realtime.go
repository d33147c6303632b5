package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/model"
)

// topFeatures is the number of features listed per explanation.
const topFeatures = 3

// Predictor serves synchronous predictions for small inline record sets.
type Predictor struct {
	env Env
}

// NewPredictor creates a real-time predictor.
func NewPredictor(env Env) *Predictor {
	return &Predictor{env: env}
}

// Predict runs the model over req.Records. Confidence and explanations are
// best-effort and omitted when they cannot be computed.
func (p *Predictor) Predict(ctx context.Context, req model.PredictRequest) (*model.PredictResponse, error) {
	start := time.Now()
	if req.ModelID == "" {
		return nil, model.Validationf("model_id is required")
	}
	if len(req.Records) == 0 {
		return nil, model.Validationf("data must contain at least one record")
	}

	art, err := p.env.Artifact(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	features := art.Info.FeatureColumns
	X, err := recordMatrix(req.Records, features)
	if err != nil {
		return nil, err
	}
	pred, err := art.Estimator.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	resp := &model.PredictResponse{
		ModelID:     req.ModelID,
		Predictions: pred,
		Labels:      art.Info.Labels(pred),
	}
	if req.IncludeConfidence {
		if resp.Confidence, err = Confidence(art.Estimator, X, pred); err != nil {
			p.env.Logger.Warn("confidence scores unavailable", "model_id", req.ModelID, "error", err)
		}
	}
	if req.IncludeExplanation {
		resp.Explanations = explain(art.Estimator, features, X, pred)
	}
	resp.DurationMS = time.Since(start).Milliseconds()
	resp.PredictedAt = time.Now().UTC()
	return resp, nil
}

// recordMatrix orders each record's values by the model's feature columns.
func recordMatrix(records []map[string]any, features []string) ([][]float64, error) {
	X := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(features))
		for j, f := range features {
			raw, ok := rec[f]
			if !ok {
				return nil, model.Validationf("record %d is missing feature %q", i, f)
			}
			v, err := toFloat(raw)
			if err != nil {
				return nil, model.Validationf("record %d feature %q: %v", i, f, err)
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// explain lists, per prediction, the features with the largest
// importance*|value|. Coefficient magnitudes stand in for importances on
// linear models. It returns nil when the estimator reports neither.
func explain(est estimator.Estimator, features []string, X [][]float64, pred []float64) []model.Explanation {
	var weights []float64
	switch e := est.(type) {
	case estimator.ImportanceReporter:
		weights = e.FeatureImportances()
	case estimator.CoefficientReporter:
		for _, c := range e.Coefficients() {
			weights = append(weights, math.Abs(c))
		}
	}
	if len(weights) != len(features) {
		return nil
	}

	out := make([]model.Explanation, len(X))
	for i, row := range X {
		contrib := make([]model.FeatureContribution, len(features))
		for j, f := range features {
			contrib[j] = model.FeatureContribution{
				Feature:      f,
				Value:        row[j],
				Importance:   weights[j],
				Contribution: weights[j] * math.Abs(row[j]),
			}
		}
		sort.SliceStable(contrib, func(a, b int) bool {
			return contrib[a].Contribution > contrib[b].Contribution
		})
		out[i] = model.Explanation{
			Prediction:  pred[i],
			TopFeatures: contrib[:min(topFeatures, len(contrib))],
		}
	}
	return out
}
