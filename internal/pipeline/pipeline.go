// Package pipeline implements the work run by jobs: training, batch
// prediction and validation, plus the synchronous model comparison and
// real-time prediction paths that share their plumbing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/seantiz/crucible/internal/cache"
	"github.com/seantiz/crucible/internal/dataset"
	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/evaluation"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

// Reporter records progress checkpoints of the job a pipeline runs in.
type Reporter interface {
	JobID() string
	Progress(pct float64)
	Records(processed, total int, pct float64)
}

// Env holds the collaborators shared by every pipeline.
type Env struct {
	Datasets   dataset.Store
	Models     store.ModelStore
	Cache      *cache.ModelCache
	Algorithms *estimator.Registry
	Logger     *slog.Logger
}

// Artifact returns the loaded model for id, going through the model cache.
func (e *Env) Artifact(ctx context.Context, id string) (*cache.Artifact, error) {
	return e.Cache.GetOrLoad(ctx, id, cache.StoreLoader(e.Models, e.Algorithms))
}

// refit builds an unfitted estimator with the same algorithm and
// hyperparameters as a, leaving the cached instance untouched.
func (e *Env) refit(a *cache.Artifact) (estimator.Estimator, error) {
	est, _, err := e.Algorithms.Build(a.Info.Algorithm, a.Params)
	if err != nil {
		return nil, fmt.Errorf("rebuild model %s: %w", a.ID, err)
	}
	return est, nil
}

// target is a resolved target column: numeric values for fitting and, for
// classification, the class encoding.
type target struct {
	problem string
	y       []float64
	enc     *evaluation.Encoding
}

func (t *target) classification() bool {
	return t.problem == model.ProblemClassification
}

// predictions maps raw estimator output into the target's value space.
func (t *target) predictions(pred []float64) []float64 {
	if t.classification() {
		return t.enc.Snap(pred)
	}
	return pred
}

// metrics scores predictions with the metric family of the problem.
func (t *target) metrics(yTrue, yPred []float64) (map[string]float64, error) {
	if t.classification() {
		return evaluation.Classification(yTrue, yPred)
	}
	return evaluation.Regression(yTrue, yPred)
}

// resolveTarget reads col as a target of the given problem type.
func resolveTarget(f *dataset.Frame, col, problem string) (*target, error) {
	if problem == model.ProblemRegression {
		y, err := f.Floats(col)
		if err != nil {
			return nil, model.Validationf("regression target: %v", err)
		}
		return &target{problem: problem, y: y}, nil
	}
	cells, err := f.Strings(col)
	if err != nil {
		return nil, model.Validationf("%v", err)
	}
	enc, y := evaluation.Encode(cells)
	return &target{problem: problem, y: y, enc: enc}, nil
}

// inferTarget reads col and infers its problem type from its values.
func inferTarget(f *dataset.Frame, col string) (*target, error) {
	cells, err := f.Strings(col)
	if err != nil {
		return nil, model.Validationf("%v", err)
	}
	return resolveTarget(f, col, evaluation.ProblemType(cells))
}

// columns picks the target and feature columns for evaluating a model on f.
// The explicit target wins, then the model's own target, then the last column.
// Features default to the model's feature columns.
func columns(f *dataset.Frame, info model.ModelRecord, targetCol string, features []string) (string, []string, error) {
	if targetCol == "" {
		targetCol = info.TargetColumn
		if targetCol == "" || !f.Has(targetCol) {
			targetCol = f.Columns[len(f.Columns)-1]
		}
	}
	if len(features) == 0 {
		features = info.FeatureColumns
	}
	if len(features) == 0 {
		features = f.Without(targetCol)
	}
	if missing := f.Missing(append([]string{targetCol}, features...)...); len(missing) > 0 {
		return "", nil, model.Validationf("dataset lacks columns %v", missing)
	}
	return targetCol, features, nil
}

// featureInsight extracts per-feature importances, falling back to
// coefficients. Failures degrade to an unavailable insight.
func featureInsight(est estimator.Estimator, features []string, logger *slog.Logger) (insight model.Insight) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("feature importance failed", "panic", r)
			insight = model.Insight{Status: model.InsightUnavailable, Reason: fmt.Sprint(r)}
		}
	}()

	var values []float64
	var source string
	switch e := est.(type) {
	case estimator.ImportanceReporter:
		values, source = e.FeatureImportances(), "feature_importances"
	case estimator.CoefficientReporter:
		values, source = e.Coefficients(), "coefficients"
	default:
		return model.Insight{Status: model.InsightNotApplicable}
	}

	if len(values) != len(features) {
		reason := fmt.Sprintf("%d %s for %d features", len(values), source, len(features))
		logger.Warn("feature importance unavailable", "reason", reason)
		return model.Insight{Status: model.InsightUnavailable, Source: source, Reason: reason}
	}
	out := make(map[string]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Insight{Status: model.InsightUnavailable, Source: source, Reason: "non-finite value"}
		}
		out[features[i]] = v
	}
	return model.Insight{Status: model.InsightAvailable, Source: source, Values: out}
}

// Confidence scores predictions. Ensembles score 1/(1+variance) across their
// members; other estimators score |p|/max|p|, or 1 when every prediction is 0.
func Confidence(est estimator.Estimator, X [][]float64, pred []float64) ([]float64, error) {
	out := make([]float64, len(pred))

	if ens, ok := est.(estimator.EnsembleReporter); ok {
		members, err := ens.MemberPredictions(X)
		if err != nil {
			return nil, fmt.Errorf("ensemble members: %w", err)
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("ensemble has no members")
		}
		col := make([]float64, len(members))
		for i := range pred {
			for m, p := range members {
				if len(p) != len(pred) {
					return nil, fmt.Errorf("member %d returned %d predictions for %d rows", m, len(p), len(pred))
				}
				col[m] = p[i]
			}
			out[i] = 1 / (1 + stat.PopVariance(col, nil))
		}
		return out, nil
	}

	var peak float64
	for _, p := range pred {
		peak = max(peak, math.Abs(p))
	}
	for i, p := range pred {
		if peak == 0 {
			out[i] = 1
			continue
		}
		out[i] = math.Abs(p) / peak
	}
	return out, nil
}
