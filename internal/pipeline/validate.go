package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/evaluation"
	"github.com/seantiz/crucible/internal/model"
)

// Seed and holdout fraction shared by validation and comparison.
const (
	EvalSeed     = 42
	EvalTestSize = 0.2
)

// Validator re-evaluates a stored model's algorithm and hyperparameters on a
// dataset by cross-validation or holdout.
type Validator struct {
	env Env
}

// NewValidator creates a validator.
func NewValidator(env Env) *Validator {
	return &Validator{env: env}
}

// Run executes a validation job. Checkpoints: 10 model loaded, 20 dataset
// loaded, 30 columns extracted, 80 evaluated, 100 done.
func (v *Validator) Run(ctx context.Context, spec model.ValidationSpec, r Reporter) (*model.Result, error) {
	start := time.Now()
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	art, err := v.env.Artifact(ctx, spec.ModelID)
	if err != nil {
		return nil, err
	}
	r.Progress(10)

	frame, err := v.env.Datasets.Load(ctx, spec.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	r.Progress(20)

	targetCol, features, err := columns(frame, art.Info, spec.TargetColumn, spec.FeatureColumns)
	if err != nil {
		return nil, err
	}
	X, err := frame.Matrix(features)
	if err != nil {
		return nil, model.Validationf("features: %v", err)
	}
	tgt, err := inferTarget(frame, targetCol)
	if err != nil {
		return nil, err
	}
	requested := metricsFor(spec.Metrics, tgt.problem)
	r.Progress(30)

	report := &model.ValidationReport{
		ModelID:     spec.ModelID,
		DatasetID:   spec.DatasetID,
		Mode:        spec.Mode,
		ProblemType: tgt.problem,
	}
	fresh := func() (estimator.Estimator, error) { return v.env.refit(art) }
	if spec.Mode == model.ModeCrossValidation {
		err = crossValidate(report, fresh, X, tgt, spec.Folds, requested)
	} else {
		err = holdout(report, fresh, X, tgt)
	}
	if err != nil {
		return nil, err
	}
	r.Progress(80)

	report.DurationMS = time.Since(start).Milliseconds()
	r.Progress(100)
	v.env.Logger.Info("model validated", "job_id", r.JobID(), "model_id", spec.ModelID,
		"mode", spec.Mode, "problem_type", tgt.problem)
	return &model.Result{Validation: report}, nil
}

// metricsFor keeps the requested metrics that apply to the problem type. When
// none apply the whole family is used.
func metricsFor(requested []string, problem string) []string {
	var out []string
	for _, m := range requested {
		m = evaluation.Canonical(m)
		if slices.Contains(out, m) || !evaluation.Known(m) {
			continue
		}
		if evaluation.IsRegressionMetric(m) == (problem == model.ProblemRegression) {
			out = append(out, m)
		}
	}
	if len(out) > 0 {
		return out
	}
	if problem == model.ProblemRegression {
		return evaluation.RegressionMetrics
	}
	return evaluation.ClassificationMetrics
}

// fitPredict fits a fresh estimator on the train rows and predicts the test rows.
func fitPredict(fresh func() (estimator.Estimator, error), X [][]float64, tgt *target, fold evaluation.Fold) ([]float64, error) {
	est, err := fresh()
	if err != nil {
		return nil, err
	}
	if err := est.Fit(evaluation.Take(X, fold.Train), evaluation.Take(tgt.y, fold.Train)); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	pred, err := est.Predict(evaluation.Take(X, fold.Test))
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return tgt.predictions(pred), nil
}

// crossValidate scores each requested metric per fold and reports the fold
// means, then refits on every row for the full-dataset metrics and, for
// classification, the confusion matrix and report. Fold means take precedence
// over full-dataset values of the same metric.
func crossValidate(report *model.ValidationReport, fresh func() (estimator.Estimator, error), X [][]float64, tgt *target, k int, metrics []string) error {
	var folds []evaluation.Fold
	var err error
	if tgt.classification() {
		folds, err = evaluation.StratifiedKFold(tgt.y, k, EvalSeed)
	} else {
		folds, err = evaluation.KFold(len(tgt.y), k, EvalSeed)
	}
	if err != nil {
		return model.Validationf("cross validation: %v", err)
	}

	scores := make(map[string][]float64, len(metrics))
	for i, fold := range folds {
		pred, err := fitPredict(fresh, X, tgt, fold)
		if err != nil {
			return fmt.Errorf("fold %d: %w", i+1, err)
		}
		yTest := evaluation.Take(tgt.y, fold.Test)
		for _, m := range metrics {
			s, err := evaluation.Score(m, yTest, pred)
			if err != nil {
				return fmt.Errorf("fold %d %s: %w", i+1, m, err)
			}
			scores[m] = append(scores[m], s)
		}
	}

	all := make([]int, len(tgt.y))
	for i := range all {
		all[i] = i
	}
	pred, err := fitPredict(fresh, X, tgt, evaluation.Fold{Train: all, Test: all})
	if err != nil {
		return fmt.Errorf("full refit: %w", err)
	}
	full, err := tgt.metrics(tgt.y, pred)
	if err != nil {
		return err
	}
	for m, s := range scores {
		full[m] = stat.Mean(s, nil)
	}
	report.Metrics = full
	report.FoldScores = scores
	return classificationDetail(report, tgt, tgt.y, pred)
}

// holdout fits once on a fixed 80/20 split, stratified for classification.
func holdout(report *model.ValidationReport, fresh func() (estimator.Estimator, error), X [][]float64, tgt *target) error {
	var strata []float64
	if tgt.classification() {
		strata = tgt.y
	}
	fold, err := evaluation.TrainTestSplit(len(tgt.y), EvalTestSize, EvalSeed, strata)
	if err != nil {
		return model.Validationf("holdout split: %v", err)
	}
	pred, err := fitPredict(fresh, X, tgt, fold)
	if err != nil {
		return err
	}
	yTest := evaluation.Take(tgt.y, fold.Test)
	if report.Metrics, err = tgt.metrics(yTest, pred); err != nil {
		return err
	}
	return classificationDetail(report, tgt, yTest, pred)
}

func classificationDetail(report *model.ValidationReport, tgt *target, yTrue, yPred []float64) error {
	if !tgt.classification() {
		return nil
	}
	labels, matrix, err := evaluation.ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return err
	}
	names := tgt.enc.Labels()
	report.Labels = make([]string, len(labels))
	for i, l := range labels {
		report.Labels[i] = names[l]
	}
	report.ConfusionMatrix = matrix
	report.ClassificationReport, err = evaluation.Report(yTrue, yPred, names)
	return err
}
