package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/crucible/internal/dataset"
	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/evaluation"
	"github.com/seantiz/crucible/internal/model"
)

// Comparator ranks stored models by refitting each on an identical split of
// one dataset.
type Comparator struct {
	env         Env
	concurrency int
}

// NewComparator creates a comparator evaluating at most concurrency
// candidates at once.
func NewComparator(env Env, concurrency int) *Comparator {
	return &Comparator{env: env, concurrency: max(concurrency, 1)}
}

type candidate struct {
	metrics map[string]float64
	err     error
}

// Compare evaluates every model on the same 80/20 split of the dataset, whose
// last column is the target. A model that fails to load or evaluate is
// skipped with its reason recorded. BestModel is model.NoWinner when no
// candidate produced the criterion.
func (c *Comparator) Compare(ctx context.Context, ids []string, datasetID, criterion string) (*model.Comparison, error) {
	if len(ids) == 0 {
		return nil, model.Validationf("model_ids must not be empty")
	}
	if !evaluation.Known(criterion) {
		return nil, model.Validationf("unsupported comparison criterion %q", criterion)
	}
	criterion = evaluation.Canonical(criterion)

	frame, err := c.env.Datasets.Load(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if len(frame.Columns) < 2 {
		return nil, model.Validationf("dataset %s needs a target and at least one feature", datasetID)
	}
	targetCol := frame.Columns[len(frame.Columns)-1]
	tgt, err := inferTarget(frame, targetCol)
	if err != nil {
		return nil, err
	}
	fold, err := evaluation.TrainTestSplit(frame.Len(), EvalTestSize, EvalSeed, nil)
	if err != nil {
		return nil, model.Validationf("split: %v", err)
	}

	results := make([]candidate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := c.evaluate(gctx, id, frame, targetCol, tgt, fold)
			results[i] = candidate{metrics: m, err: err}
			return nil
		})
	}
	g.Wait()

	cmp := &model.Comparison{
		Models:    ids,
		DatasetID: datasetID,
		Criterion: criterion,
		Metrics:   make(map[string]map[string]float64),
		BestModel: model.NoWinner,
		CreatedAt: time.Now().UTC(),
	}
	// Ranking walks the input order so ties go to the earlier model.
	for i, id := range ids {
		res := results[i]
		if res.err != nil {
			if cmp.Skipped == nil {
				cmp.Skipped = make(map[string]string)
			}
			cmp.Skipped[id] = res.err.Error()
			c.env.Logger.Warn("skipping model in comparison", "model_id", id, "error", res.err)
			continue
		}
		cmp.Metrics[id] = res.metrics
		score, ok := res.metrics[criterion]
		if !ok {
			continue
		}
		if cmp.BestScore == nil || evaluation.Better(criterion, score, *cmp.BestScore) {
			cmp.BestModel = id
			cmp.BestScore = &score
		}
	}
	return cmp, nil
}

func (c *Comparator) evaluate(ctx context.Context, id string, frame *dataset.Frame, targetCol string, tgt *target, fold evaluation.Fold) (map[string]float64, error) {
	art, err := c.env.Artifact(ctx, id)
	if err != nil {
		return nil, err
	}
	features := art.Info.FeatureColumns
	if len(features) == 0 {
		features = frame.Without(targetCol)
	}
	if slices.Contains(features, targetCol) {
		return nil, model.Validationf("dataset target %q is a feature of model %s", targetCol, id)
	}
	if missing := frame.Missing(features...); len(missing) > 0 {
		return nil, model.Validationf("dataset lacks model features %v", missing)
	}
	X, err := frame.Matrix(features)
	if err != nil {
		return nil, model.Validationf("features: %v", err)
	}
	pred, err := fitPredict(func() (estimator.Estimator, error) { return c.env.refit(art) }, X, tgt, fold)
	if err != nil {
		return nil, err
	}
	return tgt.metrics(evaluation.Take(tgt.y, fold.Test), pred)
}
