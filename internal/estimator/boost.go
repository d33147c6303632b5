package estimator

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/seantiz/crucible/internal/model"
)

// Boosting is gradient boosting of regression trees under squared loss. Each
// stage fits a tree to the residuals of the previous stages and is added with
// weight learning_rate.
type Boosting struct {
	nEstimators    int
	learningRate   float64
	maxDepth       int
	minSamplesLeaf int
	subsample      float64
	seed           int64

	Features     int       `json:"features"`
	Init         float64   `json:"init"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []*Tree   `json:"trees"`
	Importances  []float64 `json:"importances"`
}

// NewBoosting builds a gradient boosted tree regressor.
func NewBoosting(p Params) (Estimator, error) {
	b := &Boosting{}
	var err error
	if b.nEstimators, err = p.Int("n_estimators"); err != nil {
		return nil, err
	}
	if b.learningRate, err = p.Float("learning_rate"); err != nil {
		return nil, err
	}
	if b.maxDepth, err = p.Int("max_depth"); err != nil {
		return nil, err
	}
	if b.minSamplesLeaf, err = p.Int("min_samples_leaf"); err != nil {
		return nil, err
	}
	if b.subsample, err = p.Float("subsample"); err != nil {
		return nil, err
	}
	seed, err := p.Int("random_state")
	if err != nil {
		return nil, err
	}
	b.seed = int64(seed)

	switch {
	case b.nEstimators < 1:
		return nil, model.Validationf("n_estimators must be at least 1, got %d", b.nEstimators)
	case b.learningRate <= 0:
		return nil, model.Validationf("learning_rate must be positive, got %v", b.learningRate)
	case b.maxDepth < 0:
		return nil, model.Validationf("max_depth must not be negative, got %d", b.maxDepth)
	case b.minSamplesLeaf < 1:
		return nil, model.Validationf("min_samples_leaf must be at least 1, got %d", b.minSamplesLeaf)
	case b.subsample <= 0 || b.subsample > 1:
		return nil, model.Validationf("subsample must be in (0, 1], got %v", b.subsample)
	}
	return b, nil
}

func (b *Boosting) Fit(X [][]float64, y []float64) error {
	features, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	cfg := treeConfig{
		maxDepth:        b.maxDepth,
		minSamplesSplit: 2,
		minSamplesLeaf:  b.minSamplesLeaf,
	}

	rng := rand.New(rand.NewPCG(uint64(b.seed), uint64(b.seed)^0x2545f4914f6cdd1d))
	n := len(X)
	base := stat.Mean(y, nil)
	current := make([]float64, n)
	for i := range current {
		current[i] = base
	}
	residual := make([]float64, n)
	sample := max(1, int(b.subsample*float64(n)))

	trees := make([]*Tree, b.nEstimators)
	importance := make([]float64, features)
	for t := range trees {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		idx := rng.Perm(n)[:sample]
		tree, imp := growTree(cfg, X, residual, idx, rng)
		trees[t] = tree
		for j, v := range imp {
			importance[j] += v
		}
		for i, row := range X {
			current[i] += b.learningRate * tree.predictRow(row)
		}
	}

	b.Features = features
	b.Init = base
	b.LearningRate = b.learningRate
	b.Trees = trees
	b.Importances = normalize(importance)
	return nil
}

func (b *Boosting) Predict(X [][]float64) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, b.Features); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := b.Init
		for _, t := range b.Trees {
			v += b.LearningRate * t.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureImportances returns the normalized impurity decrease per feature
// summed over all stages.
func (b *Boosting) FeatureImportances() []float64 {
	return append([]float64(nil), b.Importances...)
}
