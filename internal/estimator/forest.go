package estimator

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/seantiz/crucible/internal/model"
)

// Forest is a bagged ensemble of CART trees. Regression forests average their
// members; classification forests take a majority vote, ties going to the
// smallest class value.
type Forest struct {
	classify        bool
	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     any
	bootstrap       bool
	seed            int64

	Features    int       `json:"features"`
	Trees       []*Tree   `json:"trees"`
	Importances []float64 `json:"importances"`
}

func newForest(p Params, classify bool) (*Forest, error) {
	f := &Forest{classify: classify, maxFeatures: p["max_features"]}
	var err error
	if f.nEstimators, err = p.Int("n_estimators"); err != nil {
		return nil, err
	}
	if f.maxDepth, err = p.Int("max_depth"); err != nil {
		return nil, err
	}
	if f.minSamplesSplit, err = p.Int("min_samples_split"); err != nil {
		return nil, err
	}
	if f.minSamplesLeaf, err = p.Int("min_samples_leaf"); err != nil {
		return nil, err
	}
	if f.bootstrap, err = p.Bool("bootstrap"); err != nil {
		return nil, err
	}
	seed, err := p.Int("random_state")
	if err != nil {
		return nil, err
	}
	f.seed = int64(seed)

	switch {
	case f.nEstimators < 1:
		return nil, model.Validationf("n_estimators must be at least 1, got %d", f.nEstimators)
	case f.maxDepth < 0:
		return nil, model.Validationf("max_depth must not be negative, got %d", f.maxDepth)
	case f.minSamplesSplit < 2:
		return nil, model.Validationf("min_samples_split must be at least 2, got %d", f.minSamplesSplit)
	case f.minSamplesLeaf < 1:
		return nil, model.Validationf("min_samples_leaf must be at least 1, got %d", f.minSamplesLeaf)
	}
	if _, err := maxFeatures(f.maxFeatures, 1); err != nil {
		return nil, err
	}
	return f, nil
}

// NewForestRegressor builds a random forest regressor.
func NewForestRegressor(p Params) (Estimator, error) {
	return newForest(p, false)
}

// NewForestClassifier builds a random forest classifier.
func NewForestClassifier(p Params) (Estimator, error) {
	return newForest(p, true)
}

func (f *Forest) Fit(X [][]float64, y []float64) error {
	features, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	k, err := maxFeatures(f.maxFeatures, features)
	if err != nil {
		return err
	}
	cfg := treeConfig{
		maxDepth:        f.maxDepth,
		minSamplesSplit: f.minSamplesSplit,
		minSamplesLeaf:  f.minSamplesLeaf,
		maxFeatures:     k,
		classify:        f.classify,
	}

	rng := rand.New(rand.NewPCG(uint64(f.seed), uint64(f.seed)^0x5851f42d4c957f2d))
	n := len(X)
	trees := make([]*Tree, f.nEstimators)
	importance := make([]float64, features)
	for t := range trees {
		idx := make([]int, n)
		for i := range idx {
			if f.bootstrap {
				idx[i] = rng.IntN(n)
			} else {
				idx[i] = i
			}
		}
		tree, imp := growTree(cfg, X, y, idx, rng)
		trees[t] = tree
		for j, v := range normalize(imp) {
			importance[j] += v
		}
	}

	f.Features = features
	f.Trees = trees
	f.Importances = normalize(importance)
	return nil
}

func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	members, err := f.MemberPredictions(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		if f.classify {
			out[i] = vote(members, i)
			continue
		}
		var sum float64
		for _, m := range members {
			sum += m[i]
		}
		out[i] = sum / float64(len(members))
	}
	return out, nil
}

// MemberPredictions returns each tree's predictions, indexed [tree][row].
func (f *Forest) MemberPredictions(X [][]float64) ([][]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, f.Features); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := make([][]float64, len(f.Trees))
	for t, tree := range f.Trees {
		out[t] = tree.predict(X)
	}
	return out, nil
}

// FeatureImportances returns the mean normalized impurity decrease per feature.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

func vote(members [][]float64, row int) float64 {
	counts := make(map[float64]int)
	for _, m := range members {
		counts[m[row]]++
	}
	labels := make([]float64, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Float64s(labels)
	best := labels[0]
	for _, l := range labels[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
