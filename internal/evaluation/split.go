package evaluation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Fold is one train/test partition of row indices.
type Fold struct {
	Train []int
	Test  []int
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// TrainTestSplit partitions n rows into train and test index sets. The test set
// holds ceil(testSize*n) rows. When strata is non-nil the split is stratified:
// each class contributes its proportional share to the test set.
func TrainTestSplit(n int, testSize float64, seed int64, strata []float64) (Fold, error) {
	if testSize <= 0 || testSize >= 1 {
		return Fold{}, fmt.Errorf("test size %v must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return Fold{}, fmt.Errorf("%d rows cannot be split with test size %v", n, testSize)
	}
	if strata != nil && len(strata) != n {
		return Fold{}, fmt.Errorf("strata has %d labels for %d rows", len(strata), n)
	}

	r := newRand(seed)
	if strata == nil {
		perm := r.Perm(n)
		return Fold{Train: sorted(perm[nTest:]), Test: sorted(perm[:nTest])}, nil
	}

	var fold Fold
	for _, members := range groups(strata) {
		r.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		k := int(math.Round(testSize * float64(len(members))))
		if k >= len(members) && len(members) > 1 {
			k = len(members) - 1
		}
		fold.Test = append(fold.Test, members[:k]...)
		fold.Train = append(fold.Train, members[k:]...)
	}
	if len(fold.Test) == 0 || len(fold.Train) == 0 {
		return Fold{}, fmt.Errorf("%d rows cannot be stratified with test size %v", n, testSize)
	}
	fold.Train, fold.Test = sorted(fold.Train), sorted(fold.Test)
	return fold, nil
}

// KFold shuffles n rows and deals them into k folds. The first n%k folds get
// one extra row.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot make %d folds from %d rows", k, n)
	}
	perm := newRand(seed).Perm(n)
	tests := make([][]int, k)
	start := 0
	for i := range k {
		size := n / k
		if i < n%k {
			size++
		}
		tests[i] = perm[start : start+size]
		start += size
	}
	return assemble(n, tests), nil
}

// StratifiedKFold deals each class's shuffled rows round-robin across k folds so
// every fold keeps roughly the overall class proportions.
func StratifiedKFold(labels []float64, k int, seed int64) ([]Fold, error) {
	n := len(labels)
	if k < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot make %d folds from %d rows", k, n)
	}
	r := newRand(seed)
	tests := make([][]int, k)
	next := 0
	for _, members := range groups(labels) {
		r.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for _, idx := range members {
			tests[next] = append(tests[next], idx)
			next = (next + 1) % k
		}
	}
	return assemble(n, tests), nil
}

func assemble(n int, tests [][]int) []Fold {
	folds := make([]Fold, len(tests))
	for i, test := range tests {
		in := make([]bool, n)
		for _, idx := range test {
			in[idx] = true
		}
		train := make([]int, 0, n-len(test))
		for idx := range n {
			if !in[idx] {
				train = append(train, idx)
			}
		}
		folds[i] = Fold{Train: train, Test: sorted(test)}
	}
	return folds
}

// groups returns row indices per label in ascending label order.
func groups(labels []float64) [][]int {
	byLabel := make(map[float64][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	keys := make([]float64, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	sort.Float64s(keys)
	out := make([][]int, len(keys))
	for i, l := range keys {
		out[i] = byLabel[l]
	}
	return out
}

func sorted(idx []int) []int {
	out := append([]int(nil), idx...)
	sort.Ints(out)
	return out
}

// Take returns the elements of s at the given indices.
func Take[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}
