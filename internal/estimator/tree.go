package estimator

import (
	"math/rand/v2"
	"sort"
)

// minGain is the smallest impurity decrease that justifies a split.
const minGain = 1e-12

// Node is one node of a fitted decision tree. Leaves have Feature -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a fitted CART tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predictRow(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictRow(row)
	}
	return out
}

type treeConfig struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features tried per split; 0 means all
	classify        bool
}

type treeBuilder struct {
	cfg        treeConfig
	X          [][]float64
	y          []float64
	rng        *rand.Rand
	classOf    map[float64]int
	classes    []float64
	importance []float64
	nodes      []Node
}

// growTree fits a tree on the rows in idx, which may repeat for bootstrap
// samples. It returns the tree and the raw impurity decrease per feature.
func growTree(cfg treeConfig, X [][]float64, y []float64, idx []int, rng *rand.Rand) (*Tree, []float64) {
	b := &treeBuilder{
		cfg:        cfg,
		X:          X,
		y:          y,
		rng:        rng,
		importance: make([]float64, len(X[0])),
	}
	if cfg.classify {
		b.classOf = make(map[float64]int)
		for _, i := range idx {
			if _, ok := b.classOf[y[i]]; !ok {
				b.classOf[y[i]] = 0
				b.classes = append(b.classes, y[i])
			}
		}
		sort.Float64s(b.classes)
		for c, v := range b.classes {
			b.classOf[v] = c
		}
	}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.leafValue(idx)})

	if len(idx) < b.cfg.minSamplesSplit || len(idx) < 2*b.cfg.minSamplesLeaf {
		return id
	}
	if b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth {
		return id
	}
	s, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[s.feature] += s.gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = s.feature
	b.nodes[id].Threshold = s.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) leafValue(idx []int) float64 {
	if !b.cfg.classify {
		var sum float64
		for _, i := range idx {
			sum += b.y[i]
		}
		return sum / float64(len(idx))
	}
	counts := make([]int, len(b.classes))
	for _, i := range idx {
		counts[b.classOf[b.y[i]]]++
	}
	best := 0
	for c, n := range counts {
		if n > counts[best] {
			best = c
		}
	}
	return b.classes[best]
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit searches the candidate features for the threshold that most
// reduces the summed impurity n*impurity of the two children.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	features := len(b.X[0])
	candidates := b.rng.Perm(features)
	if b.cfg.maxFeatures > 0 && b.cfg.maxFeatures < features {
		candidates = candidates[:b.cfg.maxFeatures]
	}

	parent := b.impurity(idx)
	best := split{gain: minGain}
	found := false
	order := make([]int, len(idx))
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(i, j int) bool { return b.X[order[i]][f] < b.X[order[j]][f] })

		score, pos := b.sweep(order, f)
		if pos < 0 {
			continue
		}
		if gain := parent - score; gain > best.gain {
			lo, hi := b.X[order[pos]][f], b.X[order[pos+1]][f]
			best = split{feature: f, threshold: lo + (hi-lo)/2, gain: gain}
			found = true
		}
	}
	return best, found
}

// impurity returns n times the node impurity: the sum of squared errors for
// regression, n*gini for classification.
func (b *treeBuilder) impurity(idx []int) float64 {
	n := float64(len(idx))
	if !b.cfg.classify {
		var sum, sq float64
		for _, i := range idx {
			sum += b.y[i]
			sq += b.y[i] * b.y[i]
		}
		return sq - sum*sum/n
	}
	counts := make([]float64, len(b.classes))
	for _, i := range idx {
		counts[b.classOf[b.y[i]]]++
	}
	var sq float64
	for _, c := range counts {
		sq += c * c
	}
	return n - sq/n
}

// sweep scans split positions of rows sorted by feature f and returns the
// lowest child impurity and the position of the last left row, or -1 when no
// position satisfies the leaf size constraint.
func (b *treeBuilder) sweep(order []int, f int) (float64, int) {
	n := len(order)
	minLeaf := max(b.cfg.minSamplesLeaf, 1)
	bestScore, bestPos := 0.0, -1

	if !b.cfg.classify {
		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}
		var lSum, lSq float64
		for k := 0; k < n-1; k++ {
			v := b.y[order[k]]
			lSum += v
			lSq += v * v
			nl, nr := float64(k+1), float64(n-k-1)
			if k+1 < minLeaf || n-k-1 < minLeaf || b.X[order[k]][f] == b.X[order[k+1]][f] {
				continue
			}
			rSum, rSq := totalSum-lSum, totalSq-lSq
			score := (lSq - lSum*lSum/nl) + (rSq - rSum*rSum/nr)
			if bestPos < 0 || score < bestScore {
				bestScore, bestPos = score, k
			}
		}
		return bestScore, bestPos
	}

	left := make([]float64, len(b.classes))
	right := make([]float64, len(b.classes))
	var lSq, rSq float64
	for _, i := range order {
		right[b.classOf[b.y[i]]]++
	}
	for _, c := range right {
		rSq += c * c
	}
	for k := 0; k < n-1; k++ {
		c := b.classOf[b.y[order[k]]]
		lSq += 2*left[c] + 1
		left[c]++
		rSq -= 2*right[c] - 1
		right[c]--
		nl, nr := float64(k+1), float64(n-k-1)
		if k+1 < minLeaf || n-k-1 < minLeaf || b.X[order[k]][f] == b.X[order[k+1]][f] {
			continue
		}
		score := (nl - lSq/nl) + (nr - rSq/nr)
		if bestPos < 0 || score < bestScore {
			bestScore, bestPos = score, k
		}
	}
	return bestScore, bestPos
}
