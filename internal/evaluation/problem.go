package evaluation

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/seantiz/crucible/internal/model"
)

// RegressionThreshold is the number of distinct numeric target values above
// which a target is treated as continuous.
const RegressionThreshold = 10

// ProblemType infers regression or classification from a target column.
func ProblemType(cells []string) string {
	distinct := make(map[string]struct{})
	for _, c := range cells {
		if _, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err != nil {
			return model.ProblemClassification
		}
		distinct[strings.TrimSpace(c)] = struct{}{}
	}
	if len(distinct) > RegressionThreshold {
		return model.ProblemRegression
	}
	return model.ProblemClassification
}

// Encoding maps class names to dense numeric codes.
type Encoding struct {
	Names []string
	codes map[string]float64
}

// Encode assigns class codes. Numeric labels keep their value so that a model
// trained on numeric targets predicts comparable codes; other labels are
// numbered 0..k-1 in sorted order.
func Encode(cells []string) (*Encoding, []float64) {
	numeric := true
	for _, c := range cells {
		if _, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err != nil {
			numeric = false
			break
		}
	}

	seen := make(map[string]bool)
	var names []string
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}

	enc := &Encoding{codes: make(map[string]float64, len(names))}
	if numeric {
		sort.Slice(names, func(i, j int) bool {
			a, _ := strconv.ParseFloat(names[i], 64)
			b, _ := strconv.ParseFloat(names[j], 64)
			return a < b
		})
		for _, n := range names {
			v, _ := strconv.ParseFloat(n, 64)
			enc.codes[n] = v
		}
	} else {
		sort.Strings(names)
		for i, n := range names {
			enc.codes[n] = float64(i)
		}
	}
	enc.Names = names

	y := make([]float64, len(cells))
	for i, c := range cells {
		y[i] = enc.codes[strings.TrimSpace(c)]
	}
	return enc, y
}

// Categorical reports whether the labels were numbered 0..k-1 rather than
// kept at their numeric value.
func (e *Encoding) Categorical() bool {
	for i, n := range e.Names {
		if v, ok := e.codes[n]; !ok || v != float64(i) {
			return false
		}
		if _, err := strconv.ParseFloat(n, 64); err == nil {
			return false
		}
	}
	return len(e.Names) > 0
}

// Labels returns code-to-name for reports.
func (e *Encoding) Labels() map[float64]string {
	out := make(map[float64]string, len(e.codes))
	for n, v := range e.codes {
		out[v] = n
	}
	return out
}

// Snap maps each continuous prediction to the nearest known class code.
func (e *Encoding) Snap(pred []float64) []float64 {
	codes := make([]float64, 0, len(e.codes))
	for _, v := range e.codes {
		codes = append(codes, v)
	}
	sort.Float64s(codes)
	out := make([]float64, len(pred))
	if len(codes) == 0 {
		copy(out, pred)
		return out
	}
	for i, p := range pred {
		best := codes[0]
		for _, c := range codes[1:] {
			if math.Abs(p-c) < math.Abs(p-best) {
				best = c
			}
		}
		out[i] = best
	}
	return out
}
