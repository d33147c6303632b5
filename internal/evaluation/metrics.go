// Package evaluation computes model quality metrics, ranks metrics by their
// better direction, and builds reproducible train/test partitions.
package evaluation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Metric names.
const (
	MSE       = "mse"
	RMSE      = "rmse"
	MAE       = "mae"
	R2        = "r2_score"
	Accuracy  = "accuracy"
	Precision = "precision"
	Recall    = "recall"
	F1        = "f1_score"
)

var aliases = map[string]string{
	"f1": F1,
	"r2": R2,
}

// higherIsBetter is keyed by canonical metric name.
var higherIsBetter = map[string]bool{
	Accuracy:  true,
	Precision: true,
	Recall:    true,
	F1:        true,
	R2:        true,
	MSE:       false,
	MAE:       false,
	RMSE:      false,
}

// RegressionMetrics and ClassificationMetrics list the metrics of each family.
var (
	RegressionMetrics     = []string{MSE, RMSE, MAE, R2}
	ClassificationMetrics = []string{Accuracy, Precision, Recall, F1}
)

// ErrLengthMismatch is returned when truth and prediction slices differ in length.
var ErrLengthMismatch = errors.New("y_true and y_pred lengths differ")

// Canonical maps an alias such as "f1" to its canonical metric name.
func Canonical(metric string) string {
	if c, ok := aliases[metric]; ok {
		return c
	}
	return metric
}

// Known reports whether metric (or its alias) is a supported metric name.
func Known(metric string) bool {
	_, ok := higherIsBetter[Canonical(metric)]
	return ok
}

// HigherIsBetter reports the better direction of a metric. ok is false for an
// unknown metric.
func HigherIsBetter(metric string) (higher, ok bool) {
	higher, ok = higherIsBetter[Canonical(metric)]
	return higher, ok
}

// Better reports whether score a beats score b under metric's direction.
func Better(metric string, a, b float64) bool {
	higher, _ := HigherIsBetter(metric)
	if higher {
		return a > b
	}
	return a < b
}

// IsRegressionMetric reports whether metric belongs to the error family or r2.
func IsRegressionMetric(metric string) bool {
	switch Canonical(metric) {
	case MSE, RMSE, MAE, R2:
		return true
	}
	return false
}

// Score computes a single named metric.
func Score(metric string, yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, ErrLengthMismatch
	}
	if len(yTrue) == 0 {
		return 0, errors.New("no samples to score")
	}
	switch Canonical(metric) {
	case MSE:
		return meanSquaredError(yTrue, yPred), nil
	case RMSE:
		return math.Sqrt(meanSquaredError(yTrue, yPred)), nil
	case MAE:
		return meanAbsoluteError(yTrue, yPred), nil
	case R2:
		return r2Score(yTrue, yPred), nil
	case Accuracy:
		return accuracy(yTrue, yPred), nil
	case Precision:
		return weighted(yTrue, yPred).Precision, nil
	case Recall:
		return weighted(yTrue, yPred).Recall, nil
	case F1:
		return weighted(yTrue, yPred).F1Score, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

// Regression returns mse, rmse, mae and r2_score.
func Regression(yTrue, yPred []float64) (map[string]float64, error) {
	return scoreAll(RegressionMetrics, yTrue, yPred)
}

// Classification returns accuracy and support-weighted precision, recall and
// f1_score. Classes without predictions score zero.
func Classification(yTrue, yPred []float64) (map[string]float64, error) {
	return scoreAll(ClassificationMetrics, yTrue, yPred)
}

func scoreAll(metrics []string, yTrue, yPred []float64) (map[string]float64, error) {
	out := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		v, err := Score(m, yTrue, yPred)
		if err != nil {
			return nil, err
		}
		out[m] = v
	}
	return out, nil
}

func meanSquaredError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// r2Score follows the usual convention for a constant target: 1 for a perfect
// fit, 0 otherwise.
func r2Score(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)
	var ssRes, ssTot float64
	for i := range yTrue {
		ssRes += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		ssTot += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func accuracy(yTrue, yPred []float64) float64 {
	var hits int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

type classCounts struct {
	tp, fp, support int
}

// labelsOf returns the sorted union of labels in both slices.
func labelsOf(yTrue, yPred []float64) []float64 {
	seen := make(map[float64]bool)
	var labels []float64
	for _, s := range [][]float64{yTrue, yPred} {
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				labels = append(labels, v)
			}
		}
	}
	sort.Float64s(labels)
	return labels
}

func countClasses(yTrue, yPred []float64) map[float64]*classCounts {
	counts := make(map[float64]*classCounts)
	get := func(l float64) *classCounts {
		c, ok := counts[l]
		if !ok {
			c = &classCounts{}
			counts[l] = c
		}
		return c
	}
	for i := range yTrue {
		get(yTrue[i]).support++
		if yTrue[i] == yPred[i] {
			get(yTrue[i]).tp++
		} else {
			get(yPred[i]).fp++
		}
	}
	return counts
}

func (c *classCounts) metrics() (precision, recall, f1 float64) {
	if c.tp+c.fp > 0 {
		precision = float64(c.tp) / float64(c.tp+c.fp)
	}
	if c.support > 0 {
		recall = float64(c.tp) / float64(c.support)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

type averages struct {
	Precision, Recall, F1Score float64
}

func weighted(yTrue, yPred []float64) averages {
	counts := countClasses(yTrue, yPred)
	var avg averages
	total := float64(len(yTrue))
	for _, c := range counts {
		if c.support == 0 {
			continue
		}
		p, r, f := c.metrics()
		w := float64(c.support) / total
		avg.Precision += w * p
		avg.Recall += w * r
		avg.F1Score += w * f
	}
	return avg
}

// LabelString renders a class label the way reports key it.
func LabelString(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
