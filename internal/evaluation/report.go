package evaluation

import (
	"errors"

	"github.com/seantiz/crucible/internal/model"
)

// ConfusionMatrix counts predictions per (true, predicted) label pair. Rows are
// true labels and columns predicted labels, both in the order of labels.
func ConfusionMatrix(yTrue, yPred []float64) (labels []float64, matrix [][]int, err error) {
	if len(yTrue) != len(yPred) {
		return nil, nil, ErrLengthMismatch
	}
	labels = labelsOf(yTrue, yPred)
	pos := make(map[float64]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	matrix = make([][]int, len(labels))
	for i := range matrix {
		matrix[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		matrix[pos[yTrue[i]]][pos[yPred[i]]]++
	}
	return labels, matrix, nil
}

// Report builds a per-class report with macro and support-weighted averages.
// names maps a label to its display name; labels without a name are rendered
// with LabelString.
func Report(yTrue, yPred []float64, names map[float64]string) (*model.ClassificationReport, error) {
	if len(yTrue) != len(yPred) {
		return nil, ErrLengthMismatch
	}
	if len(yTrue) == 0 {
		return nil, errors.New("no samples to report")
	}

	counts := countClasses(yTrue, yPred)
	labels := labelsOf(yTrue, yPred)
	report := &model.ClassificationReport{
		Classes:  make(map[string]model.ClassMetrics, len(labels)),
		Accuracy: accuracy(yTrue, yPred),
	}

	total := float64(len(yTrue))
	for _, l := range labels {
		c := counts[l]
		p, r, f := c.metrics()
		name, ok := names[l]
		if !ok {
			name = LabelString(l)
		}
		report.Classes[name] = model.ClassMetrics{Precision: p, Recall: r, F1Score: f, Support: c.support}

		n := float64(len(labels))
		report.MacroAvg.Precision += p / n
		report.MacroAvg.Recall += r / n
		report.MacroAvg.F1Score += f / n

		w := float64(c.support) / total
		report.WeightedAvg.Precision += w * p
		report.WeightedAvg.Recall += w * r
		report.WeightedAvg.F1Score += w * f
	}
	report.MacroAvg.Support = len(yTrue)
	report.WeightedAvg.Support = len(yTrue)
	return report, nil
}
