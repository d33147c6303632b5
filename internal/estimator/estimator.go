// Package estimator defines the fit/predict capability that the pipelines
// train and score, the optional capabilities some estimators expose, and the
// registry that builds estimators by algorithm name.
package estimator

import (
	"errors"
	"fmt"
	"math"
)

// Estimator is a model that can be fitted to a numeric feature matrix and
// then predict one value per row.
type Estimator interface {
	// Fit trains the estimator on X (rows by features) and targets y.
	Fit(X [][]float64, y []float64) error

	// Predict returns one prediction per row of X.
	Predict(X [][]float64) ([]float64, error)
}

// ImportanceReporter is implemented by estimators that report per-feature
// importances in feature order. Importances sum to 1 unless all are zero.
type ImportanceReporter interface {
	FeatureImportances() []float64
}

// CoefficientReporter is implemented by linear estimators.
type CoefficientReporter interface {
	Coefficients() []float64
}

// EnsembleReporter is implemented by estimators made of independently
// predicting members. The result is indexed [member][row].
type EnsembleReporter interface {
	MemberPredictions(X [][]float64) ([][]float64, error)
}

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("estimator is not fitted")

func checkTraining(X [][]float64, y []float64) (features int, err error) {
	if len(X) == 0 {
		return 0, errors.New("no training rows")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%d rows but %d targets", len(X), len(y))
	}
	features, err = checkMatrix(X, len(X[0]))
	if err != nil {
		return 0, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("target %d is not finite", i)
		}
	}
	return features, nil
}

func checkMatrix(X [][]float64, features int) (int, error) {
	for i, row := range X {
		if len(row) != features {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), features)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("row %d feature %d is not finite", i, j)
			}
		}
	}
	return features, nil
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	out := make([]float64, len(v))
	if sum == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
