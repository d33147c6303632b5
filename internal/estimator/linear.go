package estimator

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rcond is the relative singular value cutoff below which directions of the
// design matrix are treated as degenerate.
const rcond = 1e-12

// Linear is ordinary least squares regression solved by SVD, giving the
// minimum-norm solution when features are collinear.
type Linear struct {
	fitIntercept bool

	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

// NewLinear builds a linear regression from its hyperparameters.
func NewLinear(p Params) (Estimator, error) {
	fitIntercept, err := p.Bool("fit_intercept")
	if err != nil {
		return nil, err
	}
	return &Linear{fitIntercept: fitIntercept}, nil
}

func (l *Linear) Fit(X [][]float64, y []float64) error {
	features, err := checkTraining(X, y)
	if err != nil {
		return err
	}

	cols := features
	if l.fitIntercept {
		cols++
	}
	coef := make([]float64, features)
	intercept := 0.0
	if cols == 0 {
		l.Coef, l.Intercept = coef, intercept
		return nil
	}

	a := mat.NewDense(len(X), cols, nil)
	for i, row := range X {
		off := 0
		if l.fitIntercept {
			a.Set(i, 0, 1)
			off = 1
		}
		for j, v := range row {
			a.Set(i, j+off, v)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("least squares: SVD factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		if l.fitIntercept {
			intercept = stat.Mean(y, nil)
		}
		l.Coef, l.Intercept = coef, intercept
		return nil
	}

	w := mat.NewVecDense(cols, nil)
	svd.SolveVecTo(w, mat.NewVecDense(len(y), append([]float64(nil), y...)), rank)

	off := 0
	if l.fitIntercept {
		intercept = w.AtVec(0)
		off = 1
	}
	for j := range coef {
		coef[j] = w.AtVec(j + off)
	}
	l.Coef, l.Intercept = coef, intercept
	return nil
}

func (l *Linear) Predict(X [][]float64) ([]float64, error) {
	if l.Coef == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, len(l.Coef)); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := l.Intercept
		for j, x := range row {
			v += l.Coef[j] * x
		}
		out[i] = v
	}
	return out, nil
}

// Coefficients returns the fitted per-feature weights.
func (l *Linear) Coefficients() []float64 {
	return append([]float64(nil), l.Coef...)
}
