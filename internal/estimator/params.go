package estimator

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"

	"github.com/seantiz/crucible/internal/model"
)

// Params are the hyperparameters of an algorithm. Values decoded from JSON
// arrive as float64, so integer accessors accept integral floats.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// Int returns an integer hyperparameter.
func (p Params) Int(key string) (int, error) {
	switch v := p[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, model.Validationf("hyperparameter %q must be an integer, got %v", key, v)
		}
		return int(v), nil
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, model.Validationf("hyperparameter %q must be an integer, got %s", key, v)
		}
		return n, nil
	default:
		return 0, model.Validationf("hyperparameter %q must be an integer, got %T", key, v)
	}
}

// Float returns a numeric hyperparameter.
func (p Params) Float(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, model.Validationf("hyperparameter %q must be a number, got %s", key, v)
		}
		return f, nil
	default:
		return 0, model.Validationf("hyperparameter %q must be a number, got %T", key, v)
	}
}

// Bool returns a boolean hyperparameter.
func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key].(bool)
	if !ok {
		return false, model.Validationf("hyperparameter %q must be a boolean, got %T", key, p[key])
	}
	return v, nil
}

// maxFeatures resolves the max_features hyperparameter into a feature count
// for a dataset with n features. Accepted forms: "sqrt", "log2", a fraction in
// (0, 1], or an integer count greater than 1.
func maxFeatures(v any, n int) (int, error) {
	var k int
	switch t := v.(type) {
	case string:
		switch t {
		case "sqrt":
			k = int(math.Sqrt(float64(n)))
		case "log2":
			k = int(math.Log2(float64(n)))
		default:
			return 0, model.Validationf("max_features %q is not one of sqrt, log2", t)
		}
	case float64:
		switch {
		case t > 0 && t <= 1:
			k = int(t * float64(n))
		case t > 1 && t == math.Trunc(t):
			k = int(t)
		default:
			return 0, model.Validationf("max_features %v is out of range", t)
		}
	case int:
		if t < 1 {
			return 0, model.Validationf("max_features %d is out of range", t)
		}
		k = t
	default:
		return 0, model.Validationf("max_features must be a string or number, got %T", v)
	}
	return min(max(k, 1), n), nil
}
