package estimator

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Algorithm string          `json:"algorithm"`
	Params    Params          `json:"params"`
	State     json.RawMessage `json:"state"`
}

// Encode serializes a fitted estimator together with the algorithm name and
// hyperparameters needed to rebuild it.
func (r *Registry) Encode(name string, params Params, e Estimator) ([]byte, error) {
	if !r.Supports(name) {
		return nil, fmt.Errorf("encode: unsupported algorithm %q", name)
	}
	state, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", name, err)
	}
	data, err := json.Marshal(envelope{Algorithm: name, Params: params, State: state})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return data, nil
}

// Decode rebuilds a fitted estimator from the output of Encode.
func (r *Registry) Decode(data []byte) (Estimator, string, Params, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", nil, fmt.Errorf("decode artifact: %w", err)
	}
	a, err := r.lookup(env.Algorithm)
	if err != nil {
		return nil, "", nil, fmt.Errorf("decode artifact: %w", err)
	}
	e, err := a.New(env.Params)
	if err != nil {
		return nil, "", nil, fmt.Errorf("decode %s: %w", env.Algorithm, err)
	}
	if err := json.Unmarshal(env.State, e); err != nil {
		return nil, "", nil, fmt.Errorf("decode %s state: %w", env.Algorithm, err)
	}
	return e, env.Algorithm, env.Params, nil
}
