package estimator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/crucible/internal/model"
)

// Tasks an algorithm is built for.
const (
	TaskRegression     = "regression"
	TaskClassification = "classification"
)

// Algorithm describes a registered algorithm: its default hyperparameters and
// a constructor taking the merged hyperparameters.
type Algorithm struct {
	Name     string
	Task     string
	Defaults Params
	New      func(p Params) (Estimator, error)
}

// AlgorithmInfo is the listing form of a registered algorithm.
type AlgorithmInfo struct {
	Name     string `json:"name"`
	Task     string `json:"task"`
	Defaults Params `json:"default_hyperparameters"`
}

// Registry holds the algorithms that training jobs may name.
type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
}

// NewRegistry creates an empty algorithm registry.
func NewRegistry() *Registry {
	return &Registry{
		algorithms: make(map[string]Algorithm),
	}
}

// Register adds an algorithm under its name, replacing any previous entry.
func (r *Registry) Register(a Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.algorithms[a.Name] = a
}

// Supports reports whether name is a registered algorithm.
func (r *Registry) Supports(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.algorithms[name]
	return ok
}

// Task returns the task of a registered algorithm.
func (r *Registry) Task(name string) (string, error) {
	a, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return a.Task, nil
}

// Build constructs an unfitted estimator. Overrides are merged over the
// algorithm's defaults; unknown keys and malformed values are validation
// errors. The merged hyperparameters are returned alongside the estimator.
func (r *Registry) Build(name string, overrides map[string]any) (Estimator, Params, error) {
	a, err := r.lookup(name)
	if err != nil {
		return nil, nil, err
	}

	params := a.Defaults.Clone()
	for k, v := range overrides {
		if _, ok := a.Defaults[k]; !ok {
			return nil, nil, model.Validationf("algorithm %q has no hyperparameter %q", name, k)
		}
		params[k] = v
	}

	e, err := a.New(params)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", name, err)
	}
	return e, params, nil
}

// List returns the registered algorithms sorted by name.
func (r *Registry) List() []AlgorithmInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]AlgorithmInfo, 0, len(r.algorithms))
	for _, a := range r.algorithms {
		infos = append(infos, AlgorithmInfo{
			Name:     a.Name,
			Task:     a.Task,
			Defaults: a.Defaults.Clone(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func (r *Registry) lookup(name string) (Algorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algorithms[name]
	if !ok {
		return Algorithm{}, model.Validationf("unsupported algorithm %q", name)
	}
	return a, nil
}
