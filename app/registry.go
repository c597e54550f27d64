package app

import (
	"fmt"
	"sync"

	"bnla/internal/errors"
)

// Registry maps experiment names to their results. Each name is bound once.
type Registry struct {
	mu      sync.RWMutex
	results map[string]*ExperimentResult
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{results: make(map[string]*ExperimentResult)}
}

// Add binds res under its name; a name that is already bound is rejected.
func (r *Registry) Add(res *ExperimentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[res.Name]; ok {
		return errors.InvalidInput(fmt.Sprintf("experiment %q already has a result", res.Name))
	}
	r.results[res.Name] = res
	r.order = append(r.order, res.Name)
	return nil
}

// Get returns the result bound to name.
func (r *Registry) Get(name string) (*ExperimentResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[name]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("experiment %q", name))
	}
	return res, nil
}

// Names returns the bound names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Results returns the results in insertion order.
func (r *Registry) Results() []*ExperimentResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ExperimentResult, len(r.order))
	for i, name := range r.order {
		out[i] = r.results[name]
	}
	return out
}

// Len returns the number of bound results.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
