package model

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a named collection of models that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	models map[string]Model
	mu     sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]Model),
	}
}

// NewDefaultRegistry returns a Registry holding the built-in models, all
// sharing c.
func NewDefaultRegistry(c Coefficients) *Registry {
	r := NewRegistry()
	r.Register(NewReference(c))
	r.Register(NewBookWalk(c))
	return r
}

// Register adds m under its own name, replacing any model already there.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name()] = m
}

// Get retrieves a model by name.
func (r *Registry) Get(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("model %q: not registered", name)
	}
	return m, nil
}

// List returns the names of all registered models in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
