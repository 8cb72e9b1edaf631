package engine

import (
	"fmt"
	"sort"
)

// Registry maps category+name to a statically typed engine function.
// It is populated once at startup and only read afterwards.
type Registry struct {
	engines map[Category]map[string]Invoke
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[Category]map[string]Invoke)}
}

// Register binds name to fn for each of the given categories.
func (r *Registry) Register(name string, fn Invoke, categories ...Category) {
	for _, c := range categories {
		m, ok := r.engines[c]
		if !ok {
			m = make(map[string]Invoke)
			r.engines[c] = m
		}
		m[name] = fn
	}
}

// Lookup returns the engine registered under name for category c.
func (r *Registry) Lookup(c Category, name string) (Invoke, error) {
	fn, ok := r.engines[c][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEngine, c, name)
	}
	return fn, nil
}

// Names lists the engines registered for c, sorted.
func (r *Registry) Names(c Category) []string {
	names := make([]string, 0, len(r.engines[c]))
	for n := range r.engines[c] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
