package provider

import (
	"errors"
	"sort"
	"sync"
)

// Registry holds the configured adapters and produces ordered candidate
// lists per capability. It is process-scoped state owned by whoever wires
// the service together and passed explicitly into the orchestrator.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. Nil adapters are ignored.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Candidates returns the adapters declaring the given capability, sorted
// by ascending priority rank. Ties break by name so the order is
// deterministic across runs.
func (r *Registry) Candidates(c Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Adapter
	for _, a := range r.adapters {
		if a.Capabilities().Has(c) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Close closes every registered adapter, returning the joined errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, a := range r.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.adapters = nil
	return errors.Join(errs...)
}
