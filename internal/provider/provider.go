// Package provider defines the uniform two-phase adapter contract over
// external enrichment providers and the registry the waterfall draws from.
package provider

import (
	"context"
	"sync"

	"github.com/adrata/intel-engine/internal/model"
)

// Adapter is the uniform interface to one enrichment provider. Search is
// cheap (search credits) and returns thin references; Collect is expensive
// (collect credits) and returns the full record. The orchestrator is
// expected to spend many searches to avoid wasted collects.
type Adapter interface {
	// Name returns the provider identifier used in waterfall config and the
	// credit ledger.
	Name() string

	// SearchCost and CollectCost are the credit amounts reserved per call.
	SearchCost() int
	CollectCost() int

	// Search returns candidate references for an identity query. An empty
	// slice means not found, which is not an error.
	Search(ctx context.Context, q model.IdentityQuery) ([]model.CandidateRef, error)

	// Collect fetches the full record behind a reference returned by this
	// adapter's Search.
	Collect(ctx context.Context, ref model.CandidateRef) (*model.CandidateRecord, error)
}

// Registry manages the available provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not registered.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
