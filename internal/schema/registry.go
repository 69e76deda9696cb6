// Package schema implements the engine's named, immutable schema
// registries (exchange/strategy/frame/risk/walker/sizing/optimizer).
// Each kind gets its own independent Registry instance; registration is
// write-once (duplicate names are rejected), override is an explicit
// partial replace, and lookups are safe for concurrent use.
package schema

import (
	"fmt"
	"sync"

	"github.com/guyghost/backtestkit/internal/enginerr"
)

// Validatable is implemented by every schema kind; Validate performs the
// shallow presence/type checks described in spec.md §4.1. Deeper
// cross-reference validation (a strategy naming a risk schema that must
// itself exist) happens lazily at execution start, in the command layer,
// not here.
type Validatable interface {
	Validate() error
}

// Registry is a generic, name-keyed, mutex-guarded store for one schema
// kind.
type Registry[T Validatable] struct {
	mu    sync.RWMutex
	items map[string]T
}

// New creates an empty registry for schema kind T.
func New[T Validatable]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds a new schema under name. Fails if the shallow validation
// rejects it or the name is already registered.
func (r *Registry[T]) Register(name string, s T) error {
	if name == "" {
		return fmt.Errorf("%w: schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schema %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("%w: %q", enginerr.ErrDuplicateSchema, name)
	}
	r.items[name] = s
	return nil
}

// Override replaces an already-registered schema with a new value built
// by merge, which receives the existing schema and must return the
// merged replacement. Fails if name was never registered.
func (r *Registry[T]) Override(name string, merge func(existing T) T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[name]
	if !ok {
		return fmt.Errorf("%w: %q", enginerr.ErrSchemaMissing, name)
	}

	merged := merge(existing)
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("schema %q: %w", name, err)
	}
	r.items[name] = merged
	return nil
}

// Get returns the schema registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", enginerr.ErrSchemaMissing, name)
	}
	return s, nil
}

// List returns every registered name, in no particular order.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	return names
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[name]
	return ok
}
