// Package persistence defines the pluggable storage contract signal
// rows are recovered from and written to (spec.md §4.13). Concrete
// adapters live in subpackages (file, redisstore, sqlstore); tests
// substitute the in-memory NoOp adapter.
package persistence

import "context"

// Adapter is the storage contract spec.md §4.13 requires. Entity ids
// for signal rows are "strategyName:symbol". Implementations must be
// safe for concurrent calls keyed by distinct entity ids; callers
// serialize writes to the same id via the per-symbol lock held around
// persistence in internal/strategyclient, not the adapter itself.
type Adapter interface {
	// WaitForInit prepares the adapter for use (opening files,
	// connecting, migrating schema). initial indicates this is the
	// process's first call across all entities, letting an adapter
	// perform one-time setup. Idempotent.
	WaitForInit(ctx context.Context, initial bool) error

	ReadValue(ctx context.Context, entityID string) ([]byte, error)
	HasValue(ctx context.Context, entityID string) (bool, error)
	WriteValue(ctx context.Context, entityID string, value []byte) error
	RemoveValue(ctx context.Context, entityID string) error

	// Values returns every stored value. Keys returns every stored
	// entity id. Both are eagerly materialized slices rather than the
	// async iterators of the source design — idiomatic Go has no
	// native async-iterator primitive, and callers here only ever
	// need the full set (crash-recovery sweep, report export).
	Values(ctx context.Context) ([][]byte, error)
	Keys(ctx context.Context) ([]string, error)
}

// Key builds the "strategyName:symbol" entity id spec.md §4.13
// mandates for signal rows.
func Key(strategyName, symbol string) string {
	return strategyName + ":" + symbol
}
