// Package connection implements the generic per-name-tuple client cache
// described in spec.md §4.3: on cache miss, a client is constructed
// (typically by resolving schemas from one or more internal/schema
// registries and calling a constructor); on hit, the cached instance is
// returned. Clear evicts a single key or the whole cache.
package connection

import (
	"strings"
	"sync"
)

// Cache memoizes client instances of type T by the string key built from
// their name tuple (see Key).
type Cache[T any] struct {
	mu      sync.Mutex
	clients map[string]T
}

// New creates an empty client cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{clients: make(map[string]T)}
}

// Key joins a client's name tuple (e.g. riskName, exchangeName,
// frameName, mode) into the cache's lookup key.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Get returns the cached client for key, constructing it via build on a
// miss. build is invoked at most once per key even under concurrent
// callers racing on the same key, because construction happens under the
// cache's lock — construction is expected to be cheap (schema lookups
// plus a lightweight constructor), per spec.md §4.3.
func (c *Cache[T]) Get(key string, build func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.clients[key]; ok {
		return existing, nil
	}

	built, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	c.clients[key] = built
	return built, nil
}

// Clear evicts a single key. A no-op if key is not cached.
func (c *Cache[T]) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, key)
}

// ClearAll evicts every cached client.
func (c *Cache[T]) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[string]T)
}

// Len reports the number of cached clients.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
