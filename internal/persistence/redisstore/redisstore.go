// Package redisstore implements the persistence Adapter on top of
// go-redis (spec.md §4.13), grounded on the same client-wrap and
// JSON-blob-per-key idiom as the pack's own Redis cache layer.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/guyghost/backtestkit/internal/persistence"
)

// Adapter stores each entity as a string key under keyPrefix.
type Adapter struct {
	client    *redis.Client
	keyPrefix string
}

// New wraps an already-constructed *redis.Client. keyPrefix namespaces
// this adapter's keys (e.g. "backtestkit:signals:").
func New(client *redis.Client, keyPrefix string) *Adapter {
	return &Adapter{client: client, keyPrefix: keyPrefix}
}

var _ persistence.Adapter = (*Adapter)(nil)

func (a *Adapter) key(entityID string) string {
	return a.keyPrefix + entityID
}

func (a *Adapter) WaitForInit(ctx context.Context, initial bool) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstore: ping: %w", err)
	}
	return nil
}

func (a *Adapter) ReadValue(ctx context.Context, entityID string) ([]byte, error) {
	v, err := a.client.Get(ctx, a.key(entityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *Adapter) HasValue(ctx context.Context, entityID string) (bool, error) {
	n, err := a.client.Exists(ctx, a.key(entityID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Adapter) WriteValue(ctx context.Context, entityID string, value []byte) error {
	return a.client.Set(ctx, a.key(entityID), value, 0).Err()
}

func (a *Adapter) RemoveValue(ctx context.Context, entityID string) error {
	return a.client.Del(ctx, a.key(entityID)).Err()
}

func (a *Adapter) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := a.client.Scan(ctx, 0, a.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (a *Adapter) Values(ctx context.Context) ([][]byte, error) {
	keys, err := a.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		v, err := a.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	keys, err := a.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k[len(a.keyPrefix):]
	}
	return out, nil
}
