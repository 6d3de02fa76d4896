// Package store provides the keyed, TTL-bounded byte store shared by
// the conversation layer and the download endpoint.
//
// Two backends exist: Redis (remote, native TTL) and Memory
// (in-process, timed eviction). When Redis is configured the memory
// store acts as a read-through cache in front of it; when the Redis
// dial fails at startup the process demotes to memory-only for its
// lifetime. Values larger than ChunkSize are split transparently by
// the Chunked wrapper.
package store

import (
	"context"
	"log/slog"
	"time"
)

// Store is the TTL-bounded key-value contract. Get returns (nil, nil)
// for a missing or expired key; Delete is idempotent.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by backends holding a connection.
type Closer interface {
	Close() error
}

// Open builds the process-wide store: chunked over tiered
// (memory+Redis) when redisURL is set and reachable, chunked over
// memory only otherwise. The returned Memory store is exposed so the
// caller can schedule its sweep.
func Open(ctx context.Context, log *slog.Logger, redisURL string) (Store, *Memory) {
	mem := NewMemory()
	if redisURL == "" {
		return NewChunked(mem), mem
	}

	remote, err := NewRedis(ctx, redisURL)
	if err != nil {
		// Remote store unreachable: demote to the in-process fallback
		// for the process lifetime rather than crash.
		log.Warn("redis unavailable, using in-process store",
			slog.Any("error", err))
		return NewChunked(mem), mem
	}
	return NewChunked(NewTiered(mem, remote)), mem
}

// Tiered reads through the cache first, then the remote store, and
// writes to both. Deletes hit both backends.
type Tiered struct {
	cache  Store
	remote Store
}

// NewTiered builds a read-through tiered store.
func NewTiered(cache, remote Store) *Tiered {
	return &Tiered{cache: cache, remote: remote}
}

// Set writes to the remote store and mirrors into the cache.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = t.cache.Set(ctx, key, value, ttl)
	return nil
}

// Get returns the first non-nil of cache then remote.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := t.cache.Get(ctx, key); err == nil && value != nil {
		return value, nil
	}
	return t.remote.Get(ctx, key)
}

// Delete removes the key from both backends.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.cache.Delete(ctx, key)
	return t.remote.Delete(ctx, key)
}

// Close closes the remote backend if it holds a connection.
func (t *Tiered) Close() error {
	if c, ok := t.remote.(Closer); ok {
		return c.Close()
	}
	return nil
}
