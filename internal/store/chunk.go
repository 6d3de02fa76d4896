package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ChunkSize is the threshold above which a value is split. Keeps each
// stored value comfortably under provider proxy and pipeline limits.
const ChunkSize = 512 << 10

type chunkMeta struct {
	Chunked    bool `json:"chunked"`
	ChunkCount int  `json:"chunk_count"`
	Total      int  `json:"total"`
}

// Chunked wraps a backend so that large values are stored as
// fixed-size chunks under "<key>:chunk:<i>" plus a "<key>:meta"
// record. Reads and deletes reassemble and clean up transparently;
// callers never see the chunk keys.
type Chunked struct {
	backend Store
}

// NewChunked wraps backend with transparent large-value chunking.
func NewChunked(backend Store) *Chunked {
	return &Chunked{backend: backend}
}

// Set stores value directly when small, chunked otherwise. All chunks
// and the meta record share the same TTL. Overwriting removes the other
// representation so a prior value cannot shadow or outlive this one.
func (c *Chunked) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) <= ChunkSize {
		_ = c.deleteChunks(ctx, key)
		return c.backend.Set(ctx, key, value, ttl)
	}

	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear direct value: %w", err)
	}

	count := (len(value) + ChunkSize - 1) / ChunkSize
	for i := 0; i < count; i++ {
		start := i * ChunkSize
		end := min(start+ChunkSize, len(value))
		if err := c.backend.Set(ctx, chunkKey(key, i), value[start:end], ttl); err != nil {
			return fmt.Errorf("store chunk %d: %w", i, err)
		}
	}

	meta, err := json.Marshal(chunkMeta{Chunked: true, ChunkCount: count, Total: len(value)})
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, metaKey(key), meta, ttl)
}

// Get reads the direct value, or reconstructs a chunked one by
// concatenating chunks in index order. A missing chunk makes the whole
// value count as missing.
func (c *Chunked) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		return value, nil
	}

	raw, err := c.backend.Get(ctx, metaKey(key))
	if err != nil || raw == nil {
		return nil, err
	}
	var meta chunkMeta
	if err := json.Unmarshal(raw, &meta); err != nil || !meta.Chunked {
		return nil, nil
	}

	out := make([]byte, 0, meta.Total)
	for i := 0; i < meta.ChunkCount; i++ {
		chunk, err := c.backend.Get(ctx, chunkKey(key, i))
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			return nil, nil
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Delete removes the direct value, the meta record, and every chunk.
func (c *Chunked) Delete(ctx context.Context, key string) error {
	_ = c.deleteChunks(ctx, key)
	return c.backend.Delete(ctx, key)
}

// deleteChunks removes the chunked representation of key, if any.
func (c *Chunked) deleteChunks(ctx context.Context, key string) error {
	raw, err := c.backend.Get(ctx, metaKey(key))
	if err != nil || raw == nil {
		return err
	}
	var meta chunkMeta
	if json.Unmarshal(raw, &meta) == nil && meta.Chunked {
		for i := 0; i < meta.ChunkCount; i++ {
			_ = c.backend.Delete(ctx, chunkKey(key, i))
		}
	}
	return c.backend.Delete(ctx, metaKey(key))
}

// Close closes the wrapped backend if it holds a connection.
func (c *Chunked) Close() error {
	if closer, ok := c.backend.(Closer); ok {
		return closer.Close()
	}
	return nil
}

func chunkKey(key string, i int) string {
	return fmt.Sprintf("%s:chunk:%d", key, i)
}

func metaKey(key string) string {
	return key + ":meta"
}
