package store

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestChunkedSmallValuePassthrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	if err := c.Set(ctx, "k", []byte("small"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mem.Len() != 1 {
		t.Fatalf("small value should be one entry, got %d", mem.Len())
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "small" {
		t.Fatalf("get = %q, %v", got, err)
	}
}

func TestChunkedLargeValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	// Three chunks plus a remainder.
	value := bytes.Repeat([]byte("abcdefgh"), (3*ChunkSize+1000)/8)
	if err := c.Set(ctx, "big", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if direct, _ := mem.Get(ctx, "big"); direct != nil {
		t.Fatal("large value must not be stored under the base key")
	}
	if meta, _ := mem.Get(ctx, "big:meta"); meta == nil {
		t.Fatal("meta record missing")
	}

	got, err := c.Get(ctx, "big")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(value))
	}
}

func TestChunkedDeleteCleansEverything(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	value := bytes.Repeat([]byte{0xAB}, ChunkSize*2+17)
	if err := c.Set(ctx, "big", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mem.Len() == 0 {
		t.Fatal("expected chunk entries")
	}

	if err := c.Delete(ctx, "big"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("delete left %d entries behind", mem.Len())
	}
	if got, _ := c.Get(ctx, "big"); got != nil {
		t.Fatal("deleted value still readable")
	}
}

func TestChunkedMissingChunkMeansMissing(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	value := bytes.Repeat([]byte{0x01}, ChunkSize+1)
	if err := c.Set(ctx, "big", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = mem.Delete(ctx, "big:chunk:1")

	if got, _ := c.Get(ctx, "big"); got != nil {
		t.Fatal("partially evicted value must read as missing")
	}
}

func TestChunkedOverwriteLargeWithSmall(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	large := bytes.Repeat([]byte{0xAB}, ChunkSize+100)
	if err := c.Set(ctx, "k", large, time.Minute); err != nil {
		t.Fatalf("set large: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("small"), time.Minute); err != nil {
		t.Fatalf("set small: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "small" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if mem.Len() != 1 {
		t.Fatalf("overwrite left %d entries, want 1", mem.Len())
	}
	if meta, _ := mem.Get(ctx, metaKey("k")); meta != nil {
		t.Fatal("stale meta record survived the overwrite")
	}
}

func TestChunkedOverwriteSmallWithLarge(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewChunked(mem)

	if err := c.Set(ctx, "k", []byte("small"), time.Minute); err != nil {
		t.Fatalf("set small: %v", err)
	}
	large := bytes.Repeat([]byte{0xCD}, ChunkSize+100)
	if err := c.Set(ctx, "k", large, time.Minute); err != nil {
		t.Fatalf("set large: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil || !bytes.Equal(got, large) {
		t.Fatalf("get returned %d bytes, err %v; want the new large value", len(got), err)
	}
	if direct, _ := mem.Get(ctx, "k"); direct != nil {
		t.Fatal("stale direct value survived the overwrite")
	}
}

func TestTieredReadThrough(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory()
	remote := NewMemory()
	tiered := NewTiered(cache, remote)

	// Value present only remotely, e.g. after a process restart.
	_ = remote.Set(ctx, "k", []byte("v"), time.Minute)
	got, err := tiered.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}

	// Writes land in both tiers.
	_ = tiered.Set(ctx, "w", []byte("x"), time.Minute)
	if got, _ := cache.Get(ctx, "w"); string(got) != "x" {
		t.Fatal("write did not reach the cache")
	}
	if got, _ := remote.Get(ctx, "w"); string(got) != "x" {
		t.Fatal("write did not reach the remote")
	}

	// Delete clears both.
	_ = tiered.Delete(ctx, "w")
	if got, _ := cache.Get(ctx, "w"); got != nil {
		t.Fatal("delete missed the cache")
	}
	if got, _ := remote.Get(ctx, "w"); got != nil {
		t.Fatal("delete missed the remote")
	}
}
