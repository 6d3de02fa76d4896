package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	timer     *time.Timer
}

// Memory is the in-process fallback store. Entries are evicted by a
// per-key timer at TTL expiry and defensively re-checked on read; a
// periodic Sweep reaps anything a timer missed. Not visible across
// processes and lost on restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is replaceable in tests for TTL assertions.
	now func() time.Time
}

// NewMemory builds an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Set stores value under key, replacing any previous entry and its timer.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{
		value:     stored,
		expiresAt: m.now().Add(ttl),
	}
	if ttl > 0 {
		entry.timer = time.AfterFunc(ttl, func() {
			m.evict(key)
		})
	}
	m.entries[key] = entry
	return nil
}

// Get returns the stored value, or nil when missing or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.evict(key)
		return nil, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Delete removes key; removing an absent key is a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.evict(key)
	return nil
}

// Sweep removes all expired entries and returns how many were reaped.
// Scheduled every ~30 minutes as a backstop for missed timers.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	reaped := 0
	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			if entry.timer != nil {
				entry.timer.Stop()
			}
			delete(m.entries, key)
			reaped++
		}
	}
	return reaped
}

// Len reports the number of live entries (expired ones included until
// their timer or a sweep fires).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(m.entries, key)
	}
}
