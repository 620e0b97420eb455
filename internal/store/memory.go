package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend implements Backend with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryBackend struct {
	mu    sync.RWMutex
	cells map[string][]byte
	sets  map[string]map[string]struct{}
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		cells: make(map[string][]byte),
		sets:  make(map[string]map[string]struct{}),
	}
}

// NewMemoryStore is a Store over a fresh MemoryBackend.
func NewMemoryStore() *Store {
	return New(NewMemoryBackend())
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.cells[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	// Return a copy to avoid external mutation.
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Members(_ context.Context, set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.sets[set]))
	for member := range m.sets[set] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryBackend) Apply(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range b.Deletes {
		delete(m.cells, k)
	}
	for k, v := range b.Puts {
		m.cells[k] = append([]byte(nil), v...)
	}
	for set, members := range b.Removes {
		for member := range members {
			delete(m.sets[set], member)
		}
		if len(m.sets[set]) == 0 {
			delete(m.sets, set)
		}
	}
	for set, members := range b.Adds {
		s, ok := m.sets[set]
		if !ok {
			s = make(map[string]struct{}, len(members))
			m.sets[set] = s
		}
		for member := range members {
			s[member] = struct{}{}
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of stored cells; handy for leak assertions in tests.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cells)
}
