// Package store defines the persistence substrate for the settlement engine.
// Backends include PostgreSQL (source of truth), LevelDB (embedded), Redis
// (read-through cache over a primary) and in-memory (for testing).
//
// Every engine operation runs inside Store.Atomic: reads go through an
// overlay transaction, writes are staged, and the backend commits the whole
// staged batch as one unit. A failed operation leaves no trace.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned for missing cells.
var ErrNotFound = errors.New("store: not found")

// Backend is the key/value substrate: single-value cells plus unordered
// string sets, with atomic multi-key commit.
type Backend interface {
	// Get returns the cell value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Members returns the members of a set in ascending order.
	Members(ctx context.Context, set string) ([]string, error)

	// Apply commits a batch atomically: all of it or none of it.
	Apply(ctx context.Context, batch *Batch) error

	// Close releases backend resources.
	Close() error
}

// Store serializes operations over a backend. Uses a mutex for a single
// logical writer; the backend guarantees each commit is all-or-nothing.
type Store struct {
	backend Backend
	mu      sync.Mutex
}

// New wraps a backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Atomic runs fn against a fresh overlay transaction and commits the staged
// writes only if fn returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(ctx, s.backend)
	if err := fn(tx); err != nil {
		return err
	}
	if tx.batch.Empty() {
		return nil
	}
	if err := s.backend.Apply(ctx, tx.batch); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// View runs fn against a read-only view. Staged writes are discarded.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(newTx(ctx, s.backend))
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
