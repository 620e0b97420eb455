package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedBackend wraps a primary Backend (PostgreSQL or LevelDB) with a
// Redis read-through cache for cells. Commits go to the primary and then
// invalidate the touched keys; reads check Redis first then fall back to
// the primary. Sets are not cached.
type CachedBackend struct {
	primary Backend
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedBackend creates a cached wrapper around a primary backend.
func NewCachedBackend(primary Backend, rdb *redis.Client, ttl time.Duration) *CachedBackend {
	return &CachedBackend{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedBackend) Apply(ctx context.Context, b *Batch) error {
	if err := s.primary.Apply(ctx, b); err != nil {
		return err
	}
	keys := b.CellKeys()
	if len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = cellCacheKey(k)
	}
	// Invalidate; next read will re-populate.
	if err := s.rdb.Del(ctx, cacheKeys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", len(cacheKeys), "err", err)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, cellCacheKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("cache read failed", "key", key, "err", err)
	}

	// Cache miss: read from primary.
	value, err := s.primary.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, cellCacheKey(key), value, s.ttl)
	return value, nil
}

// --- Passthrough (not cached) ---

func (s *CachedBackend) Members(ctx context.Context, set string) ([]string, error) {
	return s.primary.Members(ctx, set)
}

// Close closes the primary; the Redis client is owned by the caller.
func (s *CachedBackend) Close() error {
	return s.primary.Close()
}

func cellCacheKey(key string) string { return "settle:cell:" + key }
