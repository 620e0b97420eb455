package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the two generic tables backing cells and sets.
const schema = `
CREATE TABLE IF NOT EXISTS kv_cells (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_sets (
	set_key TEXT NOT NULL,
	member  TEXT NOT NULL,
	PRIMARY KEY (set_key, member)
);`

// PostgresBackend implements Backend using PostgreSQL as the source of
// truth. Each Batch is applied inside one database transaction.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a new PostgreSQL-backed substrate.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// EnsureSchema creates the kv tables if they are missing.
func (s *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_cells WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresBackend) Members(ctx context.Context, set string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT member FROM kv_sets WHERE set_key = $1 ORDER BY member`, set)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresBackend) Apply(ctx context.Context, b *Batch) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, k := range sortedKeys(b.Deletes) {
			if _, err := tx.Exec(ctx, `DELETE FROM kv_cells WHERE key = $1`, k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		for _, k := range sortedKeys(b.Puts) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO kv_cells (key, value) VALUES ($1, $2)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				k, b.Puts[k]); err != nil {
				return fmt.Errorf("put %s: %w", k, err)
			}
		}
		for _, set := range sortedKeys(b.Removes) {
			for _, m := range sortedKeys(b.Removes[set]) {
				if _, err := tx.Exec(ctx,
					`DELETE FROM kv_sets WHERE set_key = $1 AND member = $2`, set, m); err != nil {
					return fmt.Errorf("remove %s/%s: %w", set, m, err)
				}
			}
		}
		for _, set := range sortedKeys(b.Adds) {
			for _, m := range sortedKeys(b.Adds[set]) {
				if _, err := tx.Exec(ctx,
					`INSERT INTO kv_sets (set_key, member) VALUES ($1, $2)
					 ON CONFLICT DO NOTHING`, set, m); err != nil {
					return fmt.Errorf("add %s/%s: %w", set, m, err)
				}
			}
		}
		return nil
	})
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresBackend) Close() error { return nil }
