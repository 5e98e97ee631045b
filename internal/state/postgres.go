package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs Store with the kv_artifacts table. It holds the
// long-lived audit payloads (365 day TTL) that do not belong in Redis.
// Expired rows are filtered on read and overwritten on write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `
SELECT value
FROM kv_artifacts
WHERE key = $1 AND expires_at > now()
LIMIT 1
`
	var value string
	if err := s.pool.QueryRow(ctx, q, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	const q = `
INSERT INTO kv_artifacts (key, value, expires_at)
VALUES ($1, $2, now() + $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
`
	if _, err := s.pool.Exec(ctx, q, key, value, ttl); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Purge removes expired rows. The reconciler calls it once per tick.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM kv_artifacts WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("kv purge: %w", err)
	}
	return cmd.RowsAffected(), nil
}
