package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore indexes archived price snapshots by day.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// RecordSnapshot notes that a snapshot for day was written to objectKey.
func (s *SnapshotStore) RecordSnapshot(ctx context.Context, day, objectKey string, tokenCount int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_snapshots (day, object_key, token_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (day, object_key) DO UPDATE SET token_count = EXCLUDED.token_count`,
		day, objectKey, tokenCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: record snapshot %s: %w", day, err)
	}
	return nil
}

// SnapshotKeys returns the archived object keys for day.
func (s *SnapshotStore) SnapshotKeys(ctx context.Context, day string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT object_key FROM price_snapshots WHERE day = $1 ORDER BY created_at`, day)
	if err != nil {
		return nil, fmt.Errorf("postgres: query snapshots %s: %w", day, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
