package store

import (
	"context"
	"fmt"
)

const (
	sqlInternPath = `INSERT INTO path (full_path) VALUES (?)
		ON CONFLICT(full_path) DO UPDATE SET full_path = excluded.full_path
		RETURNING id`

	sqlUpsertContent = `INSERT INTO content (algo, hash_hex, size_bytes)
		VALUES (?, ?, ?)
		ON CONFLICT(algo, hash_hex) DO NOTHING`
)

// InternPath returns the stable path-table id for fullPath, inserting it
// if not already present. Backed by a bounded LRU in the writer, so this
// is only reached on cache miss (spec §4.5, "path-id resolution cache").
func (s *SQLiteStore) InternPath(ctx context.Context, fullPath string) (int64, error) {
	var id int64

	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		return s.db.QueryRowContext(ctx, sqlInternPath, fullPath).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("store: intern path %q: %w", fullPath, err)
	}

	return id, nil
}

// UpsertContent records a deduplicated (algo, hashHex) -> size mapping.
// Idempotent: repeated observations of identical content across many
// files are collapsed to a single row.
func (s *SQLiteStore) UpsertContent(ctx context.Context, algo, hashHex string, size int64) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlUpsertContent, algo, hashHex, size)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert content %s:%s: %w", algo, hashHex, err)
	}

	return nil
}
