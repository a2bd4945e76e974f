package store

import (
	"context"
	"fmt"
)

const (
	sqlInsertFileChange = `INSERT INTO file_change
		(scan_id, root_path, identity_type, identity_value, size_bytes,
		 modified_at, content_algo, content_hash, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertFileHistory = `INSERT INTO file_history
		(scan_id, path_rel, hash_hex, size_bytes, status_event, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlListFileHistory = `SELECT id, scan_id, path_rel, hash_hex, size_bytes, status_event, created_at
		FROM file_history WHERE path_rel = ?
		ORDER BY created_at DESC LIMIT ?`
)

// RecordFileChange appends one row to the file_change ledger. Never
// updated or deleted once written; the audit trail for one scan's
// classification decisions.
func (s *SQLiteStore) RecordFileChange(ctx context.Context, fc FileChange) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlInsertFileChange,
			fc.ScanID, fc.RootPath, fc.IdentityType, fc.IdentityValue, fc.SizeBytes,
			fc.ModifiedAt, fc.ContentAlgo, fc.ContentHash, fc.Reason, fc.CreatedAt)

		return err
	})
	if err != nil {
		return fmt.Errorf("store: record file change: %w", err)
	}

	return nil
}

// SnapshotToHistory appends one file_history row per manifest entry
// produced by a completed scan, classifying each as NEW or MODIFIED
// based on whether path_rel already has a prior history row (spec
// §4.7 "snapshotToHistory"). Returns the number of rows written.
func (s *SQLiteStore) SnapshotToHistory(ctx context.Context, scanID int64, entries []ManifestEntry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: snapshot to history begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	existsStmt, err := tx.PrepareContext(ctx, `SELECT 1 FROM file_history WHERE path_rel = ? LIMIT 1`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare history exists check: %w", err)
	}
	defer existsStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, sqlInsertFileHistory)
	if err != nil {
		return 0, fmt.Errorf("store: prepare history insert: %w", err)
	}
	defer insertStmt.Close()

	var n int64

	for _, e := range entries {
		var dummy int

		err := existsStmt.QueryRowContext(ctx, e.PathRel).Scan(&dummy)

		statusEvent := HistoryNew
		if err == nil {
			statusEvent = HistoryModified
		} else if !isNoRows(err) {
			return 0, fmt.Errorf("store: checking history existence for %s: %w", e.PathRel, err)
		}

		if _, err := insertStmt.ExecContext(ctx, scanID, e.PathRel, e.HashHex, e.SizeBytes, statusEvent, e.ModifiedAt); err != nil {
			return 0, fmt.Errorf("store: inserting history row for %s: %w", e.PathRel, err)
		}

		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit snapshot to history: %w", err)
	}

	return n, nil
}

// ListFileHistory returns the most recent history rows for pathRel,
// newest first, bounded by limit.
func (s *SQLiteStore) ListFileHistory(ctx context.Context, pathRel string, limit int) ([]FileHistory, error) {
	rows, err := s.db.QueryContext(ctx, sqlListFileHistory, pathRel, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list file history for %s: %w", pathRel, err)
	}
	defer rows.Close()

	var out []FileHistory

	for rows.Next() {
		var h FileHistory
		if err := rows.Scan(&h.ID, &h.ScanID, &h.PathRel, &h.HashHex, &h.SizeBytes, &h.StatusEvent, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan file history row: %w", err)
		}

		out = append(out, h)
	}

	return out, rows.Err()
}
