package store

import (
	"context"
	"fmt"
	"time"
)

const (
	sqlFileStateColumns = `fs.id, fs.root_path, fs.identity_type, fs.identity_value,
		fs.size_bytes, fs.created_at, fs.modified_at, fs.path_id, p.full_path,
		fs.file_key, fs.content_algo, fs.content_hash, fs.hash_status, fs.last_scan_id`

	sqlGetFileState = `SELECT ` + sqlFileStateColumns + `
		FROM file_state fs JOIN path p ON p.id = fs.path_id
		WHERE fs.root_path = ? AND fs.identity_type = ? AND fs.identity_value = ?`

	sqlUpsertFileState = `INSERT INTO file_state
		(root_path, identity_type, identity_value, size_bytes, created_at,
		 modified_at, path_id, file_key, content_algo, content_hash,
		 hash_status, last_scan_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root_path, identity_type, identity_value) DO UPDATE SET
			size_bytes   = excluded.size_bytes,
			modified_at  = excluded.modified_at,
			path_id      = excluded.path_id,
			file_key     = excluded.file_key,
			content_algo = excluded.content_algo,
			content_hash = excluded.content_hash,
			hash_status  = excluded.hash_status,
			last_scan_id = excluded.last_scan_id`

	sqlSelectStaleFiles = `SELECT identity_type, identity_value, size_bytes, modified_at, content_algo, content_hash
		FROM file_state WHERE root_path = ? AND last_scan_id < ?`

	sqlDeleteStaleFiles = `DELETE FROM file_state
		WHERE root_path = ? AND last_scan_id < ?`

	sqlCountFileStatesForRoot = `SELECT COUNT(*) FROM file_state WHERE root_path = ?`

	sqlListFileStatesForRoot = `SELECT ` + sqlFileStateColumns + `
		FROM file_state fs JOIN path p ON p.id = fs.path_id
		WHERE fs.root_path = ? LIMIT ?`
)

// GetFileState looks up the live snapshot row for one identity. Returns
// (nil, nil) when no row exists (a NEW file, not an error).
func (s *SQLiteStore) GetFileState(ctx context.Context, rootPath, identityType, identityValue string) (*FileState, error) {
	var fs FileState

	row := s.db.QueryRowContext(ctx, sqlGetFileState, rootPath, identityType, identityValue)

	err := row.Scan(&fs.ID, &fs.RootPath, &fs.IdentityType, &fs.IdentityValue,
		&fs.SizeBytes, &fs.CreatedAt, &fs.ModifiedAt, &fs.PathID, &fs.FullPath,
		&fs.FileKey, &fs.ContentAlgo, &fs.ContentHash, &fs.HashStatus, &fs.LastScanID)
	if isNoRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get file state: %w", err)
	}

	return &fs, nil
}

// UpsertFileState writes (or refreshes) the live snapshot row for one
// file identity. Called by the writer's batch flush as its own
// statement; the corresponding file_change insert is a separate call,
// not part of the same transaction.
func (s *SQLiteStore) UpsertFileState(ctx context.Context, fsRow FileState) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlUpsertFileState,
			fsRow.RootPath, fsRow.IdentityType, fsRow.IdentityValue, fsRow.SizeBytes,
			fsRow.CreatedAt, fsRow.ModifiedAt, fsRow.PathID, fsRow.FileKey,
			fsRow.ContentAlgo, fsRow.ContentHash, fsRow.HashStatus, fsRow.LastScanID)

		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert file state %s: %w", fsRow.IdentityValue, err)
	}

	return nil
}

// DeleteStaleFiles records a DELETED file_change row for, then removes,
// every file_state row under rootPath whose last_scan_id predates
// scanID: anything not observed this scan no longer exists (deletion
// reconciliation, spec §4.6). Skipped entirely by the caller when the
// in-memory index was truncated, since absence then might mean "not
// preloaded" rather than "deleted".
func (s *SQLiteStore) DeleteStaleFiles(ctx context.Context, scanID int64, rootPath string) (int64, error) {
	var n int64

	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op once committed

		rows, err := tx.QueryContext(ctx, sqlSelectStaleFiles, rootPath, scanID)
		if err != nil {
			return err
		}

		type stale struct {
			identityType, identityValue, contentAlgo, contentHash string
			sizeBytes, modifiedAt                                 int64
		}

		var staleRows []stale

		for rows.Next() {
			var r stale
			if err := rows.Scan(&r.identityType, &r.identityValue, &r.sizeBytes, &r.modifiedAt, &r.contentAlgo, &r.contentHash); err != nil {
				rows.Close()
				return err
			}

			staleRows = append(staleRows, r)
		}

		rowsErr := rows.Err()
		rows.Close()

		if rowsErr != nil {
			return rowsErr
		}

		for _, r := range staleRows {
			size, modAt, algo, hash := r.sizeBytes, r.modifiedAt, r.contentAlgo, r.contentHash

			if _, err := tx.ExecContext(ctx, sqlInsertFileChange,
				scanID, rootPath, r.identityType, r.identityValue, size, modAt, algo, hash, ReasonDeleted, time.Now().UnixNano(),
			); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, sqlDeleteStaleFiles, rootPath, scanID)
		if err != nil {
			return err
		}

		n, err = res.RowsAffected()
		if err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("store: delete stale files under %s: %w", rootPath, err)
	}

	return n, nil
}

// CountFileStatesForRoot reports how many live snapshot rows exist under
// rootPath. The classifier's index preload compares it with its
// maxRows limit to decide whether the snapshot is truncated, which
// gates deletion reconciliation.
func (s *SQLiteStore) CountFileStatesForRoot(ctx context.Context, rootPath string) (int64, error) {
	var n int64

	err := s.db.QueryRowContext(ctx, sqlCountFileStatesForRoot, rootPath).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count file states under %s: %w", rootPath, err)
	}

	return n, nil
}

// ListFileStatesForRoot bulk-loads up to limit live snapshot rows under
// rootPath, for the classifier's in-memory preload (spec §4.3).
func (s *SQLiteStore) ListFileStatesForRoot(ctx context.Context, rootPath string, limit int) ([]FileState, error) {
	rows, err := s.db.QueryContext(ctx, sqlListFileStatesForRoot, rootPath, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list file states under %s: %w", rootPath, err)
	}
	defer rows.Close()

	var out []FileState

	for rows.Next() {
		var fs FileState

		if err := rows.Scan(&fs.ID, &fs.RootPath, &fs.IdentityType, &fs.IdentityValue,
			&fs.SizeBytes, &fs.CreatedAt, &fs.ModifiedAt, &fs.PathID, &fs.FullPath,
			&fs.FileKey, &fs.ContentAlgo, &fs.ContentHash, &fs.HashStatus, &fs.LastScanID); err != nil {
			return nil, fmt.Errorf("store: scan file state under %s: %w", rootPath, err)
		}

		out = append(out, fs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list file states under %s: %w", rootPath, err)
	}

	return out, nil
}
