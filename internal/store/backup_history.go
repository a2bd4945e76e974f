package store

import (
	"context"
	"fmt"
)

const (
	sqlInsertBackupHistory = `INSERT INTO backup_history
		(started_at, status, backup_type, root_path, dest_path, files_processed, errors, scan_id, message)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, NULL)`

	sqlUpdateBackupHistory = `UPDATE backup_history
		SET status = ?, finished_at = ?, files_processed = ?, errors = ?, message = ?
		WHERE id = ?`

	sqlListBackupHistory = `SELECT id, started_at, finished_at, status, backup_type,
		root_path, dest_path, files_processed, errors, scan_id, message
		FROM backup_history ORDER BY started_at DESC LIMIT ?`
)

// Backup history listing caps (spec §4.1): default page size and the
// hard ceiling no caller-supplied limit may exceed.
const (
	DefaultBackupHistoryLimit = 20
	MaxBackupHistoryLimit     = 200
)

// clampHistoryLimit bounds limit to [1, MaxBackupHistoryLimit], treating
// a non-positive value as DefaultBackupHistoryLimit.
func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultBackupHistoryLimit
	}

	if limit > MaxBackupHistoryLimit {
		return MaxBackupHistoryLimit
	}

	return limit
}

// RecordBackupHistory inserts a new RUNNING backup_history row (one per
// scan or restore invocation) and returns its id.
func (s *SQLiteStore) RecordBackupHistory(ctx context.Context, row BackupHistoryRow) (int64, error) {
	var id int64

	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		res, err := s.db.ExecContext(ctx, sqlInsertBackupHistory,
			row.StartedAt, BackupStatusRunning, row.BackupType, row.RootPath, row.DestPath, row.ScanID)
		if err != nil {
			return err
		}

		id, err = res.LastInsertId()

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: record backup history: %w", err)
	}

	return id, nil
}

// UpdateBackupHistory transitions a backup_history row to a terminal
// status with final counters.
func (s *SQLiteStore) UpdateBackupHistory(ctx context.Context, id int64, status string, finishedAt int64, filesProcessed, errs int64, msg *string) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlUpdateBackupHistory, status, finishedAt, filesProcessed, errs, msg, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update backup history %d: %w", id, err)
	}

	return nil
}

// ListBackupHistory returns the most recent backup_history rows, newest
// first, for the CLI `history` command and status surfacing.
func (s *SQLiteStore) ListBackupHistory(ctx context.Context, limit int) ([]BackupHistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, sqlListBackupHistory, clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list backup history: %w", err)
	}
	defer rows.Close()

	var out []BackupHistoryRow

	for rows.Next() {
		var r BackupHistoryRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.BackupType,
			&r.RootPath, &r.DestPath, &r.FilesProcessed, &r.Errors, &r.ScanID, &r.Message); err != nil {
			return nil, fmt.Errorf("store: scan backup history row: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}
