package store

import (
	"context"
	"fmt"
)

const (
	sqlInsertScan = `INSERT INTO scans (root_path, started_at, status)
		VALUES (?, ?, ?)`

	sqlFinishScan = `UPDATE scans
		SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ?`

	sqlGetScan = `SELECT id, root_path, started_at, finished_at, status, error_message
		FROM scans WHERE id = ?`

	sqlRecoverStaleScans = `SELECT id, root_path, started_at, finished_at, status, error_message
		FROM scans WHERE status = ? AND started_at < ?`

	sqlMarkScanStale = `UPDATE scans
		SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ? AND status = ?`
)

// CreateScan inserts a new RUNNING scan row and returns its id.
func (s *SQLiteStore) CreateScan(ctx context.Context, rootPath string, startedAt int64) (int64, error) {
	var id int64

	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		res, err := s.db.ExecContext(ctx, sqlInsertScan, rootPath, startedAt, ScanRunning)
		if err != nil {
			return err
		}

		id, err = res.LastInsertId()

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: create scan: %w", err)
	}

	return id, nil
}

// FinishScan transitions a scan to a terminal status.
func (s *SQLiteStore) FinishScan(ctx context.Context, scanID int64, status string, finishedAt int64, errMsg *string) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlFinishScan, status, finishedAt, errMsg, scanID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: finish scan %d: %w", scanID, err)
	}

	return nil
}

// GetScan loads a single scan row by id.
func (s *SQLiteStore) GetScan(ctx context.Context, scanID int64) (*Scan, error) {
	var sc Scan

	row := s.db.QueryRowContext(ctx, sqlGetScan, scanID)

	err := row.Scan(&sc.ID, &sc.RootPath, &sc.StartedAt, &sc.FinishedAt, &sc.Status, &sc.ErrorMessage)
	if isNoRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get scan %d: %w", scanID, err)
	}

	return &sc, nil
}

// RecoverStaleRunningScans finds scans still marked RUNNING whose
// started_at predates olderThan (a boot-time crash recovery sweep, spec
// §4.9) and flips them to FAILED with an explanatory message. recoveredAt
// is recorded as finished_at — the time recovery actually ran, not the
// olderThan cutoff used to select candidates.
func (s *SQLiteStore) RecoverStaleRunningScans(ctx context.Context, olderThan, recoveredAt int64) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecoverStaleScans, ScanRunning, olderThan)
	if err != nil {
		return nil, fmt.Errorf("store: query stale scans: %w", err)
	}
	defer rows.Close()

	var stale []Scan

	for rows.Next() {
		var sc Scan
		if err := rows.Scan(&sc.ID, &sc.RootPath, &sc.StartedAt, &sc.FinishedAt, &sc.Status, &sc.ErrorMessage); err != nil {
			return nil, fmt.Errorf("store: scan stale row: %w", err)
		}

		stale = append(stale, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	msg := "stale job recovered on boot"

	for _, sc := range stale {
		err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
			_, err := s.db.ExecContext(ctx, sqlMarkScanStale, ScanFailed, recoveredAt, msg, sc.ID, ScanRunning)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("store: recovering stale scan %d: %w", sc.ID, err)
		}
	}

	return stale, nil
}
