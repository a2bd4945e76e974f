package store

import (
	"context"
	"fmt"
)

const (
	sqlUpsertScanSummary = `INSERT INTO scan_summary
		(scan_id, files_total, bytes_scanned, bytes_hashed, new_count,
		 modified_count, moved_count, unchanged_count, deleted_count,
		 walk_errors, hash_errors, skipped_size, skipped_disabled,
		 db_retries, issues_dropped, db_lookup_hits, db_lookup_miss)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			files_total      = excluded.files_total,
			bytes_scanned    = excluded.bytes_scanned,
			bytes_hashed     = excluded.bytes_hashed,
			new_count        = excluded.new_count,
			modified_count   = excluded.modified_count,
			moved_count      = excluded.moved_count,
			unchanged_count  = excluded.unchanged_count,
			deleted_count    = excluded.deleted_count,
			walk_errors      = excluded.walk_errors,
			hash_errors      = excluded.hash_errors,
			skipped_size     = excluded.skipped_size,
			skipped_disabled = excluded.skipped_disabled,
			db_retries       = excluded.db_retries,
			issues_dropped   = excluded.issues_dropped,
			db_lookup_hits   = excluded.db_lookup_hits,
			db_lookup_miss   = excluded.db_lookup_miss`

	sqlGetScanSummary = `SELECT scan_id, files_total, bytes_scanned, bytes_hashed,
		new_count, modified_count, moved_count, unchanged_count, deleted_count,
		walk_errors, hash_errors, skipped_size, skipped_disabled,
		db_retries, issues_dropped, db_lookup_hits, db_lookup_miss
		FROM scan_summary WHERE scan_id = ?`
)

// UpsertScanSummary writes the aggregate counters for one scan,
// replacing any row already stored for it.
func (s *SQLiteStore) UpsertScanSummary(ctx context.Context, sm ScanSummary) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlUpsertScanSummary,
			sm.ScanID, sm.FilesTotal, sm.BytesScanned, sm.BytesHashed,
			sm.NewCount, sm.ModifiedCount, sm.MovedCount, sm.UnchangedCount, sm.DeletedCount,
			sm.WalkErrors, sm.HashErrors, sm.SkippedSize, sm.SkippedDisabled,
			sm.DBRetries, sm.IssuesDropped, sm.DBLookupHits, sm.DBLookupMiss)

		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert scan summary for scan %d: %w", sm.ScanID, err)
	}

	return nil
}

// GetScanSummary loads the aggregate counters for one scan.
func (s *SQLiteStore) GetScanSummary(ctx context.Context, scanID int64) (*ScanSummary, error) {
	var sm ScanSummary

	row := s.db.QueryRowContext(ctx, sqlGetScanSummary, scanID)

	err := row.Scan(&sm.ScanID, &sm.FilesTotal, &sm.BytesScanned, &sm.BytesHashed,
		&sm.NewCount, &sm.ModifiedCount, &sm.MovedCount, &sm.UnchangedCount, &sm.DeletedCount,
		&sm.WalkErrors, &sm.HashErrors, &sm.SkippedSize, &sm.SkippedDisabled,
		&sm.DBRetries, &sm.IssuesDropped, &sm.DBLookupHits, &sm.DBLookupMiss)
	if isNoRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get scan summary for scan %d: %w", scanID, err)
	}

	return &sm, nil
}
