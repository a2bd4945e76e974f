package store

import (
	"context"
	"fmt"
)

const sqlInsertScanIssue = `INSERT INTO scan_issue
	(scan_id, stage, path, identity_type, identity_value, error_type, message, rule, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// RecordScanIssue appends a best-effort diagnostic row. Callers in the
// writer drop issues past the bounded queue capacity rather than block
// the scan on diagnostics; dropped counts are folded into
// ScanSummary.IssuesDropped instead of being persisted per-row.
func (s *SQLiteStore) RecordScanIssue(ctx context.Context, si ScanIssue) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlInsertScanIssue,
			si.ScanID, si.Stage, si.Path, si.IdentityType, si.IdentityValue,
			si.ErrorType, si.Message, si.Rule, si.CreatedAt)

		return err
	})
	if err != nil {
		return fmt.Errorf("store: record scan issue: %w", err)
	}

	return nil
}
