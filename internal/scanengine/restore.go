package scanengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keeply/backup-agent/internal/blobstore"
	"github.com/keeply/backup-agent/internal/store"
)

// RestoreReport summarizes one restore invocation.
type RestoreReport struct {
	ScanID        int64
	FilesRestored int
	Errors        int
}

// RestoreOptions configures RunRestore.
type RestoreOptions struct {
	ScanID         int64
	Mode           string // blobstore.ModeOriginalPath or blobstore.ModeDestWithStructure
	OriginalRoot   string
	DestinationDir string
}

// RunRestore replays the blob-store manifest for opts.ScanID back onto
// disk (spec §4.7) and records the invocation in backup_history
// (spec §3 "BackupHistoryRow") the same way RunScan does for scans.
func (e *Engine) RunRestore(ctx context.Context, opts RestoreOptions) (*RestoreReport, error) {
	if e.blobs == nil {
		return nil, fmt.Errorf("scanengine: restore requires a configured blob store")
	}

	startedAt := time.Now().UnixNano()

	historyID, histErr := e.st.RecordBackupHistory(ctx, store.BackupHistoryRow{
		StartedAt: startedAt, BackupType: store.BackupTypeRestore,
		RootPath: opts.OriginalRoot, DestPath: opts.DestinationDir, ScanID: &opts.ScanID,
	})
	if histErr != nil {
		e.logger.Error("recording restore history failed", slog.Int64("scan_id", opts.ScanID), slog.String("error", histErr.Error()))
	}

	result, err := e.blobs.RestoreChangedFilesFromScan(ctx, blobstore.RestoreOptions{
		ScanID: opts.ScanID, Mode: opts.Mode,
		OriginalRoot: opts.OriginalRoot, DestinationDir: opts.DestinationDir,
		Logger: e.logger,
	})

	finishedAt := time.Now().UnixNano()

	var errMsg *string
	status := store.BackupStatusOK

	if err != nil {
		msg := err.Error()
		errMsg = &msg
		status = store.BackupStatusError
	} else if result.Errors > 0 {
		msg := fmt.Sprintf("%d files failed to restore", result.Errors)
		errMsg = &msg
		status = store.BackupStatusError
	}

	if histErr == nil {
		if updErr := e.st.UpdateBackupHistory(ctx, historyID, status, finishedAt, int64(result.FilesRestored), int64(result.Errors), errMsg); updErr != nil {
			e.logger.Error("updating restore history failed", slog.Int64("scan_id", opts.ScanID), slog.String("error", updErr.Error()))
		}
	}

	report := &RestoreReport{ScanID: opts.ScanID, FilesRestored: result.FilesRestored, Errors: result.Errors}

	if err != nil {
		return report, fmt.Errorf("scanengine: restore: %w", err)
	}

	return report, nil
}
