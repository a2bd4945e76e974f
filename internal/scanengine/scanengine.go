// Package scanengine wires Store (C1), Walker (C2), Classifier (C3),
// Hasher (C4), and Writer (C5) together into the scan state machine
// from spec §4.6: CREATED -> RUNNING -> (SUCCESS|FAILED|CANCELLED).
package scanengine

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/keeply/backup-agent/internal/blobstore"
	"github.com/keeply/backup-agent/internal/classifier"
	"github.com/keeply/backup-agent/internal/hasher"
	"github.com/keeply/backup-agent/internal/store"
	"github.com/keeply/backup-agent/internal/walker"
	"github.com/keeply/backup-agent/internal/writer"
)

// Options configures one RunScan call (spec §6.5 scan tuning keys).
type Options struct {
	Workers             int
	BatchLimit          int
	IssueCapacity       int
	QueueCapacity       int
	PoolSize            int
	PreloadIndexMaxRows int
	LRUCacheSize        int
	HashMaxBytes        int64
	HashingEnabled      bool
	ExcludeGlobs        []string
	FollowSymlinks      bool
}

// resolveWorkers bounds worker count to [2, 32], defaulting to CPU
// count (spec §5).
func (o Options) resolveWorkers(numCPU int) int {
	w := o.Workers
	if w <= 0 {
		w = numCPU
	}

	if w < 2 {
		w = 2
	}

	if w > 32 {
		w = 32
	}

	return w
}

// Report summarizes one completed (or failed/cancelled) scan.
type Report struct {
	ScanID  int64
	Status  string
	Summary store.ScanSummary
}

// Engine runs scans against a Store and a blob Store.
type Engine struct {
	st     store.Store
	blobs  *blobstore.Store
	logger *slog.Logger
	numCPU func() int
}

// New builds an Engine. numCPU defaults to runtime.NumCPU when nil;
// tests may override it for deterministic worker counts.
func New(st store.Store, blobs *blobstore.Store, logger *slog.Logger, numCPU func() int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if numCPU == nil {
		numCPU = defaultNumCPU
	}

	return &Engine{st: st, blobs: blobs, logger: logger, numCPU: numCPU}
}

// counters accumulates scan_summary fields across concurrent workers.
type counters struct {
	filesTotal      atomic.Int64
	bytesScanned    atomic.Int64
	bytesHashed     atomic.Int64
	newCount        atomic.Int64
	modifiedCount   atomic.Int64
	movedCount      atomic.Int64
	unchangedCount  atomic.Int64
	walkErrors      atomic.Int64
	hashErrors      atomic.Int64
	skippedSize     atomic.Int64
	skippedDisabled atomic.Int64
	deletedCount    atomic.Int64
}

// RunScan executes the full scan algorithm (spec §4.6 steps 1-9) for
// rootPath, storing content backups under destPath. ctx cancellation
// is checked cooperatively at each walk/worker/writer boundary; a
// cancelled scan transitions to CANCELLED rather than FAILED.
func (e *Engine) RunScan(ctx context.Context, rootPath, destPath string, opts Options) (*Report, error) {
	startedAt := time.Now().UnixNano()

	scanID, err := e.st.CreateScan(ctx, rootPath, startedAt)
	if err != nil {
		return nil, fmt.Errorf("scanengine: creating scan row: %w", err)
	}

	historyID, histErr := e.st.RecordBackupHistory(ctx, store.BackupHistoryRow{
		StartedAt: startedAt, BackupType: store.BackupTypeScan,
		RootPath: rootPath, DestPath: destPath, ScanID: &scanID,
	})
	if histErr != nil {
		e.logger.Error("recording backup history failed", slog.Int64("scan_id", scanID), slog.String("error", histErr.Error()))
	}

	e.logger.Info("scan started", slog.Int64("scan_id", scanID), slog.String("root", rootPath))

	report, runErr := e.runScanBody(ctx, scanID, rootPath, destPath, opts)

	finishedAt := time.Now().UnixNano()
	status := report.Status

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	if err := e.st.FinishScan(ctx, scanID, status, finishedAt, errMsg); err != nil {
		e.logger.Error("finishing scan row failed", slog.Int64("scan_id", scanID), slog.String("error", err.Error()))
	}

	if err := e.st.UpsertScanSummary(ctx, report.Summary); err != nil {
		e.logger.Error("upserting scan summary failed", slog.Int64("scan_id", scanID), slog.String("error", err.Error()))
	}

	if histErr == nil {
		backupStatus := backupHistoryStatus(status)
		if err := e.st.UpdateBackupHistory(ctx, historyID, backupStatus, finishedAt, report.Summary.FilesTotal, report.Summary.WalkErrors+report.Summary.HashErrors, errMsg); err != nil {
			e.logger.Error("updating backup history failed", slog.Int64("scan_id", scanID), slog.String("error", err.Error()))
		}
	}

	e.logger.Info("scan finished",
		slog.Int64("scan_id", scanID), slog.String("status", status),
		slog.Int64("files_total", report.Summary.FilesTotal),
	)

	return report, runErr
}

// backupHistoryStatus maps a terminal scan status to the coarser
// BackupHistoryRow status vocabulary (spec §3 "BackupHistoryRow").
func backupHistoryStatus(scanStatus string) string {
	if scanStatus == store.ScanSuccess {
		return store.BackupStatusOK
	}

	return store.BackupStatusError
}

// runScanBody executes steps 2-8 of the algorithm and decides the
// terminal status. Only DB-fatal and blob-fatal errors are returned as
// errors (propagation rule, spec §7); everything else degrades to a
// ScanIssue and the returned status stays SUCCESS (or CANCELLED).
func (e *Engine) runScanBody(ctx context.Context, scanID int64, rootPath, destPath string, opts Options) (*Report, error) {
	cnt := &counters{}

	idx, err := classifier.Load(ctx, e.st, rootPath, opts.PreloadIndexMaxRows, opts.LRUCacheSize, e.logger)
	if err != nil {
		return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: store.ScanSummary{ScanID: scanID}}, err
	}

	w := writer.New(e.st, writer.Options{
		ScanID: scanID, BatchLimit: opts.BatchLimit, IssueCapacity: opts.IssueCapacity,
		PoolSize: opts.PoolSize, Logger: e.logger,
	})

	wk, err := walker.New(walker.Options{
		Root: rootPath, ExcludeGlobs: opts.ExcludeGlobs, FollowSymlinks: opts.FollowSymlinks, Logger: e.logger,
		OnIssue: func(stage, path, errType, message string) {
			cnt.walkErrors.Add(1)
			w.EnqueueIssue(store.ScanIssue{
				ScanID: scanID, Stage: stage, Path: path, ErrorType: errType,
				Message: message, CreatedAt: time.Now().UnixNano(),
			})
		},
	})
	if err != nil {
		w.Close()
		return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: store.ScanSummary{ScanID: scanID}}, err
	}

	metaCh := make(chan walker.FileMeta, max(opts.QueueCapacity, 1))
	workers := opts.resolveWorkers(e.numCPU())
	h := hasher.New(hasher.Options{HashMaxBytes: opts.HashMaxBytes, Disabled: !opts.HashingEnabled})

	var changedMu gosync.Mutex
	var changed []store.ManifestEntry

	var wg gosync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		view := idx.NewWorkerView()

		go func() {
			defer wg.Done()
			e.runWorker(ctx, scanID, rootPath, metaCh, view, h, w, cnt, &changedMu, &changed)
		}()
	}

	walkErr := wk.Walk(ctx, metaCh)
	wg.Wait()

	w.FlushAll(ctx)

	if err := w.AwaitCompletion(); err != nil {
		w.Close()
		return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: e.buildSummary(scanID, cnt, w)}, fmt.Errorf("scanengine: writer: %w", err)
	}

	w.Close()

	cancelled := ctx.Err() != nil

	if cancelled {
		return &Report{ScanID: scanID, Status: store.ScanCancelled, Summary: e.buildSummary(scanID, cnt, w)}, nil
	}

	if walkErr != nil {
		return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: e.buildSummary(scanID, cnt, w)}, fmt.Errorf("scanengine: walk: %w", walkErr)
	}

	// Step 6: deletion reconciliation, skipped when the index was truncated.
	if idx.Truncated() {
		e.logger.Warn("skipping deletion reconciliation: file_state snapshot was truncated",
			slog.Int64("scan_id", scanID), slog.String("root", rootPath))
	} else {
		deleted, err := e.st.DeleteStaleFiles(ctx, scanID, rootPath)
		if err != nil {
			return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: e.buildSummary(scanID, cnt, w)}, fmt.Errorf("scanengine: deletion reconciliation: %w", err)
		}

		cnt.deletedCount.Store(deleted)
		e.logger.Info("deletion reconciliation complete", slog.Int64("scan_id", scanID), slog.Int64("deleted", deleted))
	}

	// Step 7: snapshot NEW/MODIFIED/MOVED entries to file_history.
	changedMu.Lock()
	snapshotEntries := changed
	changedMu.Unlock()

	if _, err := e.st.SnapshotToHistory(ctx, scanID, snapshotEntries); err != nil {
		return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: e.buildSummary(scanID, cnt, w)}, fmt.Errorf("scanengine: snapshot to history: %w", err)
	}

	// Step 8: copy changed files' content into the blob store.
	if e.blobs != nil {
		if err := e.copyToBlobs(ctx, scanID, rootPath, snapshotEntries); err != nil {
			return &Report{ScanID: scanID, Status: store.ScanFailed, Summary: e.buildSummary(scanID, cnt, w)}, fmt.Errorf("scanengine: blob copy: %w", err)
		}
	}

	return &Report{ScanID: scanID, Status: store.ScanSuccess, Summary: e.buildSummary(scanID, cnt, w)}, nil
}

// copyToBlobs stores each changed entry's content and writes the
// manifest for this scan (spec §4.6 step 8, §4.7).
func (e *Engine) copyToBlobs(ctx context.Context, scanID int64, rootPath string, entries []store.ManifestEntry) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if entry.Algo == "" || entry.HashHex == "" {
			continue // unhashed content (disabled/skipped/failed): nothing to store
		}

		srcPath := fullPathFor(rootPath, entry.PathRel)

		if _, err := e.blobs.PutContent(srcPath, entry.Algo, entry.HashHex, entry.SizeBytes); err != nil {
			return fmt.Errorf("storing content for %s: %w", entry.PathRel, err)
		}
	}

	return e.blobs.WriteManifest(scanID, entries)
}

func (e *Engine) buildSummary(scanID int64, cnt *counters, w *writer.Writer) store.ScanSummary {
	return store.ScanSummary{
		ScanID:          scanID,
		FilesTotal:      cnt.filesTotal.Load(),
		BytesScanned:    cnt.bytesScanned.Load(),
		BytesHashed:     cnt.bytesHashed.Load(),
		NewCount:        cnt.newCount.Load(),
		ModifiedCount:   cnt.modifiedCount.Load(),
		MovedCount:      cnt.movedCount.Load(),
		UnchangedCount:  cnt.unchangedCount.Load(),
		DeletedCount:    cnt.deletedCount.Load(),
		WalkErrors:      cnt.walkErrors.Load(),
		HashErrors:      cnt.hashErrors.Load(),
		SkippedSize:     cnt.skippedSize.Load(),
		SkippedDisabled: cnt.skippedDisabled.Load(),
		IssuesDropped:   w.IssuesDropped(),
	}
}

func defaultNumCPU() int {
	return numCPU()
}
