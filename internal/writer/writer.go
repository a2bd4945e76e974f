// Package writer implements the single logical writer (spec §4.5):
// it accepts classified FileResults and ScanIssues from the worker
// pool and batches them into Store mutations, dispatching independent
// batches concurrently. Each file's rows are written through separate
// Store calls; a batch is not wrapped in one transaction, so a batch
// that fails part-way leaves the files it already wrote persisted.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/keeply/backup-agent/internal/classifier"
	"github.com/keeply/backup-agent/internal/store"
	"github.com/keeply/backup-agent/internal/walker"
)

// pathCacheSize bounds the process-wide path-id resolution cache (spec
// §4.5: "bounded at 120,000 entries").
const pathCacheSize = 120_000

// FileResult is the classified outcome for one FileMeta, ready for
// persistence.
type FileResult struct {
	Meta        walker.FileMeta
	Status      string // classifier.Status*
	ContentAlgo string
	ContentHash string
	HashStatus  string
	Reason      string // file_change.reason: status, or a HASH_FAILED variant
}

// Options configures a Writer.
type Options struct {
	ScanID        int64
	BatchLimit    int
	IssueCapacity int
	PoolSize      int
	Logger        *slog.Logger
}

// Writer batches FileResults and ScanIssues into Store mutations.
type Writer struct {
	st     store.Store
	scanID int64

	batchLimit int
	poolSize   int
	logger     *slog.Logger

	mu          gosync.Mutex
	fileBuf     []FileResult
	issueBuf    []store.ScanIssue
	issueCh     chan store.ScanIssue
	issuesDone  chan struct{}
	pathCache   *lru.Cache[string, int64]
	inFlight    gosync.WaitGroup
	dispatchErr error
	errOnce     gosync.Once

	issuesDropped int64
}

// New builds a Writer bound to scanID, flushing batches into st.
func New(st store.Store, opts Options) *Writer {
	cache, _ := lru.New[string, int64](pathCacheSize)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		st:         st,
		scanID:     opts.ScanID,
		batchLimit: opts.BatchLimit,
		poolSize:   opts.PoolSize,
		logger:     logger,
		pathCache:  cache,
		issueCh:    make(chan store.ScanIssue, opts.IssueCapacity),
		issuesDone: make(chan struct{}),
	}

	go w.drainIssues()

	return w
}

// EnqueueFile adds fr to the pending file batch, flushing synchronously
// (but dispatched asynchronously) once batchLimit is reached.
func (w *Writer) EnqueueFile(ctx context.Context, fr FileResult) {
	w.mu.Lock()
	w.fileBuf = append(w.fileBuf, fr)
	full := len(w.fileBuf) >= w.batchLimit

	var batch []FileResult
	if full {
		batch = w.fileBuf
		w.fileBuf = nil
	}
	w.mu.Unlock()

	if full {
		w.dispatchFileBatch(ctx, batch)
	}
}

// EnqueueIssue submits a best-effort diagnostic. If the bounded issue
// queue is full, the issue is dropped and issuesDropped is incremented
// rather than blocking the caller (spec §4.5).
func (w *Writer) EnqueueIssue(si store.ScanIssue) {
	select {
	case w.issueCh <- si:
	default:
		w.mu.Lock()
		w.issuesDropped++
		w.mu.Unlock()
	}
}

// IssuesDropped reports how many issues were dropped due to queue
// overflow.
func (w *Writer) IssuesDropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.issuesDropped
}

// drainIssues runs for the Writer's lifetime, batching issues from
// issueCh and flushing them once batchLimit is reached or the channel
// is closed.
func (w *Writer) drainIssues() {
	defer close(w.issuesDone)

	var buf []store.ScanIssue

	flush := func() {
		if len(buf) == 0 {
			return
		}

		w.flushIssueBatch(context.Background(), buf)
		buf = nil
	}

	for si := range w.issueCh {
		buf = append(buf, si)
		if len(buf) >= w.batchLimit {
			flush()
		}
	}

	flush()
}

func (w *Writer) flushIssueBatch(ctx context.Context, batch []store.ScanIssue) {
	now := time.Now().UnixNano()

	for i := range batch {
		batch[i].CreatedAt = now

		if err := w.st.RecordScanIssue(ctx, batch[i]); err != nil {
			w.recordErr(fmt.Errorf("writer: recording scan issue: %w", err))
		}
	}
}

// FlushAll flushes any partially filled file batch. Callers invoke this
// once the walker and all workers have joined.
func (w *Writer) FlushAll(ctx context.Context) {
	w.mu.Lock()
	batch := w.fileBuf
	w.fileBuf = nil
	w.mu.Unlock()

	if len(batch) > 0 {
		w.dispatchFileBatch(ctx, batch)
	}
}

// dispatchFileBatch runs one atomic batch flush as tracked async work;
// Close blocks until every dispatched batch like this one completes.
func (w *Writer) dispatchFileBatch(ctx context.Context, batch []FileResult) {
	w.inFlight.Add(1)

	go func() {
		defer w.inFlight.Done()

		if err := w.flushFileBatch(ctx, batch); err != nil {
			w.recordErr(err)
		}
	}()
}

// flushFileBatch executes one file batch, sorted by content hash to
// avoid lock-ordering deadlocks between concurrent batches touching the
// content table (spec §4.5).
func (w *Writer) flushFileBatch(ctx context.Context, batch []FileResult) error {
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].ContentHash < batch[j].ContentHash
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.poolSize, 1))

	for i := range batch {
		fr := batch[i]
		g.Go(func() error {
			return w.applyFileResult(gctx, fr)
		})
	}

	return g.Wait()
}

func (w *Writer) applyFileResult(ctx context.Context, fr FileResult) error {
	now := time.Now().UnixNano()

	if fr.Status == classifier.StatusUnchanged {
		return w.touch(ctx, fr)
	}

	pathID, err := w.resolvePathID(ctx, fr.Meta.FullPath)
	if err != nil {
		return err
	}

	if fr.ContentHash != "" {
		if err := w.st.UpsertContent(ctx, fr.ContentAlgo, fr.ContentHash, fr.Meta.SizeBytes); err != nil {
			return fmt.Errorf("writer: upserting content: %w", err)
		}
	}

	if err := w.st.UpsertFileState(ctx, store.FileState{
		RootPath:      fr.Meta.RootPath,
		IdentityType:  fr.Meta.IdentityType,
		IdentityValue: fr.Meta.IdentityValue,
		SizeBytes:     fr.Meta.SizeBytes,
		CreatedAt:     fr.Meta.CreatedAt,
		ModifiedAt:    fr.Meta.ModifiedAt,
		PathID:        pathID,
		FileKey:       fr.Meta.FileKey,
		ContentAlgo:   fr.ContentAlgo,
		ContentHash:   fr.ContentHash,
		HashStatus:    fr.HashStatus,
		LastScanID:    w.scanID,
	}); err != nil {
		return fmt.Errorf("writer: upserting file state: %w", err)
	}

	reason := fr.Reason
	if reason == "" {
		reason = fr.Status
	}

	size := fr.Meta.SizeBytes
	modAt := fr.Meta.ModifiedAt
	algo := fr.ContentAlgo
	hash := fr.ContentHash

	if err := w.st.RecordFileChange(ctx, store.FileChange{
		ScanID:        w.scanID,
		RootPath:      fr.Meta.RootPath,
		IdentityType:  fr.Meta.IdentityType,
		IdentityValue: fr.Meta.IdentityValue,
		SizeBytes:     &size,
		ModifiedAt:    &modAt,
		ContentAlgo:   &algo,
		ContentHash:   &hash,
		Reason:        reason,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("writer: recording file change: %w", err)
	}

	return nil
}

// touch updates only lastScanId for an UNCHANGED file, reusing its
// existing path/content/hash fields.
func (w *Writer) touch(ctx context.Context, fr FileResult) error {
	existing, err := w.st.GetFileState(ctx, fr.Meta.RootPath, fr.Meta.IdentityType, fr.Meta.IdentityValue)
	if err != nil {
		return fmt.Errorf("writer: touch lookup: %w", err)
	}

	if existing == nil {
		// Race with a concurrent deletion/rescan; treat as a fresh write.
		return w.applyFileResult(ctx, FileResult{
			Meta: fr.Meta, Status: classifier.StatusNew, ContentAlgo: fr.ContentAlgo,
			ContentHash: fr.ContentHash, HashStatus: fr.HashStatus, Reason: store.ReasonNew,
		})
	}

	existing.LastScanID = w.scanID

	if err := w.st.UpsertFileState(ctx, *existing); err != nil {
		return fmt.Errorf("writer: touch upsert: %w", err)
	}

	return nil
}

func (w *Writer) resolvePathID(ctx context.Context, fullPath string) (int64, error) {
	if id, ok := w.pathCache.Get(fullPath); ok {
		return id, nil
	}

	id, err := w.st.InternPath(ctx, fullPath)
	if err != nil {
		return 0, fmt.Errorf("writer: resolving path id for %s: %w", fullPath, err)
	}

	w.pathCache.Add(fullPath, id)

	return id, nil
}

func (w *Writer) recordErr(err error) {
	w.errOnce.Do(func() {
		w.dispatchErr = err
	})

	w.logger.Error("writer: batch flush failed", slog.String("error", err.Error()))
}

// AwaitCompletion blocks until every dispatched async batch has either
// succeeded or failed, then returns the first error encountered (if
// any).
func (w *Writer) AwaitCompletion() error {
	w.inFlight.Wait()

	return w.dispatchErr
}

// Close stops the issue drain goroutine and waits for it to flush its
// final partial batch. Callers must call AwaitCompletion first to drain
// file batches.
func (w *Writer) Close() {
	close(w.issueCh)
	<-w.issuesDone
}
