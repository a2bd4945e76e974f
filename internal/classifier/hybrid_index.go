package classifier

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keeply/backup-agent/internal/store"
)

// indexKey identifies one file_state row within a root: (identityType,
// identityValue).
type indexKey struct {
	identityType  string
	identityValue string
}

// HybridIndex backs classifier lookups with an in-memory snapshot of
// file_state for one root, falling back to on-demand Store reads
// (cached per-thread via a bounded LRU) for rows excluded from the
// snapshot, and for any root whose snapshot load was truncated (spec
// §4.3).
type HybridIndex struct {
	rootPath  string
	st        store.Store
	snapshot  map[indexKey]Prior
	truncated bool
	lruSize   int
	logger    *slog.Logger
}

// Load preloads up to maxRows file_state rows for rootPath. If the
// root has more rows than maxRows, the snapshot is marked truncated and
// the orchestrator must skip deletion reconciliation for this scan.
func Load(ctx context.Context, st store.Store, rootPath string, maxRows, lruSize int, logger *slog.Logger) (*HybridIndex, error) {
	total, err := st.CountFileStatesForRoot(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("classifier: counting file states for %s: %w", rootPath, err)
	}

	idx := &HybridIndex{
		rootPath: rootPath,
		st:       st,
		snapshot: make(map[indexKey]Prior),
		lruSize:  lruSize,
		logger:   logger,
	}

	if int64(maxRows) > 0 && total > int64(maxRows) {
		idx.truncated = true
		logger.Warn("file_state snapshot truncated, deletion reconciliation will be skipped",
			slog.String("root", rootPath),
			slog.Int64("total_rows", total),
			slog.Int("max_rows", maxRows),
		)
	}

	if maxRows > 0 {
		rows, err := st.ListFileStatesForRoot(ctx, rootPath, maxRows)
		if err != nil {
			return nil, fmt.Errorf("classifier: preloading file states for %s: %w", rootPath, err)
		}

		for _, fs := range rows {
			idx.snapshot[indexKey{fs.IdentityType, fs.IdentityValue}] = Prior{
				SizeBytes:   fs.SizeBytes,
				ModifiedAt:  fs.ModifiedAt,
				KnownPath:   fs.FullPath,
				ContentAlgo: fs.ContentAlgo,
				ContentHash: fs.ContentHash,
			}
		}
	}

	// Rows excluded from the preload (maxRows == 0, or truncation) fall
	// through to WorkerView's on-demand Store lookup, cached per worker.
	return idx, nil
}

// Truncated reports whether the snapshot load hit maxRows.
func (idx *HybridIndex) Truncated() bool {
	return idx.truncated
}

// NewWorkerView returns a per-worker lookup handle with its own bounded
// LRU cache, mirroring one read-only connection per worker (spec §9:
// "each worker task owns a lookup handle issued by the Store").
func (idx *HybridIndex) NewWorkerView() *WorkerView {
	cache, _ := lru.New[indexKey, *Prior](max(idx.lruSize, 1))

	return &WorkerView{idx: idx, cache: cache}
}

// WorkerView is a per-worker lookup handle: checks the shared snapshot,
// then its own LRU, then falls through to the Store.
type WorkerView struct {
	idx   *HybridIndex
	cache *lru.Cache[indexKey, *Prior]
}

// Lookup returns the prior file_state row for (identityType,
// identityValue), or nil if none exists (a NEW file).
func (v *WorkerView) Lookup(ctx context.Context, identityType, identityValue string) (*Prior, error) {
	key := indexKey{identityType, identityValue}

	if p, ok := v.idx.snapshot[key]; ok {
		return &p, nil
	}

	if p, ok := v.cache.Get(key); ok {
		return p, nil
	}

	fs, err := v.idx.st.GetFileState(ctx, v.idx.rootPath, identityType, identityValue)
	if err != nil {
		return nil, fmt.Errorf("classifier: store lookup for %s:%s: %w", identityType, identityValue, err)
	}

	if fs == nil {
		v.cache.Add(key, nil)
		return nil, nil
	}

	p := &Prior{
		SizeBytes:   fs.SizeBytes,
		ModifiedAt:  fs.ModifiedAt,
		KnownPath:   fs.FullPath,
		ContentAlgo: fs.ContentAlgo,
		ContentHash: fs.ContentHash,
	}

	v.cache.Add(key, p)

	return p, nil
}
