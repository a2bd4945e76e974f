package scanengine

import (
	"context"
	"path/filepath"
	gosync "sync"

	"github.com/keeply/backup-agent/internal/classifier"
	"github.com/keeply/backup-agent/internal/hasher"
	"github.com/keeply/backup-agent/internal/store"
	"github.com/keeply/backup-agent/internal/walker"
	"github.com/keeply/backup-agent/internal/writer"
)

// runWorker is one worker task's main loop (spec §4.6 step 4): consume
// FileMeta, classify, hash when required, enqueue the FileResult to
// the writer, and record NEW/MODIFIED/MOVED content for the
// history/blob-copy steps.
func (e *Engine) runWorker(
	ctx context.Context,
	scanID int64,
	rootPath string,
	metaCh <-chan walker.FileMeta,
	view *classifier.WorkerView,
	h *hasher.Hasher,
	w *writer.Writer,
	cnt *counters,
	changedMu *gosync.Mutex,
	changed *[]store.ManifestEntry,
) {
	for meta := range metaCh {
		if ctx.Err() != nil {
			return
		}

		e.processFile(ctx, scanID, rootPath, meta, view, h, w, cnt, changedMu, changed)
	}
}

func (e *Engine) processFile(
	ctx context.Context,
	scanID int64,
	rootPath string,
	meta walker.FileMeta,
	view *classifier.WorkerView,
	h *hasher.Hasher,
	w *writer.Writer,
	cnt *counters,
	changedMu *gosync.Mutex,
	changed *[]store.ManifestEntry,
) {
	cnt.filesTotal.Add(1)
	cnt.bytesScanned.Add(meta.SizeBytes)

	prior, err := view.Lookup(ctx, meta.IdentityType, meta.IdentityValue)
	if err != nil {
		w.EnqueueIssue(store.ScanIssue{
			ScanID: scanID, Stage: store.StageDB, Path: meta.FullPath,
			IdentityType: meta.IdentityType, IdentityValue: meta.IdentityValue,
			ErrorType: "LOOKUP_FAILED", Message: err.Error(),
		})
	}

	decision := classifier.Classify(meta, prior)

	hashStatus := store.HashNone
	if decision.ContentHash != "" {
		hashStatus = store.HashOK
	}

	fr := writer.FileResult{
		Meta: meta, Status: decision.Status,
		ContentAlgo: decision.ContentAlgo, ContentHash: decision.ContentHash,
		HashStatus: hashStatus,
	}

	if decision.NeedsHash {
		res := h.Hash(meta.FullPath, meta.SizeBytes)
		fr.HashStatus = res.Status
		fr.ContentAlgo = hasher.Algo
		fr.ContentHash = res.HashHex

		switch res.Status {
		case store.HashOK:
			cnt.bytesHashed.Add(meta.SizeBytes)
		case store.HashSkippedSize:
			cnt.skippedSize.Add(1)
		case store.HashDisabled:
			cnt.skippedDisabled.Add(1)
		case store.HashFailed:
			cnt.hashErrors.Add(1)
			fr.Reason = "HASH_FAILED"

			w.EnqueueIssue(store.ScanIssue{
				ScanID: scanID, Stage: store.StageHash, Path: meta.FullPath,
				IdentityType: meta.IdentityType, IdentityValue: meta.IdentityValue,
				ErrorType: "HASH_FAILED", Message: res.Err.Error(),
			})
		}
	}

	switch decision.Status {
	case classifier.StatusNew:
		cnt.newCount.Add(1)
	case classifier.StatusModified:
		cnt.modifiedCount.Add(1)
	case classifier.StatusMoved:
		cnt.movedCount.Add(1)
	case classifier.StatusUnchanged:
		cnt.unchangedCount.Add(1)
	}

	w.EnqueueFile(ctx, fr)

	if decision.Status == classifier.StatusNew || decision.Status == classifier.StatusModified || decision.Status == classifier.StatusMoved {
		pathRel, err := filepath.Rel(rootPath, meta.FullPath)
		if err != nil {
			pathRel = meta.FullPath
		}

		entry := store.ManifestEntry{
			PathRel: filepath.ToSlash(pathRel), Algo: fr.ContentAlgo, HashHex: fr.ContentHash,
			SizeBytes: meta.SizeBytes, ModifiedAt: meta.ModifiedAt,
		}

		changedMu.Lock()
		*changed = append(*changed, entry)
		changedMu.Unlock()
	}
}

func fullPathFor(rootPath, pathRel string) string {
	return filepath.Join(rootPath, filepath.FromSlash(pathRel))
}
