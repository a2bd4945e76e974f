package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RestoreResult reports restore outcome counters.
type RestoreResult struct {
	FilesRestored int
	Errors        int
}

// RestoreOptions configures RestoreChangedFilesFromScan.
type RestoreOptions struct {
	ScanID         int64
	DestinationDir string // used when Mode == ModeDestWithStructure
	OriginalRoot   string // used when Mode == ModeOriginalPath
	Mode           string
	Logger         *slog.Logger
}

// RestoreChangedFilesFromScan reads the manifest for opts.ScanID and
// copies each entry's blob to its resolved output path (spec §4.7).
// Per-file failures increment Errors and do not abort the restore;
// cancellation returns the counts accumulated so far.
func (s *Store) RestoreChangedFilesFromScan(ctx context.Context, opts RestoreOptions) (RestoreResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := s.ReadManifest(opts.ScanID)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("blobstore: restore scan %d: %w", opts.ScanID, err)
	}

	var result RestoreResult

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, nil
		}

		outPath, err := resolveOutputPath(opts, e.PathRel)
		if err != nil {
			logger.Error("restore: resolving output path failed",
				slog.String("path_rel", e.PathRel), slog.String("error", err.Error()))
			result.Errors++

			continue
		}

		blobPath, err := s.blobPath(e.Algo, e.HashHex)
		if err != nil {
			logger.Error("restore: resolving blob path failed",
				slog.String("path_rel", e.PathRel), slog.String("error", err.Error()))
			result.Errors++

			continue
		}

		if err := restoreOne(blobPath, outPath); err != nil {
			logger.Error("restore: copying blob failed",
				slog.String("path_rel", e.PathRel), slog.String("error", err.Error()))
			result.Errors++

			continue
		}

		result.FilesRestored++
	}

	return result, nil
}

func resolveOutputPath(opts RestoreOptions, pathRel string) (string, error) {
	switch opts.Mode {
	case ModeOriginalPath:
		if opts.OriginalRoot == "" {
			return "", fmt.Errorf("blobstore: original root required for %s mode", ModeOriginalPath)
		}

		return filepath.Join(opts.OriginalRoot, pathRel), nil
	case ModeDestWithStructure:
		if opts.DestinationDir == "" {
			return "", fmt.Errorf("blobstore: destination dir required for %s mode", ModeDestWithStructure)
		}

		return filepath.Join(opts.DestinationDir, pathRel), nil
	default:
		return "", fmt.Errorf("blobstore: unknown restore mode %q", opts.Mode)
	}
}

// restoreOne copies blobPath to a temporary sibling of outPath, then
// renames it into place, matching the blob store's own write-once
// atomic pattern.
func restoreOne(blobPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}

	return copyFileAtomic(blobPath, outPath)
}
