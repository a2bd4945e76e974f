// Package walker performs the recursive directory traversal stage of a
// scan: it enumerates files under a root path, applies glob-based
// exclusion and symlink policy, and streams FileMeta records to a
// bounded channel for the worker pool to consume.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/text/unicode/norm"
)

// FileMeta describes one regular file discovered during a walk (spec
// §4.2). FileKey is populated when the OS exposes a stable per-file
// identifier (inode+device on unix, file index on Windows); otherwise
// IdentityType falls back to PATH and IdentityValue is FullPath.
type FileMeta struct {
	RootPath      string
	FullPath      string
	Name          string
	SizeBytes     int64
	CreatedAt     int64
	ModifiedAt    int64
	FileKey       string
	IdentityType  string
	IdentityValue string
}

// IssueFunc is called for each best-effort diagnostic encountered during
// the walk (unreadable directory, stat failure). Errors reported this
// way never abort the walk.
type IssueFunc func(stage, path, errType, message string)

// Options configures a Walker.
type Options struct {
	Root           string
	ExcludeGlobs   []string
	FollowSymlinks bool
	Logger         *slog.Logger
	OnIssue        IssueFunc
}

// Walker performs the recursive traversal described in spec §4.2.
type Walker struct {
	root           string
	filter         *ExcludeFilter
	followSymlinks bool
	logger         *slog.Logger
	onIssue        IssueFunc

	dirsSkipped int64
}

// New builds a Walker from opts. ExcludeGlobs are compiled once up
// front; a bad pattern is a configuration error, not a walk-time one.
func New(opts Options) (*Walker, error) {
	filter, err := NewExcludeFilter(opts.ExcludeGlobs)
	if err != nil {
		return nil, fmt.Errorf("walker: compiling exclude globs: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	onIssue := opts.OnIssue
	if onIssue == nil {
		onIssue = func(string, string, string, string) {}
	}

	return &Walker{
		root:           opts.Root,
		filter:         filter,
		followSymlinks: opts.FollowSymlinks,
		logger:         logger,
		onIssue:        onIssue,
	}, nil
}

// DirsSkipped reports how many subtrees were pruned by exclusion rules
// during the most recently completed Walk.
func (w *Walker) DirsSkipped() int64 {
	return w.dirsSkipped
}

// Walk streams FileMeta records for every included regular file under
// the root onto out, then closes out. It backpressures: a slow
// consumer stalls the walk rather than buffering unboundedly. On
// ctx cancellation, Walk stops traversing and closes out without
// enqueuing a poison sentinel itself — that is the caller's job, since
// only the caller knows how many workers are listening.
func (w *Walker) Walk(ctx context.Context, out chan<- FileMeta) error {
	defer close(out)

	w.dirsSkipped = 0

	return w.walkDir(ctx, w.root, "", out)
}

// walkDir recursively walks fullDir, whose path relative to the root is
// relDir ("" at the root itself).
func (w *Walker) walkDir(ctx context.Context, fullDir, relDir string, out chan<- FileMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(fullDir)
	if err != nil {
		w.onIssue("WALK", fullDir, "READ_DIR", err.Error())
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := norm.NFC.String(entry.Name())
		relPath := joinRel(relDir, name)
		fullPath := filepath.Join(fullDir, entry.Name())

		info, entryType, err := w.resolveEntry(fullPath, entry)
		if err != nil {
			w.onIssue("WALK", fullPath, "STAT", err.Error())
			continue
		}

		if info == nil {
			// Symlink skipped per policy.
			continue
		}

		if entryType.IsDir() {
			if w.filter.MatchDir(relPath) {
				w.dirsSkipped++
				w.logger.Debug("pruning excluded subtree", slog.String("path", relPath))

				continue
			}

			if err := w.walkDir(ctx, fullPath, relPath, out); err != nil {
				return err
			}

			continue
		}

		if !entryType.IsRegular() {
			continue // sockets, devices, fifos: not backed up
		}

		if w.filter.MatchFile(relPath) {
			continue
		}

		meta := w.buildFileMeta(fullPath, info)

		select {
		case out <- meta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// resolveEntry stats entry, applying symlink policy. Returns (nil, _,
// nil) when a symlink should be silently skipped rather than followed.
func (w *Walker) resolveEntry(fullPath string, entry os.DirEntry) (os.FileInfo, fs.FileMode, error) {
	mode := entry.Type()

	if mode&os.ModeSymlink == 0 {
		info, err := entry.Info()
		if err != nil {
			return nil, 0, err
		}

		return info, info.Mode(), nil
	}

	info, err := os.Stat(fullPath) // follows the link
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil // broken symlink, skip quietly
		}

		return nil, 0, err
	}

	if info.IsDir() {
		// Reparse-point safety: never traverse a symlinked directory on
		// Windows even when follow-links is enabled.
		if runtime.GOOS == "windows" || !w.followSymlinks {
			return nil, 0, nil
		}
	} else if !w.followSymlinks {
		return nil, 0, nil
	}

	return info, info.Mode(), nil
}

func (w *Walker) buildFileMeta(fullPath string, info os.FileInfo) FileMeta {
	key, hasKey := fileKey(info)

	meta := FileMeta{
		RootPath:   w.root,
		FullPath:   fullPath,
		Name:       norm.NFC.String(info.Name()),
		SizeBytes:  info.Size(),
		CreatedAt:  creationTime(info),
		ModifiedAt: info.ModTime().UnixNano(),
	}

	if hasKey {
		meta.FileKey = key
		meta.IdentityType = "FILE_KEY"
		meta.IdentityValue = key
	} else {
		meta.IdentityType = "PATH"
		meta.IdentityValue = fullPath
	}

	return meta
}

func joinRel(relDir, name string) string {
	if relDir == "" {
		return name
	}

	return relDir + "/" + name
}
