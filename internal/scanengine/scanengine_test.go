package scanengine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeply/backup-agent/internal/blobstore"
	"github.com/keeply/backup-agent/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(context.Background(), dir, "test", "s3cret", 4, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func testOptions() Options {
	return Options{
		Workers: 2, BatchLimit: 100, IssueCapacity: 64, QueueCapacity: 64, PoolSize: 2,
		PreloadIndexMaxRows: 1000, LRUCacheSize: 128, HashingEnabled: true,
	}
}

func TestRunScanEmptyRoot(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	report, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, store.ScanSuccess, report.Status)
	assert.Equal(t, int64(0), report.Summary.FilesTotal)

	entries, err := blobs.ReadManifest(report.ScanID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunScanTwoFilesFresh(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("world"), 0o644))

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	report, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, store.ScanSuccess, report.Status)
	assert.Equal(t, int64(2), report.Summary.FilesTotal)
	assert.Equal(t, int64(2), report.Summary.NewCount)

	entries, err := blobs.ReadManifest(report.ScanID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunScanSecondScanNoChangesIsIdempotent(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	_, err = eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)

	report2, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report2.Summary.UnchangedCount)
	assert.Equal(t, int64(0), report2.Summary.NewCount)

	entries, err := blobs.ReadManifest(report2.ScanID)
	require.NoError(t, err)
	assert.Empty(t, entries, "an unchanged file produces no manifest entry on the second scan")
}

func TestRunScanRecordsBackupHistory(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	report, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)

	history, err := st.ListBackupHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "scan", history[0].BackupType)
	assert.Equal(t, "OK", history[0].Status)
	assert.Equal(t, report.ScanID, *history[0].ScanID)
	assert.Equal(t, int64(1), history[0].FilesProcessed)
}

func TestRunScanDeletionReconciliation(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	aPath := filepath.Join(root, "a.txt")
	bPath := filepath.Join(root, "b.txt")
	require.NoError(t, os.WriteFile(aPath, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte("world"), 0o644))

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	_, err = eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)

	require.NoError(t, os.Remove(bPath))

	report2, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report2.Summary.DeletedCount)
	assert.Equal(t, int64(1), report2.Summary.UnchangedCount)
}

func TestRunScanMovePreservesHash(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	aPath := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(aPath, []byte("hello"), 0o644))

	st := newTestStore(t)
	blobs, err := blobstore.New(destDir)
	require.NoError(t, err)

	eng := New(st, blobs, testLogger(), func() int { return 2 })

	_, err = eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.Rename(aPath, filepath.Join(root, "sub", "a.txt")))

	report2, err := eng.RunScan(context.Background(), root, destDir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report2.Summary.MovedCount)

	entries, err := blobs.ReadManifest(report2.ScanID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", entries[0].HashHex)
}
