package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeply/backup-agent/internal/store"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	return p
}

func TestPutContentStoresAndDeduplicates(t *testing.T) {
	destDir := t.TempDir()
	srcDir := t.TempDir()

	s, err := New(destDir)
	require.NoError(t, err)

	src := writeTempFile(t, srcDir, "a.txt", "hello")

	res, err := s.PutContent(src, "sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", 5)
	require.NoError(t, err)
	assert.True(t, res.Stored)

	res2, err := s.PutContent(src, "sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", 5)
	require.NoError(t, err)
	assert.False(t, res2.Stored, "second put of the same content must be a no-op")

	blobPath, err := s.blobPath("sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	require.NoError(t, err)

	data, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteManifestSortsByPathRel(t *testing.T) {
	destDir := t.TempDir()

	s, err := New(destDir)
	require.NoError(t, err)

	require.NoError(t, s.WriteManifest(1, []store.ManifestEntry{
		{PathRel: "b.txt", Algo: "sha256", HashHex: "hb", SizeBytes: 2, ModifiedAt: 100},
		{PathRel: "a.txt", Algo: "sha256", HashHex: "ha", SizeBytes: 1, ModifiedAt: 100},
	}))

	entries, err := s.ReadManifest(1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].PathRel)
	assert.Equal(t, "b.txt", entries[1].PathRel)
}

func TestRestoreChangedFilesFromScanDestWithStructure(t *testing.T) {
	destDir := t.TempDir()
	srcDir := t.TempDir()
	restoreDir := t.TempDir()

	s, err := New(destDir)
	require.NoError(t, err)

	src := writeTempFile(t, srcDir, "a.txt", "hello")
	_, err = s.PutContent(src, "sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", 5)
	require.NoError(t, err)

	require.NoError(t, s.WriteManifest(1, []store.ManifestEntry{
		{PathRel: "sub/a.txt", Algo: "sha256", HashHex: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SizeBytes: 5, ModifiedAt: 100},
	}))

	res, err := s.RestoreChangedFilesFromScan(context.Background(), RestoreOptions{
		ScanID: 1, DestinationDir: restoreDir, Mode: ModeDestWithStructure,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesRestored)
	assert.Equal(t, 0, res.Errors)

	data, err := os.ReadFile(filepath.Join(restoreDir, "sub/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRestoreChangedFilesFromScanMissingBlobCountsError(t *testing.T) {
	destDir := t.TempDir()
	restoreDir := t.TempDir()

	s, err := New(destDir)
	require.NoError(t, err)

	require.NoError(t, s.WriteManifest(1, []store.ManifestEntry{
		{PathRel: "missing.txt", Algo: "sha256", HashHex: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", SizeBytes: 3, ModifiedAt: 100},
	}))

	res, err := s.RestoreChangedFilesFromScan(context.Background(), RestoreOptions{
		ScanID: 1, DestinationDir: restoreDir, Mode: ModeDestWithStructure,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.FilesRestored)
	assert.Equal(t, 1, res.Errors)
}
