package classifier

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestHybridIndexLookupMissReturnsNil(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	idx, err := Load(ctx, st, "/data", 1000, 128, testLogger())
	require.NoError(t, err)
	assert.False(t, idx.Truncated())

	view := idx.NewWorkerView()

	p, err := view.Lookup(ctx, store.IdentityPath, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestHybridIndexLookupFallsThroughToStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scanID, err := st.CreateScan(ctx, "/data", 100)
	require.NoError(t, err)

	pathID, err := st.InternPath(ctx, "/data/a.txt")
	require.NoError(t, err)

	require.NoError(t, st.UpsertFileState(ctx, store.FileState{
		RootPath: "/data", IdentityType: store.IdentityPath, IdentityValue: "a.txt",
		SizeBytes: 5, CreatedAt: 100, ModifiedAt: 100, PathID: pathID,
		ContentAlgo: "sha256", ContentHash: "abc", HashStatus: store.HashOK, LastScanID: scanID,
	}))

	// maxRows 0 disables the preload, so the lookup has to reach the store.
	idx, err := Load(ctx, st, "/data", 0, 128, testLogger())
	require.NoError(t, err)

	view := idx.NewWorkerView()

	p, err := view.Lookup(ctx, store.IdentityPath, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "abc", p.ContentHash)
	assert.Equal(t, "/data/a.txt", p.KnownPath)

	p2, err := view.Lookup(ctx, store.IdentityPath, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}

func TestHybridIndexMarksTruncatedWhenOverCap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scanID, err := st.CreateScan(ctx, "/data", 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pathID, err := st.InternPath(ctx, "/data/f"+string(rune('a'+i))+".txt")
		require.NoError(t, err)

		require.NoError(t, st.UpsertFileState(ctx, store.FileState{
			RootPath: "/data", IdentityType: store.IdentityPath, IdentityValue: "f" + string(rune('a'+i)) + ".txt",
			SizeBytes: 1, CreatedAt: 100, ModifiedAt: 100, PathID: pathID,
			HashStatus: store.HashOK, LastScanID: scanID,
		}))
	}

	idx, err := Load(ctx, st, "/data", 2, 128, testLogger())
	require.NoError(t, err)
	assert.True(t, idx.Truncated())
}

func TestHybridIndexPreloadsSnapshotWithoutStoreFallthrough(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scanID, err := st.CreateScan(ctx, "/data", 100)
	require.NoError(t, err)

	pathID, err := st.InternPath(ctx, "/data/a.txt")
	require.NoError(t, err)

	require.NoError(t, st.UpsertFileState(ctx, store.FileState{
		RootPath: "/data", IdentityType: store.IdentityPath, IdentityValue: "a.txt",
		SizeBytes: 5, CreatedAt: 100, ModifiedAt: 100, PathID: pathID,
		ContentAlgo: "sha256", ContentHash: "abc", HashStatus: store.HashOK, LastScanID: scanID,
	}))

	idx, err := Load(ctx, st, "/data", 1000, 128, testLogger())
	require.NoError(t, err)

	key := indexKey{identityType: store.IdentityPath, identityValue: "a.txt"}
	p, ok := idx.snapshot[key]
	require.True(t, ok, "preload should have populated the snapshot map directly")
	assert.Equal(t, "abc", p.ContentHash)
}
