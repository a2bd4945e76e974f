package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeply/backup-agent/internal/store"
)

func newJanitorTestStore(t *testing.T) store.Store {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(context.Background(), dir, "test", "s3cret", 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func TestRecoverOnBootUsesStaleHistoryRunningAgeNotMaxScanRuntime(t *testing.T) {
	st := newJanitorTestStore(t)
	ctx := context.Background()

	base := time.Unix(10_000, 0)

	// Started 20 minutes before "now": stale for the spec's 10-minute
	// threshold, but well inside DefaultMaxScanRuntime (45 minutes) —
	// RecoverOnBoot must use the former, not the latter.
	startedAt := base.Add(-20 * time.Minute).UnixNano()

	scanID, err := st.CreateScan(ctx, "/data", startedAt)
	require.NoError(t, err)

	nowFunc := func() time.Time { return base }

	n, err := RecoverOnBoot(ctx, st, DefaultStaleHistoryRunningAge, nowFunc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sc, err := st.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, store.ScanFailed, sc.Status)
	require.NotNil(t, sc.FinishedAt)
	// finished_at records the actual recovery time, not the staleness
	// cutoff used to select candidate rows.
	assert.Equal(t, base.UnixNano(), *sc.FinishedAt)
}

func TestRecoverOnBootLeavesRecentScansRunning(t *testing.T) {
	st := newJanitorTestStore(t)
	ctx := context.Background()

	base := time.Unix(10_000, 0)

	// Started 2 minutes ago: well under the 10-minute threshold.
	scanID, err := st.CreateScan(ctx, "/data", base.Add(-2*time.Minute).UnixNano())
	require.NoError(t, err)

	nowFunc := func() time.Time { return base }

	n, err := RecoverOnBoot(ctx, st, DefaultStaleHistoryRunningAge, nowFunc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sc, err := st.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, store.ScanRunning, sc.Status)
}
