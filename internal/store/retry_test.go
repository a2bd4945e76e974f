package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func TestWithBusyRetrySucceedsAfterTransientBusy(t *testing.T) {
	orig := sleepFunc
	sleepFunc = noopSleep
	defer func() { sleepFunc = orig }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var counter int64
	attempts := 0

	err := withBusyRetry(context.Background(), logger, &counter, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(2), counter)
}

func TestWithBusyRetryGivesUpAfterMaxAttempts(t *testing.T) {
	orig := sleepFunc
	sleepFunc = noopSleep
	defer func() { sleepFunc = orig }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var counter int64

	err := withBusyRetry(context.Background(), logger, &counter, func() error {
		return errors.New("SQLITE_BUSY: database is locked")
	})

	require.Error(t, err)
	assert.Equal(t, int64(maxBusyRetries), counter)
}

func TestWithBusyRetryDoesNotRetryNonContentionErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var counter int64
	attempts := 0

	err := withBusyRetry(context.Background(), logger, &counter, func() error {
		attempts++
		return errors.New("constraint failed: UNIQUE")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int64(0), counter)
}

func TestWithBusyRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var counter int64

	err := withBusyRetry(ctx, logger, &counter, func() error {
		return errors.New("database is locked")
	})

	assert.Error(t, err)
}
