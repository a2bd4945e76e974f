package store

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Retry parameters for SQLITE_BUSY / SQLITE_LOCKED contention, per the
// single-writer batched persistence scheme: six attempts, 50ms base,
// doubling, with jitter to avoid synchronized retries across workers.
const (
	maxBusyRetries = 6
	baseBusyDelay  = 50 * time.Millisecond
	maxBusyDelay   = 2 * time.Second
	busyJitter     = 0.25
)

// sleepFunc is overridable in tests to avoid real delays.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withBusyRetry runs fn, retrying with exponential backoff when the
// underlying sqlite driver reports the database is busy or locked, as
// detected by isBusyOrLocked from the error message. Any other error is
// returned at once without a retry.
func withBusyRetry(ctx context.Context, logger *slog.Logger, counter *int64, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isBusyOrLocked(lastErr) {
			return lastErr
		}

		if counter != nil {
			*counter++
		}

		delay := calcBusyDelay(attempt)
		logger.Warn("retrying after sqlite contention",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", lastErr.Error()),
		)

		if err := sleepFunc(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// calcBusyDelay computes exponential backoff with jitter, capped at
// maxBusyDelay.
func calcBusyDelay(attempt int) time.Duration {
	backoff := float64(baseBusyDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBusyDelay) {
		backoff = float64(maxBusyDelay)
	}

	jitter := backoff * busyJitter * (rand.Float64()*2 - 1) //nolint:gosec // non-cryptographic jitter
	d := time.Duration(backoff + jitter)

	if d < 0 {
		d = baseBusyDelay
	}

	return d
}

// isBusyOrLocked reports whether err signals SQLite contention rather
// than a genuine query or constraint failure. modernc.org/sqlite surfaces
// SQLITE_BUSY/SQLITE_LOCKED as plain *errors.errorString values produced
// by the C-to-Go translation layer, so match on message content rather
// than a driver-specific error type.
func isBusyOrLocked(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
