package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/keeply/backup-agent/internal/store"
)

// StartJanitor launches a background sweep that evicts jobs breaching
// MaxScanRuntime or MaxHeartbeatGap (watchdog eviction, spec §4.8) and
// removes terminal jobs older than TTL. It returns a stop function;
// the returned goroutine exits once ctx is cancelled or stop is
// called.
func (c *Controller) StartJanitor(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	ticker := time.NewTicker(c.janitorInterval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()

	return cancel
}

func (c *Controller) sweep() {
	now := c.nowFunc()

	c.mu.Lock()
	snapshot := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		snapshot = append(snapshot, j)
	}
	c.mu.Unlock()

	for _, j := range snapshot {
		c.sweepOne(j, now)
	}
}

func (c *Controller) sweepOne(j *Job, now time.Time) {
	j.mu.Lock()
	state := j.state
	startedAt := j.startedAt
	lastBeat := j.lastHeartbeatAt
	finishedAt := j.finishedAt
	cancel := j.cancel
	id := j.ID
	kind := j.Kind
	j.mu.Unlock()

	switch state {
	case StateRunning:
		runtimeBreach := startedAt != nil && now.Sub(*startedAt) > c.maxScanRuntime
		heartbeatBreach := now.Sub(lastBeat) > c.maxHeartbeatGap

		if !runtimeBreach && !heartbeatBreach {
			return
		}

		reason := "heartbeat gap exceeded"
		if runtimeBreach {
			reason = "max runtime exceeded"
		}

		exitCode := WatchdogExitCode

		j.mu.Lock()
		j.exitCode = &exitCode
		j.message = &reason
		finishedAt := now
		j.finishedAt = &finishedAt
		j.state = StateFailed
		j.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		c.logger.Warn("jobs: watchdog evicted job", "id", id, "kind", kind, "reason", reason)

		c.bus.Publish(Event{
			Type: failedEvent(kind), JobID: id, At: now,
			Payload: map[string]any{"message": reason, "exitCode": exitCode, "watchdog": true},
		})

	case StateSuccess, StateFailed, StateCancelled:
		if finishedAt == nil || now.Sub(*finishedAt) <= c.ttl {
			return
		}

		c.mu.Lock()
		delete(c.jobs, id)
		c.mu.Unlock()

		c.logger.Debug("jobs: ttl evicted job", "id", id, "kind", kind)
		c.bus.Publish(Event{Type: EventScanCleanup, JobID: id, At: now, Payload: map[string]any{"removed": true}})
	}
}

// RecoverOnBoot flips any scan rows left RUNNING by a previous process
// (crash recovery, spec §4.9) to FAILED if they started more than
// staleAfter ago, and returns how many were recovered.
func RecoverOnBoot(ctx context.Context, st store.Store, staleAfter time.Duration, nowFunc func() time.Time, logger *slog.Logger) (int, error) {
	now := nowFunc()
	threshold := now.Add(-staleAfter).UnixNano()

	recovered, err := st.RecoverStaleRunningScans(ctx, threshold, now.UnixNano())
	if err != nil {
		return 0, err
	}

	if len(recovered) > 0 {
		logger.Warn("jobs: recovered stale running scans on boot", "count", len(recovered))
	}

	return len(recovered), nil
}
