package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default timing constants (spec §4.8).
const (
	DefaultHeartbeatInterval  = 2 * time.Second
	DefaultJanitorInterval    = 30 * time.Second
	DefaultMaxScanRuntime     = 45 * time.Minute
	DefaultMaxHeartbeatGap    = 2 * time.Minute
	DefaultTTL                = 6 * time.Hour
	DefaultScanConcurrency    = 1
	DefaultRestoreConcurrency = 1

	// DefaultStaleHistoryRunningAge is the boot-time crash-recovery
	// threshold (spec §4.9): a scan row left RUNNING longer than this is
	// presumed orphaned by a crashed process, distinct from the
	// watchdog's DefaultMaxScanRuntime which governs a live process's
	// own in-memory jobs.
	DefaultStaleHistoryRunningAge = 10 * time.Minute
)

// TaskFunc is the work a submitted job performs. heartbeat must be
// called periodically by long-running tasks; the controller throttles
// actual writes to at most once per HeartbeatInterval.
type TaskFunc func(ctx context.Context, heartbeat func()) error

// Options configures a Controller. Zero values fall back to the
// Default* constants above.
type Options struct {
	HeartbeatInterval  time.Duration
	JanitorInterval    time.Duration
	MaxScanRuntime     time.Duration
	MaxHeartbeatGap    time.Duration
	TTL                time.Duration
	ScanConcurrency    int
	RestoreConcurrency int
	Logger             *slog.Logger
	NowFunc            func() time.Time // injectable for tests
}

// Controller is the in-memory Job Controller described in spec §4.8.
type Controller struct {
	mu   sync.Mutex
	jobs map[string]*Job

	sem map[Kind]chan struct{}

	bus     *EventBus
	logger  *slog.Logger
	nowFunc func() time.Time

	heartbeatInterval time.Duration
	janitorInterval   time.Duration
	maxScanRuntime    time.Duration
	maxHeartbeatGap   time.Duration
	ttl               time.Duration
}

// New builds a Controller with its own EventBus.
func New(opts Options) *Controller {
	c := &Controller{
		jobs:              make(map[string]*Job),
		sem:               make(map[Kind]chan struct{}),
		bus:               NewEventBus(),
		logger:            opts.Logger,
		nowFunc:           opts.NowFunc,
		heartbeatInterval: opts.HeartbeatInterval,
		janitorInterval:   opts.JanitorInterval,
		maxScanRuntime:    opts.MaxScanRuntime,
		maxHeartbeatGap:   opts.MaxHeartbeatGap,
		ttl:               opts.TTL,
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}

	if c.heartbeatInterval <= 0 {
		c.heartbeatInterval = DefaultHeartbeatInterval
	}

	if c.janitorInterval <= 0 {
		c.janitorInterval = DefaultJanitorInterval
	}

	if c.maxScanRuntime <= 0 {
		c.maxScanRuntime = DefaultMaxScanRuntime
	}

	if c.maxHeartbeatGap <= 0 {
		c.maxHeartbeatGap = DefaultMaxHeartbeatGap
	}

	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}

	scanConcurrency := opts.ScanConcurrency
	if scanConcurrency <= 0 {
		scanConcurrency = DefaultScanConcurrency
	}

	restoreConcurrency := opts.RestoreConcurrency
	if restoreConcurrency <= 0 {
		restoreConcurrency = DefaultRestoreConcurrency
	}

	c.sem[KindScan] = make(chan struct{}, scanConcurrency)
	c.sem[KindRestore] = make(chan struct{}, restoreConcurrency)

	return c
}

// Events returns the controller's event bus for subscribers (the
// external WebSocket transport layer, or tests).
func (c *Controller) Events() *EventBus {
	return c.bus
}

// Submit validates inputs, registers a new job in state CREATED, and
// runs fn asynchronously once a concurrency slot for its kind is free.
// Scans (and restores) of the same kind serialize via the per-kind
// semaphore (spec §4.8: "scans serialize via a configurable
// concurrency limit").
func (c *Controller) Submit(kind Kind, root, dest string, fn TaskFunc) (*Job, error) {
	if err := validateInputs(root, dest); err != nil {
		return nil, err
	}

	job := &Job{
		ID: uuid.NewString(), Kind: kind, Root: root, Dest: dest,
		state: StateCreated, createdAt: c.nowFunc(), lastHeartbeatAt: c.nowFunc(),
	}

	c.mu.Lock()
	c.jobs[job.ID] = job
	c.mu.Unlock()

	c.bus.Publish(Event{Type: EventScanCreated, JobID: job.ID, At: c.nowFunc()})

	go c.run(job, fn)

	return job, nil
}

func (c *Controller) run(job *Job, fn TaskFunc) {
	sem := c.sem[job.Kind]

	sem <- struct{}{}
	defer func() { <-sem }()

	ctx, cancel := context.WithCancel(context.Background())

	job.mu.Lock()
	job.cancel = cancel
	now := c.nowFunc()
	job.startedAt = &now
	job.mu.Unlock()

	job.setState(StateRunning)
	c.bus.Publish(Event{Type: runningEvent(job.Kind), JobID: job.ID, At: c.nowFunc()})

	var lastBeat time.Time

	heartbeat := func() {
		now := c.nowFunc()
		if now.Sub(lastBeat) < c.heartbeatInterval {
			return
		}

		lastBeat = now
		job.heartbeat(now)
	}

	err := fn(ctx, heartbeat)

	finishedAt := c.nowFunc()

	job.mu.Lock()
	if isTerminal(job.state) {
		// The watchdog already failed this job; keep its verdict.
		job.mu.Unlock()
		return
	}
	job.finishedAt = &finishedAt
	job.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		job.setState(StateCancelled)
		c.bus.Publish(Event{Type: cancelledEvent(job.Kind), JobID: job.ID, At: finishedAt})
	case err != nil:
		msg := err.Error()

		job.mu.Lock()
		job.message = &msg
		job.mu.Unlock()

		job.setState(StateFailed)
		c.bus.Publish(Event{
			Type: failedEvent(job.Kind), JobID: job.ID, At: finishedAt,
			Payload: map[string]any{"message": msg},
		})
	default:
		job.setState(StateSuccess)
		c.bus.Publish(Event{Type: successEvent(job.Kind), JobID: job.ID, At: finishedAt})
	}
}

func runningEvent(k Kind) string {
	if k == KindRestore {
		return EventRestoreRunning
	}

	return EventScanRunning
}

func successEvent(k Kind) string {
	if k == KindRestore {
		return EventRestoreSuccess
	}

	return EventScanSuccess
}

func failedEvent(k Kind) string {
	if k == KindRestore {
		return EventRestoreFailed
	}

	return EventScanFailed
}

func cancelledEvent(k Kind) string {
	// Restore has no distinct cancelled event in spec §6.3; scans do.
	return EventScanCancelled
}

// Heartbeat is an external heartbeat signal for jobID (used when the
// task itself can't call its own heartbeat closure, e.g. from an HTTP
// handler). Throttled identically to the in-task path.
func (c *Controller) Heartbeat(jobID string) error {
	job, ok := c.Get(jobID)
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", jobID)
	}

	now := c.nowFunc()

	job.mu.Lock()
	last := job.lastHeartbeatAt
	job.mu.Unlock()

	if now.Sub(last) < c.heartbeatInterval {
		return nil
	}

	job.heartbeat(now)

	return nil
}

// Get returns the job by id.
func (c *Controller) Get(jobID string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[jobID]

	return j, ok
}

// List returns a snapshot of every tracked job.
func (c *Controller) List() []Snapshot {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()

	out := make([]Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}

	return out
}

// Cancel sets the job's cancel flag. Returns false if the job is
// unknown or already terminal.
func (c *Controller) Cancel(jobID string) bool {
	job, ok := c.Get(jobID)
	if !ok {
		return false
	}

	job.mu.Lock()
	cancel := job.cancel
	state := job.state
	job.mu.Unlock()

	if cancel == nil || isTerminal(state) {
		return false
	}

	cancel()

	return true
}

func isTerminal(s State) bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}
