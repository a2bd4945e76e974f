// Package jobs implements the Job Controller (spec §4.8): an
// in-memory registry of scan/restore jobs with heartbeat tracking,
// watchdog eviction, TTL cleanup, and cooperative cancellation.
package jobs

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes the two job types the controller runs.
type Kind string

// Job kinds (spec §4.8).
const (
	KindScan    Kind = "scan"
	KindRestore Kind = "restore"
)

// State is a Job's lifecycle state (spec §4.8).
type State string

// Job states.
const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// WatchdogExitCode is used when the janitor evicts a job for a runtime
// or heartbeat breach (spec §4.8).
const WatchdogExitCode = 124

var errInvalidInput = errors.New("jobs: root and dest must be non-empty and contain no NUL bytes")

// Job is one submitted unit of work. Mutable fields are guarded by mu;
// callers must use the accessor methods rather than touching fields
// directly from outside the package.
type Job struct {
	ID   string
	Kind Kind
	Root string
	Dest string

	mu              sync.Mutex
	state           State
	createdAt       time.Time
	startedAt       *time.Time
	finishedAt      *time.Time
	lastHeartbeatAt time.Time
	exitCode        *int
	message         *string
	scanID          *int64

	cancel func()
}

// Snapshot is an immutable copy of a Job's fields, safe to hand to
// callers outside the package (e.g. for HTTP responses).
type Snapshot struct {
	ID              string
	Kind            Kind
	State           State
	Root            string
	Dest            string
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastHeartbeatAt time.Time
	ExitCode        *int
	Message         *string
	ScanID          *int64
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	return Snapshot{
		ID: j.ID, Kind: j.Kind, State: j.state, Root: j.Root, Dest: j.Dest,
		CreatedAt: j.createdAt, StartedAt: j.startedAt, FinishedAt: j.finishedAt,
		LastHeartbeatAt: j.lastHeartbeatAt, ExitCode: j.exitCode, Message: j.message, ScanID: j.scanID,
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) heartbeat(now time.Time) {
	j.mu.Lock()
	j.lastHeartbeatAt = now
	j.mu.Unlock()
}

// SetScanID records the scan row id this job is driving, once known.
func (j *Job) SetScanID(id int64) {
	j.mu.Lock()
	j.scanID = &id
	j.mu.Unlock()
}

func validateInputs(root, dest string) error {
	if root == "" || dest == "" {
		return errInvalidInput
	}

	if strings.ContainsRune(root, 0) || strings.ContainsRune(dest, 0) {
		return errInvalidInput
	}

	return nil
}
