// Package scheduler runs analyzer invocations on a bounded worker pool with
// priority ordering, per-task timeouts and retry with exponential backoff.
// Each pipeline execution owns its own Scheduler instance.
package scheduler

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hkjang/codelens/internal/analysis"
)

// Sentinel errors surfaced by scheduler operations.
var (
	ErrUnknownAgent = errors.New("unknown agent type")
	ErrQueueFull    = errors.New("task queue full")
	ErrStopped      = errors.New("scheduler stopped")
	ErrTaskTimeout  = errors.New("task timed out")
	ErrTaskNotFound = errors.New("task not found")
)

// TaskStatus tracks a task through its lifecycle. Status transitions are
// applied only by scheduler-owned goroutines: pending → running →
// {completed | failed}; canceled is reserved for cleared pending tasks.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCanceled  TaskStatus = "canceled"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCanceled
}

// task is the internal mutable record, guarded by Scheduler.mu. A retrying
// task flips back to pending while its retry timer runs; attempt is the
// epoch guard that lets late results from abandoned attempts be discarded.
type task struct {
	id         string
	agent      analysis.AgentType
	input      analysis.AgentInput
	priority   int
	seq        uint64
	timeout    time.Duration
	maxRetries int

	status      TaskStatus
	retryCount  int
	attempt     int
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	err         error
	findings    []analysis.RawFinding

	backoff    *backoff.ExponentialBackOff
	retryTimer *time.Timer
	index      int           // heap index, -1 when not queued
	done       chan struct{} // closed on terminal status
}

// Snapshot is the externally visible view of a task.
type Snapshot struct {
	ID          string
	Agent       analysis.AgentType
	Priority    int
	Status      TaskStatus
	RetryCount  int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Err         error
	Findings    []analysis.RawFinding
}

func (t *task) snapshot() Snapshot {
	return Snapshot{
		ID:          t.id,
		Agent:       t.agent,
		Priority:    t.priority,
		Status:      t.status,
		RetryCount:  t.retryCount,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
		Err:         t.err,
		Findings:    t.findings,
	}
}

// Stats is the O(1) scheduler counter set. The invariant
// Total == Pending + Running + Completed + Failed holds under all
// interleavings; cleared tasks leave the totals entirely.
type Stats struct {
	Total       int
	Pending     int
	Running     int
	Completed   int
	Failed      int
	AvgExecTime time.Duration
}

// TaskOption customizes one task at enqueue time.
type TaskOption func(*taskOptions)

type taskOptions struct {
	priority   int
	timeout    time.Duration
	maxRetries int
}

// WithPriority sets the dispatch priority. Higher runs first; equal
// priorities dispatch FIFO by enqueue order.
func WithPriority(p int) TaskOption {
	return func(o *taskOptions) { o.priority = p }
}

// WithTimeout overrides the per-task timeout for this task only.
func WithTimeout(d time.Duration) TaskOption {
	return func(o *taskOptions) { o.timeout = d }
}

// WithMaxRetries overrides the retry budget for this task only.
func WithMaxRetries(n int) TaskOption {
	return func(o *taskOptions) { o.maxRetries = n }
}

// newTaskBackoff builds the per-task retry delay source: base × 2^n with
// ±50% jitter, uncapped by elapsed time since the retry budget bounds it.
func newTaskBackoff(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
