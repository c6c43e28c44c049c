package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hkjang/codelens/internal/analysis"
)

// Config tunes one scheduler instance. Zero or negative fields fall back to
// the defaults below, except MaxRetries where only negative values do: zero
// disables retries.
type Config struct {
	// MaxConcurrency bounds simultaneously running tasks.
	MaxConcurrency int
	// MaxRetries is the retry budget per task after the initial attempt.
	MaxRetries int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
	// TaskTimeout bounds a single attempt when the analyzer offers no hint.
	TaskTimeout time.Duration
	// QueueCapacity bounds pending tasks, including retry-waiting ones.
	QueueCapacity int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		TaskTimeout:    60 * time.Second,
		QueueCapacity:  256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	return c
}

// AnalyzerSource resolves agent types to analyzers at dispatch time.
// *agent.Registry satisfies this.
type AnalyzerSource interface {
	Lookup(analysis.AgentType) (analysis.Analyzer, bool)
}

// Scheduler runs analyzer tasks on a bounded worker pool. Zero value is not
// usable; construct with New. All exported methods are safe for concurrent
// use.
type Scheduler struct {
	cfg    Config
	agents AnalyzerSource
	log    *slog.Logger

	mu        sync.Mutex
	queue     taskQueue
	tasks     map[string]*task
	seq       uint64
	running   int
	stats     Stats
	execTotal time.Duration
	started   bool
	stopped   bool
	baseCtx   context.Context
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a scheduler over the given analyzer source.
func New(cfg Config, agents AnalyzerSource, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		agents:  agents,
		log:     logger,
		tasks:   make(map[string]*task),
		baseCtx: context.Background(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins dispatching queued tasks. Task attempt contexts derive from
// ctx; canceling it fails running attempts without retry and stops the
// scheduler. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx = ctx
	s.dispatchLocked()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
}

// Stop stops dispatching, cancels retry waits, and blocks until running
// attempts settle. Queued tasks stay pending. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
		for _, t := range s.tasks {
			if t.retryTimer != nil {
				t.retryTimer.Stop()
				t.retryTimer = nil
			}
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// AddTask validates and enqueues one analyzer invocation, returning its ID.
func (s *Scheduler) AddTask(agent analysis.AgentType, input analysis.AgentInput, opts ...TaskOption) (string, error) {
	analyzer, ok := s.agents.Lookup(agent)
	if !ok {
		return "", fmt.Errorf("add task: %w: %q", ErrUnknownAgent, agent)
	}

	o := taskOptions{maxRetries: -1}
	for _, opt := range opts {
		opt(&o)
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = analyzer.MaxDurationHint()
	}
	if timeout <= 0 {
		timeout = s.cfg.TaskTimeout
	}
	maxRetries := o.maxRetries
	if maxRetries < 0 {
		maxRetries = s.cfg.MaxRetries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", fmt.Errorf("add task: %w", ErrStopped)
	}
	if s.stats.Pending >= s.cfg.QueueCapacity {
		return "", fmt.Errorf("add task: %w (capacity %d)", ErrQueueFull, s.cfg.QueueCapacity)
	}

	t := &task{
		id:         uuid.New().String(),
		agent:      agent,
		input:      input,
		priority:   o.priority,
		seq:        s.nextSeqLocked(),
		timeout:    timeout,
		maxRetries: maxRetries,
		status:     TaskPending,
		createdAt:  time.Now(),
		backoff:    newTaskBackoff(s.cfg.RetryBaseDelay),
		index:      -1,
		done:       make(chan struct{}),
	}
	s.tasks[t.id] = t
	heap.Push(&s.queue, t)
	s.stats.Total++
	s.stats.Pending++
	s.dispatchLocked()
	return t.id, nil
}

// Task returns a snapshot of the task with the given ID.
func (s *Scheduler) Task(id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return t.snapshot(), nil
}

// Tasks lists snapshots of every known task in enqueue order.
func (s *Scheduler) Tasks() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Await blocks until the task reaches a terminal status, then returns its
// snapshot. It unblocks early when ctx is done or when the scheduler stops
// while the task is still queued.
func (s *Scheduler) Await(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("await %s: %w", id, ErrTaskNotFound)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return s.mustSnapshot(t), ctx.Err()
	case <-s.stopCh:
		// Drain keeps running attempts alive; only still-queued tasks will
		// never finish.
		s.mu.Lock()
		pending := t.status == TaskPending
		s.mu.Unlock()
		if pending {
			return s.mustSnapshot(t), fmt.Errorf("await %s: %w", id, ErrStopped)
		}
		select {
		case <-t.done:
		case <-ctx.Done():
			return s.mustSnapshot(t), ctx.Err()
		}
	}
	return s.mustSnapshot(t), nil
}

// Stats returns the counter set. O(1); counters are maintained incrementally
// on every transition.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if st.Completed > 0 {
		st.AvgExecTime = s.execTotal / time.Duration(st.Completed)
	}
	return st
}

// Clear cancels every pending task, including retry-waiting ones, and
// removes them from the totals. Running and terminal tasks are untouched.
// Returns the number of canceled tasks.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	now := time.Now()
	for _, t := range s.tasks {
		if t.status != TaskPending {
			continue
		}
		if t.index >= 0 {
			heap.Remove(&s.queue, t.index)
		}
		if t.retryTimer != nil {
			t.retryTimer.Stop()
			t.retryTimer = nil
		}
		t.status = TaskCanceled
		t.completedAt = &now
		s.stats.Pending--
		s.stats.Total--
		close(t.done)
		cleared++
	}
	return cleared
}

// --- Dispatch loop ---

func (s *Scheduler) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}

// dispatchLocked pops tasks while worker slots are free. Callers hold mu.
func (s *Scheduler) dispatchLocked() {
	if !s.started || s.stopped {
		return
	}
	for s.running < s.cfg.MaxConcurrency && s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*task)
		t.status = TaskRunning
		t.attempt++
		if t.startedAt == nil {
			now := time.Now()
			t.startedAt = &now
		}
		s.stats.Pending--
		s.stats.Running++
		s.running++
		s.wg.Add(1)
		go s.runTask(t, t.attempt)
	}
}

// runTask executes one attempt off the scheduler lock and settles the
// outcome.
func (s *Scheduler) runTask(t *task, attempt int) {
	defer s.wg.Done()

	analyzer, ok := s.agents.Lookup(t.agent)
	if !ok {
		s.settle(t, attempt, nil, backoff.Permanent(fmt.Errorf("%w: %q", ErrUnknownAgent, t.agent)), 0)
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, t.timeout)
	defer cancel()

	start := time.Now()
	findings, err := s.execute(ctx, analyzer, t.input, t.timeout)
	s.settle(t, attempt, findings, err, time.Since(start))
}

// execute runs the analyzer with a hard timeout guard. A non-cooperative
// analyzer frees its worker slot on expiry; its late result is discarded via
// the attempt epoch in settle.
func (s *Scheduler) execute(ctx context.Context, a analysis.Analyzer, input analysis.AgentInput, timeout time.Duration) ([]analysis.RawFinding, error) {
	type outcome struct {
		findings []analysis.RawFinding
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		findings, err := a.Execute(ctx, input)
		ch <- outcome{findings, err}
	}()

	select {
	case out := <-ch:
		// A cooperative analyzer may return the deadline error itself;
		// normalize it so timeouts are reported uniformly.
		if errors.Is(out.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out.findings, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
		}
		return out.findings, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}

// settle applies the outcome of one attempt: completion, retry scheduling,
// or terminal failure.
func (s *Scheduler) settle(t *task, attempt int, findings []analysis.RawFinding, err error, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.status != TaskRunning || t.attempt != attempt {
		return // late result from an abandoned attempt
	}
	s.running--
	s.stats.Running--
	now := time.Now()

	switch {
	case err == nil:
		t.status = TaskCompleted
		t.completedAt = &now
		t.findings = findings
		t.err = nil
		s.stats.Completed++
		s.execTotal += dur
		close(t.done)

	case s.retryableLocked(t, err):
		t.retryCount++
		t.err = err
		t.status = TaskPending
		s.stats.Pending++
		delay := t.backoff.NextBackOff()
		s.log.Debug("task retry scheduled",
			"task_id", t.id, "agent", t.agent, "attempt", t.retryCount, "delay", delay, "error", err)
		t.retryTimer = time.AfterFunc(delay, func() { s.requeue(t) })

	default:
		t.status = TaskFailed
		t.completedAt = &now
		t.err = err
		s.stats.Failed++
		s.log.Debug("task failed", "task_id", t.id, "agent", t.agent, "retries", t.retryCount, "error", err)
		close(t.done)
	}

	s.dispatchLocked()
}

// retryableLocked decides whether a failed attempt gets another try.
func (s *Scheduler) retryableLocked(t *task, err error) bool {
	if s.stopped {
		return false
	}
	if t.retryCount >= t.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var perm *backoff.PermanentError
	return !errors.As(err, &perm)
}

// requeue returns a retry-waiting task to the queue once its delay elapses.
func (s *Scheduler) requeue(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.status != TaskPending || t.retryTimer == nil {
		return // cleared or already handled
	}
	t.retryTimer = nil
	t.seq = s.nextSeqLocked()
	heap.Push(&s.queue, t)
	s.dispatchLocked()
}

func (s *Scheduler) mustSnapshot(t *task) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.snapshot()
}
