package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/scheduler"
	"github.com/hkjang/codelens/internal/sink"
	"github.com/hkjang/codelens/internal/source"
)

// Sentinel errors surfaced by service operations.
var (
	ErrNotFound = errors.New("execution not found")
	ErrClosed   = errors.New("pipeline service closed")
)

// run tracks one spawned execution. outcome and err are written once, before
// done closes.
type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
	err     error
}

// Service spawns and tracks pipeline executions. Status and result lookups
// are served from the sink, so they survive process restarts when the sink
// is persistent. All methods are safe for concurrent use.
type Service struct {
	pipeline *Pipeline
	store    sink.Store
	log      *slog.Logger

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewService wires a Service over the given collector, analyzer source and
// store.
func NewService(cfg Config, collector source.Collector, agents scheduler.AnalyzerSource, store sink.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pipeline: New(cfg, collector, agents, store, logger),
		store:    store,
		log:      logger,
		runs:     make(map[string]*run),
	}
}

// StartOption adjusts one spawned execution.
type StartOption func(*startOptions)

type startOptions struct {
	include []string
	exclude []string
	filters bool
}

// WithFilters narrows the execution's file set with doublestar globs,
// replacing the service-wide collector filters for this run only.
func WithFilters(include, exclude []string) StartOption {
	return func(o *startOptions) {
		o.include, o.exclude = include, exclude
		o.filters = true
	}
}

// StartPipeline spawns a new execution over root and returns its ID. The run
// detaches from ctx cancellation (values are kept); stop it with
// CancelPipeline or Close.
func (s *Service) StartPipeline(ctx context.Context, root string, opts ...StartOption) (string, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	collector := s.pipeline.collector
	if o.filters {
		collector = source.NewFSCollector(o.include, o.exclude, s.log)
	}

	executionID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return "", fmt.Errorf("start pipeline: %w", ErrClosed)
	}
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[executionID] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		outcome, err := s.pipeline.run(runCtx, executionID, root, collector)
		s.mu.Lock()
		r.outcome = outcome
		r.err = err
		s.mu.Unlock()
		close(r.done)
	}()

	return executionID, nil
}

// CancelPipeline requests cooperative cancellation of a running execution.
// The run fails with a cancellation error; already canceled or finished runs
// are left as they are.
func (s *Service) CancelPipeline(executionID string) error {
	s.mu.Lock()
	r, ok := s.runs[executionID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: %w", executionID, ErrNotFound)
	}
	r.cancel()
	return nil
}

// StatusSnapshot is the service view of one execution.
type StatusSnapshot struct {
	Execution analysis.ExecutionRecord  `json:"execution"`
	Stages    []analysis.StageExecution `json:"stages"`
}

// Status returns the execution record and its per-stage bookkeeping.
func (s *Service) Status(ctx context.Context, executionID string) (StatusSnapshot, error) {
	rec, err := s.store.Execution(ctx, executionID)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("status %s: %w", executionID, err)
	}
	if rec == nil {
		return StatusSnapshot{}, fmt.Errorf("status %s: %w", executionID, ErrNotFound)
	}
	stages, err := s.store.StageExecutions(ctx, executionID)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("status %s: %w", executionID, err)
	}
	return StatusSnapshot{Execution: *rec, Stages: stages}, nil
}

// Results returns the normalized results of an execution in stored order.
func (s *Service) Results(ctx context.Context, executionID string) ([]analysis.NormalizedResult, error) {
	rec, err := s.store.Execution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("results %s: %w", executionID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("results %s: %w", executionID, ErrNotFound)
	}
	return s.store.Results(ctx, executionID)
}

// RawFindings returns the pre-normalization findings a run gathered,
// including partial output from failed runs. Raw findings live in memory
// only, so executions started by an earlier process return an empty slice.
func (s *Service) RawFindings(ctx context.Context, executionID string) ([]analysis.RawFinding, error) {
	s.mu.Lock()
	r, ok := s.runs[executionID]
	s.mu.Unlock()
	if ok {
		select {
		case <-r.done:
			s.mu.Lock()
			defer s.mu.Unlock()
			return r.outcome.Raws, nil
		default:
			return nil, nil
		}
	}

	rec, err := s.store.Execution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("raw findings %s: %w", executionID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("raw findings %s: %w", executionID, ErrNotFound)
	}
	return nil, nil
}

// Wait blocks until the execution reaches a terminal status and returns its
// final record. It unblocks early when ctx is done.
func (s *Service) Wait(ctx context.Context, executionID string) (analysis.ExecutionRecord, error) {
	s.mu.Lock()
	r, ok := s.runs[executionID]
	s.mu.Unlock()
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return analysis.ExecutionRecord{}, ctx.Err()
		}
	}

	rec, err := s.store.Execution(ctx, executionID)
	if err != nil {
		return analysis.ExecutionRecord{}, fmt.Errorf("wait %s: %w", executionID, err)
	}
	if rec == nil {
		return analysis.ExecutionRecord{}, fmt.Errorf("wait %s: %w", executionID, ErrNotFound)
	}
	return *rec, nil
}

// Executions lists all known executions, newest first.
func (s *Service) Executions(ctx context.Context) ([]analysis.ExecutionRecord, error) {
	return s.store.Executions(ctx)
}

// Events returns the progress event stream shared by all executions.
func (s *Service) Events() <-chan Event {
	return s.pipeline.Events()
}

// Close cancels every active run, waits for them to settle and releases the
// reporter and the store. Further StartPipeline calls fail with ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.pipeline.Close()
	return s.store.Close()
}
