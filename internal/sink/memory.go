package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/hkjang/codelens/internal/analysis"
)

// Compile-time assertion: *MemorySink satisfies Store.
var _ Store = (*MemorySink)(nil)

// MemorySink implements Store using Go maps. Thread-safe via sync.RWMutex.
// Each save records the position of every result so reads preserve the
// order of the most recent save.
type MemorySink struct {
	mu         sync.RWMutex
	executions map[string]analysis.ExecutionRecord
	stages     map[string]map[analysis.Stage]analysis.StageExecution
	results    map[string]map[string]analysis.NormalizedResult
	positions  map[string]map[string]int
}

// NewMemorySink returns an initialized MemorySink ready for use.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		executions: make(map[string]analysis.ExecutionRecord),
		stages:     make(map[string]map[analysis.Stage]analysis.StageExecution),
		results:    make(map[string]map[string]analysis.NormalizedResult),
		positions:  make(map[string]map[string]int),
	}
}

// SaveExecution upserts an execution record keyed by ID.
func (m *MemorySink) SaveExecution(_ context.Context, rec analysis.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[rec.ID] = rec
	return nil
}

// SaveStageExecution upserts stage bookkeeping keyed by (executionID, stage).
func (m *MemorySink) SaveStageExecution(_ context.Context, se analysis.StageExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stages, ok := m.stages[se.ExecutionID]
	if !ok {
		stages = make(map[analysis.Stage]analysis.StageExecution, analysis.StageCount)
		m.stages[se.ExecutionID] = stages
	}
	stages[se.Stage] = se
	return nil
}

// SaveResults upserts results keyed by (executionID, resultID).
func (m *MemorySink) SaveResults(_ context.Context, executionID string, results []analysis.NormalizedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.results[executionID]
	if !ok {
		byID = make(map[string]analysis.NormalizedResult, len(results))
		m.results[executionID] = byID
		m.positions[executionID] = make(map[string]int, len(results))
	}
	for i, r := range results {
		byID[r.ID] = r
		m.positions[executionID][r.ID] = i
	}
	return nil
}

// Execution returns the record for executionID, or nil if not found.
func (m *MemorySink) Execution(_ context.Context, executionID string) (*analysis.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.executions[executionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Executions returns all execution records, newest first.
func (m *MemorySink) Executions(_ context.Context) ([]analysis.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analysis.ExecutionRecord, 0, len(m.executions))
	for _, rec := range m.executions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// StageExecutions returns stage bookkeeping for executionID in stage order.
func (m *MemorySink) StageExecutions(_ context.Context, executionID string) ([]analysis.StageExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stages, ok := m.stages[executionID]
	if !ok {
		return nil, nil
	}
	out := make([]analysis.StageExecution, 0, len(stages))
	for _, se := range stages {
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// Results returns the results for executionID in last-saved order.
func (m *MemorySink) Results(_ context.Context, executionID string) ([]analysis.NormalizedResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.results[executionID]
	positions := m.positions[executionID]

	out := make([]analysis.NormalizedResult, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := positions[out[i].ID], positions[out[j].ID]
		if pi != pj {
			return pi < pj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op for the in-memory sink.
func (m *MemorySink) Close() error { return nil }
