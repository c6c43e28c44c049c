package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/agent"
	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/sink"
	"github.com/hkjang/codelens/internal/source"
)

func newTestService(t *testing.T, reg *agent.Registry) *Service {
	t.Helper()
	cfg := Config{Scheduler: fastSchedulerConfig()}
	store := sink.NewMemorySink()
	collector := source.NewFSCollector(nil, nil, quietLogger())
	s := NewService(cfg, collector, reg, store, quietLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestService_StartAndWait(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	s := newTestService(t, newTestRegistry(t))

	id, err := s.StartPipeline(context.Background(), root)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, analysis.ExecCompleted, rec.Status)
	assert.Equal(t, 1, rec.FileCount)
	assert.Equal(t, 3, rec.FindingCount)

	snap, err := s.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.Execution.ID)
	assert.Len(t, snap.Stages, analysis.StageCount)

	results, err := s.Results(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	raws, err := s.RawFindings(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, raws, 3)

	execs, err := s.Executions(context.Background())
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, id, execs[0].ID)
}

func TestService_StartPipeline_WithFilters(t *testing.T) {
	root := writeProject(t, map[string]string{
		"keep.go": "package keep\n",
		"skip.py": "x = 1\n",
	})
	s := newTestService(t, newTestRegistry(t))

	id, err := s.StartPipeline(context.Background(), root, WithFilters([]string{"*.go"}, nil))
	require.NoError(t, err)

	rec, err := s.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, analysis.ExecCompleted, rec.Status)
	assert.Equal(t, 1, rec.FileCount, "the python file is filtered out")

	results, err := s.Results(context.Background(), id)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "keep.go", r.FilePath)
	}
}

func TestService_UnknownExecution(t *testing.T) {
	s := newTestService(t, newTestRegistry(t))
	ctx := context.Background()

	_, err := s.Status(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Results(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.RawFindings(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Wait(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.CancelPipeline("no-such-id"), ErrNotFound)
}

func TestService_CancelPipeline(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	ruleAgent := &fakeAnalyzer{agent: analysis.AgentRule, fn: func(ctx context.Context, _ analysis.AgentInput) ([]analysis.RawFinding, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, nil
		}
	}}
	s := newTestService(t, newTestRegistry(t, ruleAgent))

	id, err := s.StartPipeline(context.Background(), root)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.CancelPipeline(id))

	rec, err := s.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, analysis.ExecFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestService_ConcurrentExecutionsIsolated(t *testing.T) {
	rootA := writeProject(t, map[string]string{
		"alpha.go": "package alpha\n",
	})
	rootB := writeProject(t, map[string]string{
		"beta.go":  "package beta\n",
		"gamma.go": "package gamma\n",
	})
	s := newTestService(t, newTestRegistry(t))

	idA, err := s.StartPipeline(context.Background(), rootA)
	require.NoError(t, err)
	idB, err := s.StartPipeline(context.Background(), rootB)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	recA, err := s.Wait(waitCtx(t), idA)
	require.NoError(t, err)
	recB, err := s.Wait(waitCtx(t), idB)
	require.NoError(t, err)
	assert.Equal(t, 1, recA.FileCount)
	assert.Equal(t, 2, recB.FileCount)

	resultsA, err := s.Results(context.Background(), idA)
	require.NoError(t, err)
	resultsB, err := s.Results(context.Background(), idB)
	require.NoError(t, err)
	assert.Len(t, resultsA, 3)
	assert.Len(t, resultsB, 6)
	for _, r := range resultsA {
		assert.Equal(t, idA, r.ExecutionID)
		assert.Equal(t, "alpha.go", r.FilePath)
	}
	for _, r := range resultsB {
		assert.Equal(t, idB, r.ExecutionID)
		assert.NotEqual(t, "alpha.go", r.FilePath)
	}
}

func TestService_Close(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	ruleAgent := &fakeAnalyzer{agent: analysis.AgentRule, fn: func(ctx context.Context, _ analysis.AgentInput) ([]analysis.RawFinding, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, nil
		}
	}}
	s := newTestService(t, newTestRegistry(t, ruleAgent))

	id, err := s.StartPipeline(context.Background(), root)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Close())

	// Close cancels in-flight runs and waits for their bookkeeping.
	rec, err := s.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, analysis.ExecFailed, rec.Status)

	_, err = s.StartPipeline(context.Background(), root)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, s.Close(), "close is idempotent")
}

func TestService_Events_StreamsProgress(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	s := newTestService(t, newTestRegistry(t))

	var events []Event
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range s.Events() {
			events = append(events, e)
		}
	}()

	id, err := s.StartPipeline(context.Background(), root)
	require.NoError(t, err)
	_, err = s.Wait(waitCtx(t), id)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	<-drained

	require.NotEmpty(t, events)
	assert.Equal(t, analysis.StageSourceCollect, events[0].Stage)
	assert.Equal(t, analysis.StatusPending, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, analysis.StageAIEnhance, last.Stage)
	assert.Equal(t, analysis.StatusSkipped, last.Status)
	for _, e := range events {
		assert.Equal(t, id, e.ExecutionID)
	}
}
