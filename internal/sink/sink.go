// Package sink persists pipeline output: execution records, per-stage
// bookkeeping, and normalized results. The pipeline only writes; status,
// export, and MCP surfaces read through the Reader side.
package sink

import (
	"context"
	"io"

	"github.com/hkjang/codelens/internal/analysis"
)

// Sink is the write side used by the pipeline. Saves are idempotent
// upserts: executions key on ID, stage executions on (executionID, stage),
// results on (executionID, resultID).
type Sink interface {
	SaveExecution(ctx context.Context, rec analysis.ExecutionRecord) error
	SaveStageExecution(ctx context.Context, se analysis.StageExecution) error
	SaveResults(ctx context.Context, executionID string, results []analysis.NormalizedResult) error
	io.Closer
}

// Reader is the query side. Lookups for unknown execution IDs return
// (nil, nil) rather than an error; callers map that to their own not-found
// handling.
type Reader interface {
	Execution(ctx context.Context, executionID string) (*analysis.ExecutionRecord, error)
	Executions(ctx context.Context) ([]analysis.ExecutionRecord, error)
	StageExecutions(ctx context.Context, executionID string) ([]analysis.StageExecution, error)
	Results(ctx context.Context, executionID string) ([]analysis.NormalizedResult, error)
}

// Store combines both sides. The concrete sinks implement all of it.
type Store interface {
	Sink
	Reader
}
