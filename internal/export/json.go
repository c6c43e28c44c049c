// Package export renders persisted executions as JSON documents and Mermaid
// diagrams.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/sink"
)

// AnalysisExport is the top-level JSON export structure.
type AnalysisExport struct {
	Execution  analysis.ExecutionRecord    `json:"execution"`
	ExportedAt string                      `json:"exportedAt"`
	Stages     []analysis.StageExecution   `json:"stages"`
	Results    []analysis.NormalizedResult `json:"results,omitempty"`
	Summary    Summary                     `json:"summary"`
}

// Summary aggregates result counts for quick scanning.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity,omitempty"`
	ByCategory map[string]int `json:"byCategory,omitempty"`
}

// BuildExport assembles an AnalysisExport for one persisted execution.
// Results keep their stored order.
func BuildExport(ctx context.Context, store sink.Reader, executionID string) (*AnalysisExport, error) {
	rec, err := store.Execution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("execution %s not found", executionID)
	}

	stages, err := store.StageExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	results, err := store.Results(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	return &AnalysisExport{
		Execution:  *rec,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:     stages,
		Results:    results,
		Summary:    summarize(results),
	}, nil
}

func summarize(results []analysis.NormalizedResult) Summary {
	s := Summary{Total: len(results)}
	if len(results) == 0 {
		return s
	}
	s.BySeverity = make(map[string]int)
	s.ByCategory = make(map[string]int)
	for _, r := range results {
		s.BySeverity[string(r.Severity)]++
		s.ByCategory[string(r.MainCategory)]++
	}
	return s
}
