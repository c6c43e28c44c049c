package mcptools

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/pipeline"
	"github.com/hkjang/codelens/internal/rules"
)

// AnalysisService handles MCP tool calls over the pipeline service and the
// rule engine.
type AnalysisService struct {
	pipeline *pipeline.Service
	engine   *rules.Engine
}

// NewAnalysisService creates an AnalysisService with the given pipeline
// service and rule engine.
func NewAnalysisService(svc *pipeline.Service, engine *rules.Engine) *AnalysisService {
	return &AnalysisService{pipeline: svc, engine: engine}
}

// StartAnalysis spawns a pipeline execution over a project directory and
// returns its ID without waiting for completion.
func (s *AnalysisService) StartAnalysis(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartAnalysisInput,
) (*mcp.CallToolResult, StartAnalysisOutput, error) {
	if input.Root == "" {
		return nil, StartAnalysisOutput{}, fmt.Errorf("root is required")
	}
	info, err := os.Stat(input.Root)
	if err != nil {
		return nil, StartAnalysisOutput{}, fmt.Errorf("cannot access root: %w", err)
	}
	if !info.IsDir() {
		return nil, StartAnalysisOutput{}, fmt.Errorf("root is not a directory: %s", input.Root)
	}

	var opts []pipeline.StartOption
	if len(input.Include) > 0 || len(input.Exclude) > 0 {
		opts = append(opts, pipeline.WithFilters(input.Include, input.Exclude))
	}

	id, err := s.pipeline.StartPipeline(ctx, input.Root, opts...)
	if err != nil {
		return nil, StartAnalysisOutput{}, fmt.Errorf("start analysis: %w", err)
	}

	return nil, StartAnalysisOutput{
		ExecutionID: id,
		Status:      string(analysis.ExecRunning),
	}, nil
}

// GetAnalysisStatus reports the execution record and per-stage progress.
func (s *AnalysisService) GetAnalysisStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetAnalysisStatusInput,
) (*mcp.CallToolResult, GetAnalysisStatusOutput, error) {
	if input.ExecutionID == "" {
		return nil, GetAnalysisStatusOutput{}, fmt.Errorf("executionId is required")
	}

	snap, err := s.pipeline.Status(ctx, input.ExecutionID)
	if err != nil {
		return nil, GetAnalysisStatusOutput{}, err
	}

	return nil, GetAnalysisStatusOutput{
		Execution: snap.Execution,
		Stages:    snap.Stages,
	}, nil
}

// ListFindings returns the normalized results of an execution, optionally
// filtered by severity and main category.
func (s *AnalysisService) ListFindings(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListFindingsInput,
) (*mcp.CallToolResult, ListFindingsOutput, error) {
	if input.ExecutionID == "" {
		return nil, ListFindingsOutput{}, fmt.Errorf("executionId is required")
	}

	var severity analysis.Severity
	if input.Severity != "" {
		var err error
		if severity, err = analysis.ParseSeverity(input.Severity); err != nil {
			return nil, ListFindingsOutput{}, err
		}
	}
	var category analysis.MainCategory
	if input.Category != "" {
		var err error
		if category, err = analysis.ParseMainCategory(input.Category); err != nil {
			return nil, ListFindingsOutput{}, err
		}
	}

	results, err := s.pipeline.Results(ctx, input.ExecutionID)
	if err != nil {
		return nil, ListFindingsOutput{}, err
	}

	if input.Severity != "" || input.Category != "" {
		filtered := results[:0]
		for _, r := range results {
			if input.Severity != "" && r.Severity != severity {
				continue
			}
			if input.Category != "" && r.MainCategory != category {
				continue
			}
			filtered = append(filtered, r)
		}
		results = filtered
	}

	total := len(results)
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(results) > limit {
		results = results[:limit]
	}

	return nil, ListFindingsOutput{Results: results, Total: total}, nil
}

// ListRules returns every rule definition known to the engine.
func (s *AnalysisService) ListRules(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListRulesInput,
) (*mcp.CallToolResult, ListRulesOutput, error) {
	defs := s.engine.Rules(rules.Filter{})
	return nil, ListRulesOutput{Rules: defs, Total: len(defs)}, nil
}
