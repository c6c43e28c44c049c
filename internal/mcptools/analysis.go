package mcptools

import (
	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/rules"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// StartAnalysisInput is the input for the start_analysis MCP tool.
type StartAnalysisInput struct {
	Root    string   `json:"root" jsonschema:"the absolute path to the project directory to analyze"`
	Include []string `json:"include,omitempty" jsonschema:"doublestar globs selecting files to analyze (default: all supported files)"`
	Exclude []string `json:"exclude,omitempty" jsonschema:"doublestar globs excluding files from the analysis"`
}

// StartAnalysisOutput is the result of the start_analysis MCP tool.
type StartAnalysisOutput struct {
	ExecutionID string `json:"executionId"`
	Status      string `json:"status"`
}

// GetAnalysisStatusInput is the input for the get_analysis_status MCP tool.
type GetAnalysisStatusInput struct {
	ExecutionID string `json:"executionId" jsonschema:"the execution to inspect"`
}

// GetAnalysisStatusOutput is the result of the get_analysis_status MCP tool.
type GetAnalysisStatusOutput struct {
	Execution analysis.ExecutionRecord  `json:"execution"`
	Stages    []analysis.StageExecution `json:"stages"`
}

// ListFindingsInput is the input for the list_findings MCP tool.
type ListFindingsInput struct {
	ExecutionID string `json:"executionId" jsonschema:"the execution whose findings to list"`
	Severity    string `json:"severity,omitempty" jsonschema:"filter by severity: CRITICAL, HIGH, MEDIUM, LOW, INFO"`
	Category    string `json:"category,omitempty" jsonschema:"filter by main category: SECURITY, QUALITY, STRUCTURE, STANDARDS, OPERATIONS, TEST"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 100)"`
}

// ListFindingsOutput is the result of the list_findings MCP tool. Total is
// the number of matches before the limit is applied.
type ListFindingsOutput struct {
	Results []analysis.NormalizedResult `json:"results"`
	Total   int                         `json:"total"`
}

// ListRulesInput is the input for the list_rules MCP tool.
type ListRulesInput struct{}

// ListRulesOutput is the result of the list_rules MCP tool.
type ListRulesOutput struct {
	Rules []rules.Definition `json:"rules"`
	Total int                `json:"total"`
}
