package analysis

import (
	"context"
	"fmt"
	"time"
)

// --- Enums ---

// AgentType identifies an analyzer agent variant.
type AgentType string

const (
	AgentAST        AgentType = "ast"
	AgentRule       AgentType = "rule"
	AgentSecurity   AgentType = "security"
	AgentDependency AgentType = "dependency"
	AgentAI         AgentType = "ai"
)

// KnownAgents lists every agent variant in dispatch order.
var KnownAgents = []AgentType{AgentAST, AgentRule, AgentSecurity, AgentDependency, AgentAI}

// Valid reports whether t names a known agent variant.
func (t AgentType) Valid() bool {
	switch t {
	case AgentAST, AgentRule, AgentSecurity, AgentDependency, AgentAI:
		return true
	}
	return false
}

// Severity grades a finding. The set is closed; unknown values are rejected
// at parse boundaries.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Severities lists all severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank returns the total-order position of s. Higher is more severe.
// Unknown severities rank below INFO.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// ParseSeverity converts a wire value into a Severity, rejecting anything
// outside the closed set.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if _, ok := severityRank[s]; !ok {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// MainCategory is the top level of the result taxonomy. The set is closed.
type MainCategory string

const (
	CategorySecurity   MainCategory = "SECURITY"
	CategoryQuality    MainCategory = "QUALITY"
	CategoryStructure  MainCategory = "STRUCTURE"
	CategoryStandards  MainCategory = "STANDARDS"
	CategoryOperations MainCategory = "OPERATIONS"
	CategoryTest       MainCategory = "TEST"
)

// MainCategories lists the closed taxonomy roots.
var MainCategories = []MainCategory{
	CategorySecurity, CategoryQuality, CategoryStructure,
	CategoryStandards, CategoryOperations, CategoryTest,
}

// ParseMainCategory converts a wire value into a MainCategory, rejecting
// anything outside the closed set.
func ParseMainCategory(v string) (MainCategory, error) {
	c := MainCategory(v)
	for _, known := range MainCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", v)
}

// Language identifies a programming language for parsing.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangUnknown    Language = "unknown"
)

// ParsedLanguages are languages with grammar support in the structural
// analyzer (symbol extraction, complexity metrics).
var ParsedLanguages = []Language{LangGo, LangTypeScript, LangJavaScript, LangPython, LangRust}

// --- Models ---

// SourceFile is one collected file with its detected language.
type SourceFile struct {
	Path     string   `json:"path"`
	Language Language `json:"language"`
	Content  []byte   `json:"-"`
	Lines    int      `json:"lines"`
}

// AgentInput is the uniform input handed to every analyzer agent.
// Results carries previously normalized results; only the AI agent
// consumes it, the deterministic agents ignore it.
type AgentInput struct {
	ExecutionID string
	Root        string
	Files       []SourceFile
	Results     []NormalizedResult
}

// Analyzer is the uniform contract every analysis agent satisfies.
// Implementations: structural (tree-sitter), rule, security, dependency, AI.
type Analyzer interface {
	// Type identifies the agent variant.
	Type() AgentType

	// Execute analyzes the input and returns raw findings. Implementations
	// must honor ctx cancellation. On error, partial findings are discarded.
	Execute(ctx context.Context, input AgentInput) ([]RawFinding, error)

	// MaxDurationHint sizes the scheduler's per-task timeout for this agent.
	// Zero means use the scheduler's default.
	MaxDurationHint() time.Duration
}

// ClampConfidence bounds a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
