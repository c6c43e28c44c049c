package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RawFinding is a single observation produced by an analyzer agent before
// categorization and normalization. Category is the agent's own free-form
// label; the normalizer maps it onto the closed taxonomy.
type RawFinding struct {
	Agent      AgentType      `json:"agent"`
	RuleID     string         `json:"ruleId,omitempty"`
	Category   string         `json:"category"`
	Severity   Severity       `json:"severity"`
	FilePath   string         `json:"filePath"`
	LineStart  int            `json:"lineStart"`
	LineEnd    int            `json:"lineEnd"`
	Language   Language       `json:"language,omitempty"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NormalizedResult is the canonical finding record: categorized, deduplicated
// and ordered. Immutable once built, except that AI enhancement may append to
// Suggestion. Deterministic is false only when every contributing source is
// the AI agent.
type NormalizedResult struct {
	ID            string       `json:"id"`
	ExecutionID   string       `json:"executionId"`
	FilePath      string       `json:"filePath"`
	LineStart     int          `json:"lineStart"`
	LineEnd       int          `json:"lineEnd"`
	Language      Language     `json:"language,omitempty"`
	MainCategory  MainCategory `json:"mainCategory"`
	SubCategory   string       `json:"subCategory"`
	RuleID        string       `json:"ruleId,omitempty"`
	Severity      Severity     `json:"severity"`
	Message       string       `json:"message"`
	Suggestion    string       `json:"suggestion,omitempty"`
	Confidence    float64      `json:"confidence"`
	Deterministic bool         `json:"deterministic"`
	Sources       []AgentType  `json:"sources"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// ResultID derives a content-addressed identifier from a finding's location
// key. The key excludes the execution ID so identity is reproducible across
// runs; within one execution the key is unique after deduplication.
func ResultID(filePath string, lineStart int, ruleID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", filePath, lineStart, ruleID)))
	return "RES-" + hex.EncodeToString(sum[:])[:12]
}
