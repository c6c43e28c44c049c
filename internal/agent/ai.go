package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hkjang/codelens/internal/ai"
	"github.com/hkjang/codelens/internal/analysis"
)

const (
	aiPromptFindings = 10
	aiExcerptFiles   = 5
	aiExcerptRadius  = 4
	aiMaxTokens      = 2048
)

const reviewSystem = "You are a code review assistant. You receive findings from " +
	"deterministic analyzers plus source excerpts. Confirm, refine, or add findings. " +
	"Respond with a single fenced JSON array and nothing else."

// aiFinding is one item of the model's JSON response.
type aiFinding struct {
	FilePath   string  `json:"filePath"`
	LineStart  int     `json:"lineStart"`
	LineEnd    int     `json:"lineEnd"`
	RuleID     string  `json:"ruleId"`
	Severity   string  `json:"severity"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// AIAnalyzer sends the highest-severity findings and source excerpts to a
// completion backend and converts the response into raw findings. Its
// findings never override deterministic ones downstream; they only add
// suggestions or surface new locations.
type AIAnalyzer struct {
	completer ai.Completer
	maxTokens int
	log       *slog.Logger
}

var _ analysis.Analyzer = (*AIAnalyzer)(nil)

// AIOption adjusts an AIAnalyzer.
type AIOption func(*AIAnalyzer)

// WithMaxTokens overrides the completion budget for review requests.
// Non-positive values keep the default.
func WithMaxTokens(n int) AIOption {
	return func(a *AIAnalyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// NewAIAnalyzer creates an AIAnalyzer. completer may be nil; Execute then
// fails with ai.ErrUnavailable and the pipeline skips enhancement.
func NewAIAnalyzer(completer ai.Completer, logger *slog.Logger, opts ...AIOption) *AIAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AIAnalyzer{completer: completer, maxTokens: aiMaxTokens, log: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type implements analysis.Analyzer.
func (a *AIAnalyzer) Type() analysis.AgentType { return analysis.AgentAI }

// MaxDurationHint implements analysis.Analyzer.
func (a *AIAnalyzer) MaxDurationHint() time.Duration { return 120 * time.Second }

// Execute implements analysis.Analyzer.
func (a *AIAnalyzer) Execute(ctx context.Context, in analysis.AgentInput) ([]analysis.RawFinding, error) {
	if a.completer == nil {
		return nil, fmt.Errorf("ai analyzer: %w", ai.ErrUnavailable)
	}

	resp, err := a.completer.Complete(ctx, ai.CompletionRequest{
		System:    reviewSystem,
		Prompt:    buildReviewPrompt(in, aiPromptFindings),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("ai analyzer: %w", err)
	}

	payload := extractJSON(resp.Text)
	if payload == nil {
		return nil, fmt.Errorf("ai analyzer: no JSON payload in model response")
	}
	var items []aiFinding
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("ai analyzer: decode model response: %w", err)
	}

	a.log.Debug("ai review complete",
		"model", resp.Model,
		"items", len(items),
		"inputTokens", resp.Usage.InputTokens,
		"outputTokens", resp.Usage.OutputTokens)

	findings := make([]analysis.RawFinding, 0, len(items))
	for _, item := range items {
		if f, ok := item.toRawFinding(); ok {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (item aiFinding) toRawFinding() (analysis.RawFinding, bool) {
	if item.FilePath == "" || item.Message == "" {
		return analysis.RawFinding{}, false
	}

	sev, err := analysis.ParseSeverity(item.Severity)
	if err != nil {
		sev = analysis.SeverityLow
	}
	category := item.Category
	if category == "" {
		category = "ai"
	}
	lineStart := item.LineStart
	if lineStart < 1 {
		lineStart = 1
	}
	lineEnd := item.LineEnd
	if lineEnd < lineStart {
		lineEnd = lineStart
	}

	return analysis.RawFinding{
		Agent:      analysis.AgentAI,
		RuleID:     item.RuleID,
		Category:   category,
		Severity:   sev,
		FilePath:   item.FilePath,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		Message:    item.Message,
		Suggestion: item.Suggestion,
		Confidence: analysis.ClampConfidence(item.Confidence),
	}, true
}

// buildReviewPrompt assembles the findings list, source excerpts around the
// top findings, and the response contract.
func buildReviewPrompt(in analysis.AgentInput, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project root: %s\n", in.Root)
	fmt.Fprintf(&b, "Files analyzed: %d\n\n", len(in.Files))

	results := in.Results
	if len(results) > limit {
		results = results[:limit]
	}
	b.WriteString("Current findings:\n")
	if len(results) == 0 {
		b.WriteString("(none)\n")
	}
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s:%d %s %s\n", r.Severity, r.FilePath, r.LineStart, r.RuleID, r.Message)
	}

	files := make(map[string]analysis.SourceFile, len(in.Files))
	for _, f := range in.Files {
		files[f.Path] = f
	}
	b.WriteString("\nSource excerpts:\n")
	seen := make(map[string]bool)
	for _, r := range results {
		if len(seen) >= aiExcerptFiles {
			break
		}
		if seen[r.FilePath] {
			continue
		}
		f, ok := files[r.FilePath]
		if !ok {
			continue
		}
		seen[r.FilePath] = true
		writeExcerpt(&b, f, r.LineStart)
	}

	b.WriteString("\nRespond with a fenced JSON array. Each item: " +
		`{"filePath": string, "lineStart": int, "lineEnd": int, ` +
		`"ruleId": string (echo the rule you refine, empty for new findings), ` +
		`"severity": "CRITICAL"|"HIGH"|"MEDIUM"|"LOW"|"INFO", "category": string, ` +
		`"message": string, "suggestion": string, "confidence": number 0..1}` + "\n")
	return b.String()
}

func writeExcerpt(b *strings.Builder, f analysis.SourceFile, line int) {
	lines := strings.Split(string(f.Content), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	start := line - 1 - aiExcerptRadius
	if start < 0 {
		start = 0
	}
	end := line - 1 + aiExcerptRadius
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if end < start {
		return
	}
	fmt.Fprintf(b, "--- %s (lines %d-%d) ---\n", f.Path, start+1, end+1)
	for i := start; i <= end; i++ {
		fmt.Fprintf(b, "%4d| %s\n", i+1, lines[i])
	}
}

// extractJSON pulls the JSON payload out of a model response, preferring a
// fenced block and falling back to the outermost array.
func extractJSON(text string) []byte {
	for _, fence := range []string{"```json", "```"} {
		if i := strings.Index(text, fence); i >= 0 {
			rest := text[i+len(fence):]
			if j := strings.Index(rest, "```"); j >= 0 {
				return []byte(strings.TrimSpace(rest[:j]))
			}
		}
	}
	if i := strings.Index(text, "["); i >= 0 {
		if j := strings.LastIndex(text, "]"); j > i {
			return []byte(text[i : j+1])
		}
	}
	return nil
}
