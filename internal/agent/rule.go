package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/rules"
)

// RuleAnalyzer evaluates every enabled engine rule against every file.
type RuleAnalyzer struct {
	engine *rules.Engine
}

var _ analysis.Analyzer = (*RuleAnalyzer)(nil)

// NewRuleAnalyzer creates a RuleAnalyzer backed by engine.
func NewRuleAnalyzer(engine *rules.Engine) *RuleAnalyzer {
	return &RuleAnalyzer{engine: engine}
}

// Type implements analysis.Analyzer.
func (a *RuleAnalyzer) Type() analysis.AgentType { return analysis.AgentRule }

// MaxDurationHint implements analysis.Analyzer.
func (a *RuleAnalyzer) MaxDurationHint() time.Duration { return 20 * time.Second }

// Execute implements analysis.Analyzer.
func (a *RuleAnalyzer) Execute(ctx context.Context, in analysis.AgentInput) ([]analysis.RawFinding, error) {
	if a.engine == nil {
		return nil, fmt.Errorf("rule analyzer: no engine configured")
	}

	var findings []analysis.RawFinding
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		findings = append(findings, a.engine.Evaluate(f)...)
	}
	return findings, nil
}
