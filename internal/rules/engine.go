package rules

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/hkjang/codelens/internal/analysis"
)

// compiledRule pairs a definition with its compiled pattern.
type compiledRule struct {
	def Definition
	re  *regexp.Regexp
}

// Engine is the rule registry and evaluator. Safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	rules   map[string]*compiledRule
	version uint64

	log *slog.Logger
}

// NewEngine returns an empty engine at version zero.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules: make(map[string]*compiledRule),
		log:   logger,
	}
}

// Register upserts a rule by ID. Invalid definitions and patterns that do
// not compile leave the registry untouched and return an error wrapping
// ErrInvalidPattern for pattern failures. Re-registering an identical
// definition is a no-op and does not bump the version.
func (e *Engine) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return fmt.Errorf("register rule %s: %w: %v", def.ID, ErrInvalidPattern, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.rules[def.ID]; ok && existing.def.equal(def) {
		return nil
	}
	e.rules[def.ID] = &compiledRule{def: def, re: re}
	e.version++
	e.log.Debug("rule registered", "rule_id", def.ID, "version", e.version)
	return nil
}

// Rule returns the definition registered under id.
func (e *Engine) Rule(id string) (Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return Definition{}, false
	}
	return r.def, true
}

// Rules lists definitions matching the filter in stable ID order.
func (e *Engine) Rules(filter Filter) []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Definition, 0, len(e.rules))
	for _, r := range e.rules {
		if filter.matches(r.def) {
			out = append(out, r.def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetEnabled toggles a rule. Toggling to the current state is a no-op.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("set enabled %s: %w", id, ErrNotFound)
	}
	if r.def.Enabled == enabled {
		return nil
	}
	r.def.Enabled = enabled
	e.version++
	return nil
}

// Version returns the monotone registry version. It starts at zero and
// increases by one for every effective mutation.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Len returns the number of registered rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every enabled, language-applicable rule against the file and
// returns one finding per matching line. Findings snapshot rule metadata at
// evaluation time; later registry mutations never rewrite them.
func (e *Engine) Evaluate(file analysis.SourceFile) []analysis.RawFinding {
	e.mu.RLock()
	active := make([]*compiledRule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.def.Enabled && r.def.appliesTo(file.Language) {
			active = append(active, r)
		}
	}
	e.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool { return active[i].def.ID < active[j].def.ID })

	var findings []analysis.RawFinding
	lines := bytes.Split(file.Content, []byte("\n"))
	for _, r := range active {
		for i, line := range lines {
			if !r.re.Match(line) {
				continue
			}
			msg := r.def.Message
			if msg == "" {
				msg = r.def.Name
			}
			findings = append(findings, analysis.RawFinding{
				Agent:      analysis.AgentRule,
				RuleID:     r.def.ID,
				Category:   r.def.Category,
				Severity:   r.def.Severity,
				FilePath:   file.Path,
				LineStart:  i + 1,
				LineEnd:    i + 1,
				Language:   file.Language,
				Message:    msg,
				Suggestion: r.def.Suggestion,
				Confidence: 1.0,
			})
		}
	}
	return findings
}
