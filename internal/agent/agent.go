// Package agent implements the analyzer agents behind the pipeline: the
// structural (tree-sitter) analyzer, the rule analyzer, the security
// pattern scanner, the dependency manifest analyzer, and the AI reviewer.
// All of them satisfy analysis.Analyzer and run as scheduler tasks.
package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hkjang/codelens/internal/ai"
	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/rules"
	"github.com/hkjang/codelens/internal/scheduler"
)

// Registry maps agent types to analyzers. It is the scheduler's analyzer
// source: tasks name an agent type and the scheduler resolves it here.
type Registry struct {
	mu     sync.RWMutex
	agents map[analysis.AgentType]analysis.Analyzer
}

var _ scheduler.AnalyzerSource = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[analysis.AgentType]analysis.Analyzer)}
}

// NewDefaultRegistry creates a Registry pre-registered with all analyzers.
// completer may be nil; the AI analyzer then reports itself unavailable and
// the enhancement stage degrades to skipped.
func NewDefaultRegistry(engine *rules.Engine, completer ai.Completer, logger *slog.Logger, aiOpts ...AIOption) *Registry {
	r := NewRegistry()
	for _, a := range []analysis.Analyzer{
		NewStructuralAnalyzer(logger),
		NewRuleAnalyzer(engine),
		NewSecurityAnalyzer(),
		NewDependencyAnalyzer(logger),
		NewAIAnalyzer(completer, logger, aiOpts...),
	} {
		if err := r.Register(a); err != nil {
			panic(err) // built-in analyzers always carry valid types
		}
	}
	return r
}

// Register adds an analyzer, replacing any previously registered analyzer
// of the same type.
func (r *Registry) Register(a analysis.Analyzer) error {
	if a == nil {
		return fmt.Errorf("register: nil analyzer")
	}
	t := a.Type()
	if !t.Valid() {
		return fmt.Errorf("register: unknown agent type %q", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[t] = a
	return nil
}

// Lookup returns the analyzer registered for t.
func (r *Registry) Lookup(t analysis.AgentType) (analysis.Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// Types returns the registered agent types in stable order.
func (r *Registry) Types() []analysis.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]analysis.AgentType, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
