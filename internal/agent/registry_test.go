package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/rules"
)

type staticAnalyzer struct {
	agent analysis.AgentType
	tag   string
}

func (s *staticAnalyzer) Type() analysis.AgentType       { return s.agent }
func (s *staticAnalyzer) MaxDurationHint() time.Duration { return time.Second }
func (s *staticAnalyzer) Execute(context.Context, analysis.AgentInput) ([]analysis.RawFinding, error) {
	return nil, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup(analysis.AgentRule)
	assert.False(t, ok)

	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentRule}))
	got, ok := r.Lookup(analysis.AgentRule)
	require.True(t, ok)
	assert.Equal(t, analysis.AgentRule, got.Type())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentRule, tag: "old"}))
	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentRule, tag: "new"}))

	got, ok := r.Lookup(analysis.AgentRule)
	require.True(t, ok)
	assert.Equal(t, "new", got.(*staticAnalyzer).tag)
	assert.Len(t, r.Types(), 1)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&staticAnalyzer{agent: analysis.AgentType("bogus")}))
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentSecurity}))
	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentAST}))
	require.NoError(t, r.Register(&staticAnalyzer{agent: analysis.AgentDependency}))

	assert.Equal(t, []analysis.AgentType{
		analysis.AgentAST,
		analysis.AgentDependency,
		analysis.AgentSecurity,
	}, r.Types())
}

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(rules.NewEngine(nil), nil, nil)

	require.Len(t, r.Types(), len(analysis.KnownAgents))
	for _, agent := range analysis.KnownAgents {
		a, ok := r.Lookup(agent)
		require.True(t, ok, "agent %s missing", agent)
		assert.Equal(t, agent, a.Type())
		assert.Greater(t, a.MaxDurationHint(), time.Duration(0))
	}
}
