package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_RankTotalOrder(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())
	assert.Equal(t, -1, Severity("BOGUS").Rank())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"CRITICAL", SeverityCritical, false},
		{"INFO", SeverityInfo, false},
		{"critical", "", true},
		{"WARNING", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseMainCategory_RejectsUnknown(t *testing.T) {
	got, err := ParseMainCategory("SECURITY")
	require.NoError(t, err)
	assert.Equal(t, CategorySecurity, got)

	_, err = ParseMainCategory("PERFORMANCE")
	assert.Error(t, err)
}

func TestAgentType_Valid(t *testing.T) {
	for _, agent := range KnownAgents {
		assert.True(t, agent.Valid(), "agent %s", agent)
	}
	assert.False(t, AgentType("linter").Valid())
	assert.False(t, AgentType("").Valid())
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.5))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}

func TestResultID_Reproducible(t *testing.T) {
	a := ResultID("src/app.ts", 10, "CLQ003")
	b := ResultID("src/app.ts", 10, "CLQ003")
	assert.Equal(t, a, b)
	assert.Len(t, a, len("RES-")+12)

	// Any component of the location key changes the ID.
	assert.NotEqual(t, a, ResultID("src/app.ts", 11, "CLQ003"))
	assert.NotEqual(t, a, ResultID("src/app.ts", 10, ""))
	assert.NotEqual(t, a, ResultID("src/main.ts", 10, "CLQ003"))
}

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "SOURCE_COLLECT", StageSourceCollect.String())
	assert.Equal(t, "AI_ENHANCE", StageAIEnhance.String())
	assert.Len(t, Stages(), StageCount)

	for _, stage := range Stages() {
		parsed, err := ParseStage(stage.String())
		require.NoError(t, err)
		assert.Equal(t, stage, parsed)
	}

	_, err := ParseStage("LINT")
	assert.Error(t, err)
}

func TestStage_JSONRoundTrip(t *testing.T) {
	exec := StageExecution{
		ExecutionID: "exec-1",
		Stage:       StageStaticAnalyze,
		Status:      StatusRunning,
		Progress:    50,
	}
	data, err := json.Marshal(exec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"STATIC_ANALYZE"`)

	var decoded StageExecution
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StageStaticAnalyze, decoded.Stage)
	assert.Equal(t, StatusRunning, decoded.Status)
}

func TestStageStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, ExecRunning.Terminal())
	assert.True(t, ExecCompleted.Terminal())
	assert.True(t, ExecFailed.Terminal())
}
