package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/sink"
)

func seedCompleted(t *testing.T, store sink.Store) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	done := now.Add(2 * time.Second)

	require.NoError(t, store.SaveExecution(ctx, analysis.ExecutionRecord{
		ID:           "exec-1",
		Root:         "/tmp/project",
		Status:       analysis.ExecCompleted,
		FileCount:    3,
		FindingCount: 3,
		StartedAt:    now,
		CompletedAt:  &done,
	}))
	for _, stage := range analysis.Stages() {
		se := analysis.StageExecution{
			ExecutionID: "exec-1",
			Stage:       stage,
			Status:      analysis.StatusCompleted,
			Progress:    100,
		}
		if stage == analysis.StageAIEnhance {
			se.Status = analysis.StatusSkipped
			se.Progress = 0
			se.Message = "ai enhancement disabled"
		}
		require.NoError(t, store.SaveStageExecution(ctx, se))
	}
	results := []analysis.NormalizedResult{
		{
			ID: "RES-1", ExecutionID: "exec-1", FilePath: "app.ts", LineStart: 3, LineEnd: 3,
			MainCategory: analysis.CategorySecurity, SubCategory: "SECRET", RuleID: "SEC001",
			Severity: analysis.SeverityHigh, Message: "hardcoded key", Confidence: 1,
			Deterministic: true, Sources: []analysis.AgentType{analysis.AgentSecurity}, CreatedAt: now,
		},
		{
			ID: "RES-2", ExecutionID: "exec-1", FilePath: "app.ts", LineStart: 10, LineEnd: 14,
			MainCategory: analysis.CategoryQuality, SubCategory: "COMPLEXITY", RuleID: "STR001",
			Severity: analysis.SeverityLow, Message: "long function", Confidence: 1,
			Deterministic: true, Sources: []analysis.AgentType{analysis.AgentAST}, CreatedAt: now,
		},
		{
			ID: "RES-3", ExecutionID: "exec-1", FilePath: "util.py", LineStart: 1, LineEnd: 1,
			MainCategory: analysis.CategoryQuality, SubCategory: "CODE_SMELL", RuleID: "CLS002",
			Severity: analysis.SeverityLow, Message: "debug print", Confidence: 1,
			Deterministic: true, Sources: []analysis.AgentType{analysis.AgentRule}, CreatedAt: now,
		},
	}
	require.NoError(t, store.SaveResults(ctx, "exec-1", results))
	return "exec-1"
}

func TestBuildExport(t *testing.T) {
	store := sink.NewMemorySink()
	id := seedCompleted(t, store)

	exp, err := BuildExport(context.Background(), store, id)
	require.NoError(t, err)

	assert.Equal(t, id, exp.Execution.ID)
	assert.Equal(t, analysis.ExecCompleted, exp.Execution.Status)
	assert.Len(t, exp.Stages, analysis.StageCount)
	require.Len(t, exp.Results, 3)
	assert.Equal(t, "RES-1", exp.Results[0].ID, "stored order kept")

	assert.Equal(t, 3, exp.Summary.Total)
	assert.Equal(t, map[string]int{"HIGH": 1, "LOW": 2}, exp.Summary.BySeverity)
	assert.Equal(t, map[string]int{"SECURITY": 1, "QUALITY": 2}, exp.Summary.ByCategory)

	exportedAt, err := time.Parse(time.RFC3339, exp.ExportedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), exportedAt, time.Minute)
}

func TestBuildExport_NoResults(t *testing.T) {
	store := sink.NewMemorySink()
	require.NoError(t, store.SaveExecution(context.Background(), analysis.ExecutionRecord{
		ID: "exec-empty", Status: analysis.ExecRunning, StartedAt: time.Now(),
	}))

	exp, err := BuildExport(context.Background(), store, "exec-empty")
	require.NoError(t, err)
	assert.Equal(t, 0, exp.Summary.Total)
	assert.Nil(t, exp.Summary.BySeverity)
	assert.Nil(t, exp.Summary.ByCategory)
	assert.Empty(t, exp.Results)
}

func TestBuildExport_UnknownExecution(t *testing.T) {
	store := sink.NewMemorySink()

	_, err := BuildExport(context.Background(), store, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGenerateMermaid(t *testing.T) {
	store := sink.NewMemorySink()
	ctx := context.Background()
	require.NoError(t, store.SaveExecution(ctx, analysis.ExecutionRecord{
		ID: "exec-2", Status: analysis.ExecFailed, StartedAt: time.Now(),
	}))
	saveStage := func(stage analysis.Stage, status analysis.StageStatus, message string) {
		require.NoError(t, store.SaveStageExecution(ctx, analysis.StageExecution{
			ExecutionID: "exec-2", Stage: stage, Status: status, Message: message,
		}))
	}
	saveStage(analysis.StageSourceCollect, analysis.StatusCompleted, "3 files")
	saveStage(analysis.StageLanguageDetect, analysis.StatusCompleted, "")
	saveStage(analysis.StageASTParse, analysis.StatusCompleted, "3 parsed, 0 syntax errors")
	saveStage(analysis.StageStaticAnalyze, analysis.StatusFailed, `security agent "regex" exploded`)
	saveStage(analysis.StageRuleParse, analysis.StatusCompleted, "2 findings")
	// Categorize onward never ran; missing rows render as pending.

	out, err := GenerateMermaid(ctx, store, "exec-2")
	require.NoError(t, err)

	assert.Contains(t, out, "%% execution exec-2 (failed)")
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `S0["SOURCE_COLLECT<br/>3 files"]:::completed`)
	assert.Contains(t, out, `:::failed`)
	assert.Contains(t, out, `S5["CATEGORIZE"]:::pending`)
	assert.Contains(t, out, "S2 --> S3")
	assert.Contains(t, out, "S2 --> S4")
	assert.Contains(t, out, "S4 --> S5")
	assert.Contains(t, out, "classDef failed")

	// Quotes inside messages would break the label syntax.
	assert.NotContains(t, out, `"regex"`)
	assert.Contains(t, out, "'regex'")
}

func TestGenerateMermaid_UnknownExecution(t *testing.T) {
	store := sink.NewMemorySink()

	_, err := GenerateMermaid(context.Background(), store, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNodeMessage_TruncatesLongMessages(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}
	got := nodeMessage(long)
	assert.Len(t, got, 60)
	assert.Contains(t, got, "...")
}
