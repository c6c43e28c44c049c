package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/analysis"
)

func TestReporter_EmitAndReceive(t *testing.T) {
	r := NewReporter()
	defer r.Close()

	first := Event{ExecutionID: "exec-1", Stage: analysis.StageSourceCollect, Status: analysis.StatusRunning, Progress: 50}
	second := Event{ExecutionID: "exec-1", Stage: analysis.StageSourceCollect, Status: analysis.StatusCompleted, Progress: 100}
	r.Emit(first)
	r.Emit(second)

	assert.Equal(t, first, <-r.Events())
	assert.Equal(t, second, <-r.Events())
}

func TestReporter_DropsWhenFull(t *testing.T) {
	r := NewReporter()

	for i := 0; i < 100; i++ {
		r.Emit(Event{Progress: i}) // never blocks
	}
	r.Close()

	var received int
	for range r.Events() {
		received++
	}
	assert.Equal(t, 64, received, "buffer capacity bounds retained events")
}

func TestReporter_CloseEndsRange(t *testing.T) {
	r := NewReporter()
	r.Emit(Event{Stage: analysis.StageNormalize, Status: analysis.StatusCompleted})
	r.Close()

	var events []Event
	for e := range r.Events() {
		events = append(events, e)
	}
	require.Len(t, events, 1)
	assert.Equal(t, analysis.StageNormalize, events[0].Stage)
}

func TestFormatEvent(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "pending",
			event: Event{Stage: analysis.StageSourceCollect, Status: analysis.StatusPending},
			want:  "  ○ SOURCE_COLLECT (pending)",
		},
		{
			name:  "running with progress",
			event: Event{Stage: analysis.StageStaticAnalyze, Status: analysis.StatusRunning, Progress: 66},
			want:  "  ◐ STATIC_ANALYZE... 66%",
		},
		{
			name:  "completed bare",
			event: Event{Stage: analysis.StageLanguageDetect, Status: analysis.StatusCompleted},
			want:  "  ✓ LANGUAGE_DETECT complete",
		},
		{
			name:  "completed with message",
			event: Event{Stage: analysis.StageNormalize, Status: analysis.StatusCompleted, Message: "12 results from 20 findings"},
			want:  "  ✓ NORMALIZE complete (12 results from 20 findings)",
		},
		{
			name:  "failed",
			event: Event{Stage: analysis.StageRuleParse, Status: analysis.StatusFailed, Message: "rule agent timed out"},
			want:  "  ✗ RULE_PARSE failed: rule agent timed out",
		},
		{
			name:  "skipped",
			event: Event{Stage: analysis.StageAIEnhance, Status: analysis.StatusSkipped, Message: "ai enhancement disabled"},
			want:  "  ⊘ AI_ENHANCE skipped: ai enhancement disabled",
		},
		{
			name:  "unknown status",
			event: Event{Stage: analysis.StageCategorize, Status: analysis.StageStatus("bogus")},
			want:  "  ? CATEGORIZE (unknown status)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatEvent(tc.event))
		})
	}
}
