package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/sink"
)

// stageClass maps stage statuses onto Mermaid class names.
var stageClass = map[analysis.StageStatus]string{
	analysis.StatusPending:   "pending",
	analysis.StatusRunning:   "running",
	analysis.StatusCompleted: "completed",
	analysis.StatusFailed:    "failed",
	analysis.StatusSkipped:   "skipped",
}

// stageEdges is the pipeline topology: AST_PARSE fans out into the static
// and rule stages, which join at CATEGORIZE.
var stageEdges = [][2]analysis.Stage{
	{analysis.StageSourceCollect, analysis.StageLanguageDetect},
	{analysis.StageLanguageDetect, analysis.StageASTParse},
	{analysis.StageASTParse, analysis.StageStaticAnalyze},
	{analysis.StageASTParse, analysis.StageRuleParse},
	{analysis.StageStaticAnalyze, analysis.StageCategorize},
	{analysis.StageRuleParse, analysis.StageCategorize},
	{analysis.StageCategorize, analysis.StageNormalize},
	{analysis.StageNormalize, analysis.StageAIEnhance},
}

// GenerateMermaid produces a Mermaid graph TD diagram of one execution's
// stage flow, with nodes colored by stage status.
func GenerateMermaid(ctx context.Context, store sink.Reader, executionID string) (string, error) {
	rec, err := store.Execution(ctx, executionID)
	if err != nil {
		return "", fmt.Errorf("load execution: %w", err)
	}
	if rec == nil {
		return "", fmt.Errorf("execution %s not found", executionID)
	}
	rows, err := store.StageExecutions(ctx, executionID)
	if err != nil {
		return "", fmt.Errorf("load stages: %w", err)
	}

	byStage := make(map[analysis.Stage]analysis.StageExecution, len(rows))
	for _, se := range rows {
		byStage[se.Stage] = se
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%%%% execution %s (%s)\n", executionID, rec.Status))
	sb.WriteString("graph TD\n")

	for _, stage := range analysis.Stages() {
		se := byStage[stage]
		status := se.Status
		if status == "" {
			status = analysis.StatusPending
		}
		label := stage.String()
		if msg := nodeMessage(se.Message); msg != "" {
			label = label + "<br/>" + msg
		}
		sb.WriteString(fmt.Sprintf("  S%d[\"%s\"]:::%s\n", int(stage), label, stageClass[status]))
	}

	for _, e := range stageEdges {
		sb.WriteString(fmt.Sprintf("  S%d --> S%d\n", int(e[0]), int(e[1])))
	}

	sb.WriteString("  classDef pending fill:#eceff1,stroke:#90a4ae\n")
	sb.WriteString("  classDef running fill:#fff8e1,stroke:#ffb300\n")
	sb.WriteString("  classDef completed fill:#e8f5e9,stroke:#43a047\n")
	sb.WriteString("  classDef failed fill:#ffebee,stroke:#e53935\n")
	sb.WriteString("  classDef skipped fill:#f3e5f5,stroke:#8e24aa\n")

	return sb.String(), nil
}

// nodeMessage sanitizes a stage message for use inside a Mermaid label.
func nodeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, `"`, "'")
	msg = strings.ReplaceAll(msg, "\n", " ")
	if len(msg) > 60 {
		msg = msg[:57] + "..."
	}
	return msg
}
