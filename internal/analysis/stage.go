package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage identifies one of the eight ordered pipeline stages.
type Stage int

const (
	StageSourceCollect Stage = iota
	StageLanguageDetect
	StageASTParse
	StageStaticAnalyze
	StageRuleParse
	StageCategorize
	StageNormalize
	StageAIEnhance
)

// StageCount is the number of pipeline stages.
const StageCount = 8

var stageNames = [StageCount]string{
	"SOURCE_COLLECT",
	"LANGUAGE_DETECT",
	"AST_PARSE",
	"STATIC_ANALYZE",
	"RULE_PARSE",
	"CATEGORIZE",
	"NORMALIZE",
	"AI_ENHANCE",
}

// String returns the canonical stage name.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("STAGE_%d", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is one of the eight defined stages.
func (s Stage) Valid() bool {
	return s >= StageSourceCollect && s <= StageAIEnhance
}

// ParseStage converts a canonical stage name back into a Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Stages returns all stages in execution order.
func Stages() []Stage {
	out := make([]Stage, StageCount)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

// MarshalJSON encodes the stage as its canonical name.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a canonical stage name.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StageStatus tracks a stage execution through its lifecycle.
// Transitions are monotone: pending may advance to running, running to a
// terminal status, and terminal statuses never change.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// StageExecution is the bookkeeping record for one stage within one
// pipeline execution. Progress runs 0..100.
type StageExecution struct {
	ExecutionID string      `json:"executionId"`
	Stage       Stage       `json:"stage"`
	Status      StageStatus `json:"status"`
	Progress    int         `json:"progress"`
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// ExecutionStatus tracks a whole pipeline execution.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the execution has finished.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecCompleted || s == ExecFailed
}

// ExecutionRecord summarizes one pipeline execution.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	Root         string          `json:"root"`
	Status       ExecutionStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	FileCount    int             `json:"fileCount"`
	FindingCount int             `json:"findingCount"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}
