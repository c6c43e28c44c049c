package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/pipeline"
)

const timeRounding = 10 * time.Millisecond

var severityOrder = []analysis.Severity{
	analysis.SeverityCritical,
	analysis.SeverityHigh,
	analysis.SeverityMedium,
	analysis.SeverityLow,
	analysis.SeverityInfo,
}

// eventLine colors a formatted progress line by stage status.
func eventLine(ev pipeline.Event) string {
	line := pipeline.FormatEvent(ev)
	switch ev.Status {
	case analysis.StatusRunning:
		return color.YellowString("%s", line)
	case analysis.StatusCompleted:
		return color.GreenString("%s", line)
	case analysis.StatusFailed:
		return color.RedString("%s", line)
	case analysis.StatusSkipped:
		return color.MagentaString("%s", line)
	default:
		return line
	}
}

func severitySprint(sev analysis.Severity) func(a ...interface{}) string {
	switch sev {
	case analysis.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case analysis.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case analysis.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	case analysis.SeverityLow:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// printSummary renders the normalized findings of a completed run: severity
// counts first, then one line per finding in stored order.
func printSummary(rec analysis.ExecutionRecord, results []analysis.NormalizedResult) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %d findings in %d files\n", bold("Analysis complete:"), len(results), rec.FileCount)
	if len(results) == 0 {
		return
	}

	counts := make(map[analysis.Severity]int)
	for _, r := range results {
		counts[r.Severity]++
	}
	fmt.Println()
	for _, sev := range severityOrder {
		if counts[sev] == 0 {
			continue
		}
		fmt.Printf("  %s %d\n", severitySprint(sev)(fmt.Sprintf("%-8s", sev)), counts[sev])
	}

	fmt.Println()
	for _, r := range results {
		fmt.Printf("  %s %s:%d [%s] %s\n",
			severitySprint(r.Severity)(fmt.Sprintf("%-8s", r.Severity)),
			r.FilePath, r.LineStart, r.RuleID, r.Message)
		if r.Suggestion != "" {
			fmt.Printf("           %s\n", gray(r.Suggestion))
		}
	}
}

func stageGlyph(status analysis.StageStatus) string {
	switch status {
	case analysis.StatusPending:
		return "○"
	case analysis.StatusRunning:
		return "◐"
	case analysis.StatusCompleted:
		return "✓"
	case analysis.StatusFailed:
		return "✗"
	case analysis.StatusSkipped:
		return "⊘"
	default:
		return "?"
	}
}

func statusSprint(status analysis.StageStatus) func(a ...interface{}) string {
	switch status {
	case analysis.StatusRunning:
		return color.New(color.FgYellow).SprintFunc()
	case analysis.StatusCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case analysis.StatusFailed:
		return color.New(color.FgRed).SprintFunc()
	case analysis.StatusSkipped:
		return color.New(color.FgMagenta).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// printStageTable renders the header and per-stage rows of one execution.
func printStageTable(snap pipeline.StatusSnapshot) {
	rec := snap.Execution
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s %s\n", bold("Execution:"), rec.ID)
	fmt.Printf("  Root:     %s\n", rec.Root)
	fmt.Printf("  Status:   %s\n", executionSprint(rec.Status)(string(rec.Status)))
	fmt.Printf("  Files:    %d\n", rec.FileCount)
	fmt.Printf("  Findings: %d\n", rec.FindingCount)
	fmt.Printf("  Started:  %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
	if rec.CompletedAt != nil {
		fmt.Printf("  Duration: %s\n", rec.CompletedAt.Sub(rec.StartedAt).Round(timeRounding))
	}
	if rec.Error != "" {
		fmt.Printf("  Error:    %s\n", color.RedString("%s", rec.Error))
	}
	fmt.Println()

	for _, se := range snap.Stages {
		paint := statusSprint(se.Status)
		line := fmt.Sprintf("  %s %-16s %s", stageGlyph(se.Status), se.Stage, se.Status)
		if se.Message != "" {
			line += "  " + se.Message
		}
		if se.Error != "" {
			line += "  " + se.Error
		}
		fmt.Println(paint(line))
	}
}

func executionSprint(status analysis.ExecutionStatus) func(a ...interface{}) string {
	switch status {
	case analysis.ExecCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case analysis.ExecFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}
