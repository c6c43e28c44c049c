// Package pipeline orchestrates the eight-stage analysis flow: source
// collection, language detection, parsing, fanned-out static and rule
// analysis, categorization, normalization and AI enhancement. Every
// execution runs on its own scheduler instance and writes results through
// the sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hkjang/codelens/internal/agent"
	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/normalize"
	"github.com/hkjang/codelens/internal/scheduler"
	"github.com/hkjang/codelens/internal/sink"
	"github.com/hkjang/codelens/internal/source"
)

// Config tunes pipeline executions.
type Config struct {
	// Scheduler configures the per-execution task scheduler.
	Scheduler scheduler.Config
	// AIEnabled gates the AI_ENHANCE stage. When false the stage is skipped.
	AIEnabled bool
}

// Pipeline coordinates executions. It is safe for concurrent use; every Run
// owns its scheduler and stage bookkeeping, sharing only the sink and the
// progress reporter.
type Pipeline struct {
	cfg       Config
	collector source.Collector
	agents    scheduler.AnalyzerSource
	syntax    *agent.SyntaxChecker
	sink      sink.Sink
	progress  *Reporter
	log       *slog.Logger
}

// New wires a Pipeline over the given collector, analyzer source and sink.
func New(cfg Config, collector source.Collector, agents scheduler.AnalyzerSource, store sink.Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		collector: collector,
		agents:    agents,
		syntax:    agent.NewSyntaxChecker(),
		sink:      store,
		progress:  NewReporter(),
		log:       logger,
	}
}

// Events returns the channel of progress events across all executions.
func (p *Pipeline) Events() <-chan Event {
	return p.progress.Events()
}

// Close shuts down the progress reporter. Callers must ensure no run is
// still active.
func (p *Pipeline) Close() {
	p.progress.Close()
}

// Outcome carries what a run produced. Failed runs return the raw findings
// gathered before the failure so they stay retrievable.
type Outcome struct {
	Raws    []analysis.RawFinding
	Results []analysis.NormalizedResult
}

// StageError marks a run failure at a specific stage. Stages downstream of
// the failure never start and keep their pending rows.
type StageError struct {
	Stage analysis.Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Run executes the eight stages for one execution. Canceling ctx fails the
// run; stages after the failure point keep their pending rows.
func (p *Pipeline) Run(ctx context.Context, executionID, root string) (Outcome, error) {
	return p.run(ctx, executionID, root, p.collector)
}

// run is Run with an explicit collector, so callers can narrow the file set
// of a single execution without rebuilding the pipeline.
func (p *Pipeline) run(ctx context.Context, executionID, root string, collector source.Collector) (Outcome, error) {
	var out Outcome

	// Bookkeeping must outlive cancellation so a canceled run still lands
	// in the sink as failed.
	persistCtx := context.WithoutCancel(ctx)

	rec := analysis.ExecutionRecord{
		ID:        executionID,
		Root:      root,
		Status:    analysis.ExecRunning,
		StartedAt: time.Now(),
	}
	p.saveExecution(persistCtx, rec)
	p.log.Info("execution started", "execution_id", executionID, "root", root)

	stages := make([]analysis.StageExecution, analysis.StageCount)
	for i := range stages {
		stages[i] = analysis.StageExecution{
			ExecutionID: executionID,
			Stage:       analysis.Stage(i),
			Status:      analysis.StatusPending,
		}
		if err := p.sink.SaveStageExecution(persistCtx, stages[i]); err != nil {
			p.log.Warn("stage bookkeeping save failed",
				"execution_id", executionID, "stage", stages[i].Stage.String(), "error", err)
		}
		p.progress.Emit(Event{ExecutionID: executionID, Stage: stages[i].Stage, Status: analysis.StatusPending})
	}

	// SOURCE_COLLECT
	collect := &stages[analysis.StageSourceCollect]
	p.transition(persistCtx, collect, analysis.StatusRunning, 0, "")
	files, err := collector.Collect(ctx, root)
	if err != nil {
		return out, p.failRun(persistCtx, &rec, collect, err)
	}
	rec.FileCount = len(files)
	p.saveExecution(persistCtx, rec)
	p.transition(persistCtx, collect, analysis.StatusCompleted, 100, fmt.Sprintf("%d files", len(files)))

	// LANGUAGE_DETECT
	detect := &stages[analysis.StageLanguageDetect]
	p.transition(persistCtx, detect, analysis.StatusRunning, 0, "")
	counts := make(map[analysis.Language]int)
	for _, f := range files {
		counts[f.Language]++
	}
	p.transition(persistCtx, detect, analysis.StatusCompleted, 100, languageSummary(counts))

	// AST_PARSE
	parse := &stages[analysis.StageASTParse]
	p.transition(persistCtx, parse, analysis.StatusRunning, 0, "")
	parsed, syntaxFindings, err := p.syntax.Check(ctx, files)
	if err != nil {
		return out, p.failRun(persistCtx, &rec, parse, err)
	}
	out.Raws = append(out.Raws, syntaxFindings...)
	p.transition(persistCtx, parse, analysis.StatusCompleted, 100,
		fmt.Sprintf("%d parsed, %d syntax errors", len(parsed), len(syntaxFindings)))

	// STATIC_ANALYZE and RULE_PARSE run as siblings on the execution's own
	// scheduler. A failed sibling fails the run, but the survivor's findings
	// are kept.
	sched := scheduler.New(p.cfg.Scheduler, p.agents, p.log)
	sched.Start(ctx)
	defer sched.Stop()

	staticIDs, err := p.enqueueStatic(sched, executionID, root, parsed, files)
	if err != nil {
		return out, p.failRun(persistCtx, &rec, &stages[analysis.StageStaticAnalyze], err)
	}
	ruleTaskID, err := sched.AddTask(analysis.AgentRule,
		analysis.AgentInput{ExecutionID: executionID, Root: root, Files: files})
	if err != nil {
		return out, p.failRun(persistCtx, &rec, &stages[analysis.StageRuleParse], err)
	}

	var staticRaws, ruleRaws []analysis.RawFinding
	var g errgroup.Group
	g.Go(func() error {
		var err error
		staticRaws, err = p.awaitStage(ctx, persistCtx, sched, &stages[analysis.StageStaticAnalyze], staticIDs)
		return err
	})
	g.Go(func() error {
		var err error
		ruleRaws, err = p.awaitStage(ctx, persistCtx, sched, &stages[analysis.StageRuleParse], []string{ruleTaskID})
		return err
	})
	joinErr := g.Wait()

	out.Raws = append(out.Raws, staticRaws...)
	out.Raws = append(out.Raws, ruleRaws...)
	if joinErr != nil {
		p.finishExecution(persistCtx, &rec, analysis.ExecFailed, joinErr)
		return out, joinErr
	}

	// CATEGORIZE
	categorize := &stages[analysis.StageCategorize]
	p.transition(persistCtx, categorize, analysis.StatusRunning, 0, "")
	cats := normalize.Categorize(out.Raws)
	p.transition(persistCtx, categorize, analysis.StatusCompleted, 100,
		fmt.Sprintf("%d findings categorized", len(cats)))

	// NORMALIZE
	norm := &stages[analysis.StageNormalize]
	p.transition(persistCtx, norm, analysis.StatusRunning, 0, "")
	results := normalize.Build(executionID, cats, time.Now())
	out.Results = results
	if err := p.sink.SaveResults(persistCtx, executionID, results); err != nil {
		return out, p.failRun(persistCtx, &rec, norm, fmt.Errorf("save results: %w", err))
	}
	rec.FindingCount = len(results)
	p.saveExecution(persistCtx, rec)
	p.transition(persistCtx, norm, analysis.StatusCompleted, 100,
		fmt.Sprintf("%d results from %d findings", len(results), len(cats)))

	// AI_ENHANCE
	aiInput := analysis.AgentInput{ExecutionID: executionID, Root: root, Files: files, Results: results}
	enhanced, aiRaws, err := p.aiEnhance(ctx, persistCtx, sched, &stages[analysis.StageAIEnhance], aiInput)
	out.Raws = append(out.Raws, aiRaws...)
	out.Results = enhanced
	if err != nil {
		return out, p.failRun(persistCtx, &rec, &stages[analysis.StageAIEnhance], err)
	}

	rec.FindingCount = len(enhanced)
	p.finishExecution(persistCtx, &rec, analysis.ExecCompleted, nil)
	p.log.Info("execution completed",
		"execution_id", executionID, "files", len(files), "results", len(enhanced))
	return out, nil
}

// ---------------------------------------------------------------------------
// Stage helpers
// ---------------------------------------------------------------------------

// enqueueStatic queues the three deterministic static tasks. The structural
// agent gets only cleanly parsed files; security and dependency scan the
// full set. The structural pass is the slowest, so it gets first call on the
// workers.
func (p *Pipeline) enqueueStatic(sched *scheduler.Scheduler, executionID, root string, parsed, all []analysis.SourceFile) ([]string, error) {
	entries := []struct {
		agent analysis.AgentType
		files []analysis.SourceFile
		opts  []scheduler.TaskOption
	}{
		{analysis.AgentAST, parsed, []scheduler.TaskOption{scheduler.WithPriority(1)}},
		{analysis.AgentSecurity, all, nil},
		{analysis.AgentDependency, all, nil},
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, err := sched.AddTask(e.agent,
			analysis.AgentInput{ExecutionID: executionID, Root: root, Files: e.files}, e.opts...)
		if err != nil {
			return nil, fmt.Errorf("queue %s agent: %w", e.agent, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// awaitStage drives one fan-out stage: it waits for every task, folds
// completed findings together and advances progress proportionally. A failed
// task fails the stage only after the remaining tasks settle, so survivors
// keep their findings.
func (p *Pipeline) awaitStage(ctx, persistCtx context.Context, sched *scheduler.Scheduler, se *analysis.StageExecution, taskIDs []string) ([]analysis.RawFinding, error) {
	p.transition(persistCtx, se, analysis.StatusRunning, 0, "")

	var raws []analysis.RawFinding
	var firstErr error
	for i, id := range taskIDs {
		snap, err := sched.Await(ctx, id)
		if err != nil {
			firstErr = err
			break
		}
		if snap.Status == scheduler.TaskCompleted {
			raws = append(raws, snap.Findings...)
		} else if firstErr == nil {
			if snap.Err != nil {
				firstErr = fmt.Errorf("%s agent failed after %d retries: %w", snap.Agent, snap.RetryCount, snap.Err)
			} else {
				firstErr = fmt.Errorf("%s agent %s", snap.Agent, snap.Status)
			}
		}
		p.transition(persistCtx, se, analysis.StatusRunning, (i+1)*100/len(taskIDs), "")
	}

	if firstErr != nil {
		p.transition(persistCtx, se, analysis.StatusFailed, se.Progress, firstErr.Error())
		return raws, &StageError{Stage: se.Stage, Err: firstErr}
	}
	p.transition(persistCtx, se, analysis.StatusCompleted, 100, fmt.Sprintf("%d findings", len(raws)))
	return raws, nil
}

// aiEnhance dispatches the AI agent and folds its findings into the result
// set. Every AI failure degrades the stage to skipped and keeps the input
// results; only context cancellation or a sink write failure aborts the run.
func (p *Pipeline) aiEnhance(ctx, persistCtx context.Context, sched *scheduler.Scheduler, se *analysis.StageExecution, input analysis.AgentInput) ([]analysis.NormalizedResult, []analysis.RawFinding, error) {
	if !p.cfg.AIEnabled {
		p.transition(persistCtx, se, analysis.StatusSkipped, 0, "ai enhancement disabled")
		return input.Results, nil, nil
	}
	if _, ok := p.agents.Lookup(analysis.AgentAI); !ok {
		p.transition(persistCtx, se, analysis.StatusSkipped, 0, "ai agent not registered")
		return input.Results, nil, nil
	}

	p.transition(persistCtx, se, analysis.StatusRunning, 0, "")
	id, err := sched.AddTask(analysis.AgentAI, input)
	if err != nil {
		p.transition(persistCtx, se, analysis.StatusSkipped, 0, fmt.Sprintf("ai task not queued: %v", err))
		return input.Results, nil, nil
	}

	snap, err := sched.Await(ctx, id)
	if err != nil {
		return input.Results, nil, err
	}
	if snap.Status != scheduler.TaskCompleted {
		reason := "ai task " + string(snap.Status)
		if snap.Err != nil {
			reason = snap.Err.Error()
		}
		p.log.Warn("ai enhancement degraded", "execution_id", input.ExecutionID, "reason", reason)
		p.transition(persistCtx, se, analysis.StatusSkipped, 0, reason)
		return input.Results, nil, nil
	}

	enhanced := normalize.Enhance(input.ExecutionID, input.Results, snap.Findings, time.Now())
	if err := p.sink.SaveResults(persistCtx, input.ExecutionID, enhanced); err != nil {
		return enhanced, snap.Findings, fmt.Errorf("save enhanced results: %w", err)
	}
	p.transition(persistCtx, se, analysis.StatusCompleted, 100,
		fmt.Sprintf("%d ai findings merged", len(snap.Findings)))
	return enhanced, snap.Findings, nil
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

// transition advances one stage, persists the bookkeeping row and publishes
// the event. Transitions are monotone; terminal stages never change.
func (p *Pipeline) transition(ctx context.Context, se *analysis.StageExecution, status analysis.StageStatus, progress int, message string) {
	if se.Status.Terminal() {
		return
	}
	now := time.Now()
	if status == analysis.StatusRunning && se.StartedAt == nil {
		se.StartedAt = &now
	}
	if status.Terminal() {
		se.CompletedAt = &now
	}
	se.Status = status
	se.Progress = progress
	se.Message = message
	if status == analysis.StatusFailed {
		se.Error = message
	}

	if err := p.sink.SaveStageExecution(ctx, *se); err != nil {
		p.log.Warn("stage bookkeeping save failed",
			"execution_id", se.ExecutionID, "stage", se.Stage.String(), "error", err)
	}
	p.progress.Emit(Event{
		ExecutionID: se.ExecutionID,
		Stage:       se.Stage,
		Status:      status,
		Progress:    progress,
		Message:     message,
	})
}

// failRun marks the current stage and the whole execution failed. Stages
// after the failure point keep their pending rows.
func (p *Pipeline) failRun(ctx context.Context, rec *analysis.ExecutionRecord, se *analysis.StageExecution, err error) error {
	p.transition(ctx, se, analysis.StatusFailed, se.Progress, err.Error())
	wrapped := &StageError{Stage: se.Stage, Err: err}
	p.finishExecution(ctx, rec, analysis.ExecFailed, wrapped)
	return wrapped
}

func (p *Pipeline) finishExecution(ctx context.Context, rec *analysis.ExecutionRecord, status analysis.ExecutionStatus, err error) {
	now := time.Now()
	rec.Status = status
	rec.CompletedAt = &now
	if err != nil {
		rec.Error = err.Error()
		p.log.Error("execution failed", "execution_id", rec.ID, "error", err)
	}
	p.saveExecution(ctx, *rec)
}

func (p *Pipeline) saveExecution(ctx context.Context, rec analysis.ExecutionRecord) {
	if err := p.sink.SaveExecution(ctx, rec); err != nil {
		p.log.Warn("execution bookkeeping save failed", "execution_id", rec.ID, "error", err)
	}
}

// languageSummary renders per-language counts as "3 go, 2 python", most
// frequent first.
func languageSummary(counts map[analysis.Language]int) string {
	if len(counts) == 0 {
		return "no files"
	}
	type langCount struct {
		lang analysis.Language
		n    int
	}
	ordered := make([]langCount, 0, len(counts))
	for lang, n := range counts {
		ordered = append(ordered, langCount{lang, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].n != ordered[j].n {
			return ordered[i].n > ordered[j].n
		}
		return ordered[i].lang < ordered[j].lang
	})

	parts := make([]string, len(ordered))
	for i, lc := range ordered {
		parts[i] = fmt.Sprintf("%d %s", lc.n, lc.lang)
	}
	return strings.Join(parts, ", ")
}
