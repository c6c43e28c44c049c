package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Analyze a project and print its findings",
		Long: `Run collects sources under the given path (default "."), pushes them
through the analysis pipeline and prints the normalized findings sorted by
severity. Stage progress renders live while the pipeline executes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalysis(cmd.Context(), rootArg(args), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.include, "include", nil, "glob patterns to include (overrides config)")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns to exclude (overrides config)")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "persist results to "+sinkFile)
	cmd.Flags().StringVar(&opts.failOn, "fail-on", "", "exit nonzero when findings at or above this severity exist")
	return cmd
}

type runOptions struct {
	include []string
	exclude []string
	persist bool
	failOn  string
}

func (a *app) runAnalysis(parent context.Context, root string, opts runOptions) error {
	var threshold analysis.Severity
	if opts.failOn != "" {
		sev, err := analysis.ParseSeverity(opts.failOn)
		if err != nil {
			return fmt.Errorf("--fail-on: %w", err)
		}
		threshold = sev
	}

	logger := a.logger()
	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openSink(ctx, root, cfg, opts.persist)
	if err != nil {
		return err
	}
	svc, _, err := buildService(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer svc.Close()

	var startOpts []pipeline.StartOption
	if len(opts.include) > 0 || len(opts.exclude) > 0 {
		startOpts = append(startOpts, pipeline.WithFilters(opts.include, opts.exclude))
	}
	id, err := svc.StartPipeline(ctx, root, startOpts...)
	if err != nil {
		return err
	}
	fmt.Printf("execution %s\n", id)

	rec, err := watchRun(ctx, stop, svc, id)
	if err != nil {
		return err
	}
	if rec.Status == analysis.ExecFailed {
		return fmt.Errorf("execution %s failed: %s", id, rec.Error)
	}

	results, err := svc.Results(context.Background(), id)
	if err != nil {
		return err
	}
	printSummary(rec, results)

	if opts.failOn != "" {
		over := 0
		for _, r := range results {
			if r.Severity.Rank() >= threshold.Rank() {
				over++
			}
		}
		if over > 0 {
			return fmt.Errorf("%d findings at or above %s", over, threshold)
		}
	}
	return nil
}

type waitResult struct {
	rec analysis.ExecutionRecord
	err error
}

// watchRun renders progress events until the execution settles. A first
// interrupt cancels the run cooperatively; stop re-arms the default signal
// handler so a second interrupt kills the process.
func watchRun(ctx context.Context, stop context.CancelFunc, svc *pipeline.Service, id string) (analysis.ExecutionRecord, error) {
	done := make(chan waitResult, 1)
	go func() {
		rec, err := svc.Wait(context.Background(), id)
		done <- waitResult{rec: rec, err: err}
	}()

	events := svc.Events()
	sig := ctx.Done()
	for {
		select {
		case ev := <-events:
			if ev.ExecutionID == id {
				fmt.Println(eventLine(ev))
			}
		case <-sig:
			stop()
			fmt.Println(color.YellowString("  interrupted, canceling"))
			_ = svc.CancelPipeline(id)
			sig = nil
		case res := <-done:
			flushEvents(events, id)
			return res.rec, res.err
		}
	}
}

// flushEvents drains events the run buffered before it settled. Every emit
// happens before the run closes its done channel, so a non-blocking drain
// sees them all.
func flushEvents(events <-chan pipeline.Event, id string) {
	for {
		select {
		case ev := <-events:
			if ev.ExecutionID == id {
				fmt.Println(eventLine(ev))
			}
		default:
			return
		}
	}
}
