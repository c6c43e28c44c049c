package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/pipeline"
)

func newStatusCmd(a *app) *cobra.Command {
	var executionID string

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show persisted execution status",
		Long: `Status reads the result sink under the given path (default "."). With
--execution it prints the per-stage table of that run; without it, a
listing of all persisted executions, newest first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.Context(), rootArg(args), executionID)
		},
	}

	cmd.Flags().StringVar(&executionID, "execution", "", "execution id to inspect")
	return cmd
}

func (a *app) runStatus(ctx context.Context, root, executionID string) error {
	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}
	store, err := openExistingSink(ctx, root, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if executionID != "" {
		rec, err := store.Execution(ctx, executionID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("status %s: %w", executionID, pipeline.ErrNotFound)
		}
		stages, err := store.StageExecutions(ctx, executionID)
		if err != nil {
			return err
		}
		printStageTable(pipeline.StatusSnapshot{Execution: *rec, Stages: stages})
		return nil
	}

	records, err := store.Executions(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No executions found.")
		fmt.Println("Run 'codelens run --persist' to record one.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  %s  %d files, %d findings\n",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.ID,
			executionSprint(rec.Status)(fmt.Sprintf("%-9s", rec.Status)),
			rec.FileCount, rec.FindingCount)
	}
	return nil
}
