package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		executionID string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Export a persisted execution",
		Long: `Export writes one persisted execution to stdout, either as a JSON
document with results and a severity/category summary, or as a mermaid
diagram of the stage graph.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd.Context(), rootArg(args), executionID, format)
		},
	}

	cmd.Flags().StringVar(&executionID, "execution", "", "execution id to export")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json, mermaid)")
	_ = cmd.MarkFlagRequired("execution")
	return cmd
}

func (a *app) runExport(ctx context.Context, root, executionID, format string) error {
	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}
	store, err := openExistingSink(ctx, root, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch format {
	case "json":
		doc, err := export.BuildExport(ctx, store, executionID)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	case "mermaid":
		diagram, err := export.GenerateMermaid(ctx, store, executionID)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Print(diagram)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want json or mermaid)", format)
	}
}
