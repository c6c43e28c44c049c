package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/mcptools"
)

func newServeMCPCmd(a *app) *cobra.Command {
	var (
		addr    string
		stdio   bool
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "serve-mcp [path]",
		Short: "Serve the analysis pipeline as MCP tools",
		Long: `Serve-mcp exposes start_analysis, get_analysis_status, list_findings and
list_rules over the Model Context Protocol. By default it listens on a
streamable HTTP endpoint; --stdio serves a single session on stdin/stdout
for direct agent integration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServeMCP(cmd.Context(), rootArg(args), addr, stdio, persist)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "HTTP listen address")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve over stdin/stdout instead of HTTP")
	cmd.Flags().BoolVar(&persist, "persist", false, "persist results to "+sinkFile)
	return cmd
}

func (a *app) runServeMCP(parent context.Context, root, addr string, stdio, persist bool) error {
	logger := a.logger()
	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openSink(ctx, root, cfg, persist)
	if err != nil {
		return err
	}
	svc, engine, err := buildService(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer svc.Close()

	analysisService := mcptools.NewAnalysisService(svc, engine)
	if stdio {
		return mcptools.RunMCPServerStdio(ctx, analysisService)
	}
	logger.Info("mcp server listening", "addr", addr)
	return mcptools.RunMCPServer(ctx, analysisService, addr)
}
