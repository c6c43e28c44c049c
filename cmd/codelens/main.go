// Package main provides the codelens binary entry point: a multi-stage
// source analysis pipeline driven from the command line or exposed as an
// MCP server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, buf[:n])
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flag state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "codelens",
		Short: "Multi-stage source code analysis",
		Long: `codelens runs source files through an eight-stage analysis pipeline:
collection, language detection, AST parsing, static and rule analysis,
categorization, normalization and optional AI enhancement.

Results are persisted per execution and can be exported as JSON or a
mermaid stage diagram, or served to agents over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to codelens.yml (default: probe the analyzed root)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(a),
		newRunCmd(a),
		newStatusCmd(a),
		newRulesCmd(a),
		newExportCmd(a),
		newServeMCPCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version and exit",
			Run: func(_ *cobra.Command, _ []string) {
				fmt.Println(version)
			},
		},
	)
	return cmd
}

// logger builds the process logger from --log-level. Library code receives
// it at construction; nothing logs through the global default.
func (a *app) logger() *slog.Logger {
	var level slog.Level
	switch a.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the project configuration. An explicit --config path must
// exist; otherwise the analyzed root is probed for codelens.yml.
func (a *app) loadConfig(root string) (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	return config.Load(root)
}

// rootArg returns the optional positional project root, defaulting to the
// current directory.
func rootArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return "."
}
