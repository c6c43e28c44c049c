package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// starterConfig is the commented codelens.yml written by init. Every section
// is optional; unset values fall back to built-in defaults.
const starterConfig = `# codelens project configuration.

project:
  include: []    # doublestar globs, e.g. "src/**/*.ts"; empty collects all supported files
  exclude: []    # e.g. "**/generated/**"

scheduler:
  maxConcurrency: 4
  maxRetries: 3
  retryBaseDelayMs: 500
  taskTimeoutMs: 60000
  queueCapacity: 256

ai:
  enabled: false
  provider: anthropic   # anthropic or remote
  # model: claude-sonnet-4-5-20250929
  # endpoint: https://ai-gateway.example.com/rpc   # remote provider only
  # maxTokens: 1024

sink:
  # path: .codelens/codelens.db

rules:
  disabled: []   # rule IDs to turn off, e.g. [CLQ002]
  # extra: rules/team.yml
`

// mcpFileConfig is the structure of a .mcp.json file.
type mcpFileConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// codelensMCPEntry is the MCP server configuration for the codelens binary.
var codelensMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "codelens",
  "args": ["serve-mcp", "--stdio"]
}`)

func newInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter codelens.yml and register the MCP server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootArg(args), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

// runInit writes the starter config and merges the codelens entry into the
// project's .mcp.json.
func runInit(projectRoot string, force bool) error {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	configPath := filepath.Join(abs, "codelens.yml")
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Printf("  skipped %s (exists, use --force to overwrite)\n", dotRelative(abs, configPath))
	} else {
		if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", configPath, err)
		}
		fmt.Printf("  created %s\n", dotRelative(abs, configPath))
	}

	if err := mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Println("\nSetup complete. Run 'codelens run' to analyze the project.")
	return nil
}

// mergeMCPConfig creates or merges the codelens entry into .mcp.json.
func mergeMCPConfig(mcpPath string, force bool) error {
	var cfg mcpFileConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["codelens"]; exists && !force {
		fmt.Println("  skipped .mcp.json codelens entry (exists, use --force to overwrite)")
		return nil
	}

	cfg.MCPServers["codelens"] = codelensMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Printf("  %s .mcp.json with codelens MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
