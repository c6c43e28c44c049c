package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hkjang/codelens/internal/agent"
	"github.com/hkjang/codelens/internal/ai"
	"github.com/hkjang/codelens/internal/config"
	"github.com/hkjang/codelens/internal/pipeline"
	"github.com/hkjang/codelens/internal/rules"
	"github.com/hkjang/codelens/internal/sink"
	"github.com/hkjang/codelens/internal/source"
)

// sinkFile is the default sqlite location under the analyzed root, used when
// --persist is set without an explicit sink.path.
const sinkFile = ".codelens/codelens.db"

// buildEngine loads the builtin ruleset and applies the config overlay:
// extra rule files first, then per-ID disables.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*rules.Engine, error) {
	engine := rules.NewEngine(logger)
	if err := rules.LoadBuiltin(engine); err != nil {
		return nil, fmt.Errorf("load builtin rules: %w", err)
	}
	if cfg.Rules.Extra != "" {
		if err := rules.LoadFile(engine, cfg.Rules.Extra); err != nil {
			return nil, fmt.Errorf("load extra rules: %w", err)
		}
	}
	for _, id := range cfg.Rules.Disabled {
		if err := engine.SetEnabled(id, false); err != nil {
			return nil, fmt.Errorf("disable rule: %w", err)
		}
	}
	return engine, nil
}

// buildCompleter constructs the AI backend named by the config, wrapped in a
// circuit breaker. Returns nil when AI enhancement is disabled.
func buildCompleter(cfg *config.Config, logger *slog.Logger) (ai.Completer, error) {
	if !cfg.AI.Enabled {
		return nil, nil
	}
	var inner ai.Completer
	var err error
	switch cfg.AI.Provider {
	case config.ProviderRemote:
		inner, err = ai.NewRemoteCompleter(cfg.AI.Endpoint)
	default:
		inner, err = ai.NewAnthropicCompleter("", cfg.AI.Model, logger)
	}
	if err != nil {
		return nil, err
	}
	return ai.NewBreakerCompleter(inner, logger), nil
}

// openSink returns the store for a new run: sqlite when persistence applies,
// in-memory otherwise.
func openSink(ctx context.Context, root string, cfg *config.Config, persist bool) (sink.Store, error) {
	path := cfg.Sink.Path
	if path == "" && persist {
		path = filepath.Join(root, sinkFile)
	}
	if path == "" {
		return sink.NewMemorySink(), nil
	}
	return sink.NewSQLiteSink(ctx, path)
}

// openExistingSink returns the store holding past executions. Unlike
// openSink it never creates anything: status and export read history, and a
// fresh empty database would only turn "not found" into a confusing blank.
func openExistingSink(ctx context.Context, root string, cfg *config.Config) (sink.Store, error) {
	path := cfg.Sink.Path
	if path == "" {
		path = filepath.Join(root, sinkFile)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no persisted executions at %s: set sink.path in codelens.yml or run with --persist", path)
	}
	return sink.NewSQLiteSink(ctx, path)
}

// buildService wires the full pipeline service from configuration.
func buildService(cfg *config.Config, store sink.Store, logger *slog.Logger) (*pipeline.Service, *rules.Engine, error) {
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	completer, err := buildCompleter(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var aiOpts []agent.AIOption
	if cfg.AI.MaxTokens > 0 {
		aiOpts = append(aiOpts, agent.WithMaxTokens(cfg.AI.MaxTokens))
	}
	registry := agent.NewDefaultRegistry(engine, completer, logger, aiOpts...)
	collector := source.NewFSCollector(cfg.Project.Include, cfg.Project.Exclude, logger)
	pcfg := pipeline.Config{
		Scheduler: cfg.SchedulerConfig(),
		AIEnabled: cfg.AI.Enabled,
	}
	return pipeline.NewService(pcfg, collector, registry, store, logger), engine, nil
}
