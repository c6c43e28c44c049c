// Package config loads codelens.yml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hkjang/codelens/internal/scheduler"
)

// Providers accepted in the ai section.
const (
	ProviderAnthropic = "anthropic"
	ProviderRemote    = "remote"
)

// Config holds the settings loaded from codelens.yml.
type Config struct {
	Project   Project   `yaml:"project,omitempty"`
	Scheduler Scheduler `yaml:"scheduler,omitempty"`
	AI        AI        `yaml:"ai,omitempty"`
	Sink      Sink      `yaml:"sink,omitempty"`
	Rules     Rules     `yaml:"rules,omitempty"`
}

// Project filters which files an analysis collects.
type Project struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Scheduler tunes the per-execution task scheduler. Zero values fall back to
// the scheduler defaults. MaxRetries is a pointer because an explicit zero
// disables retries, which is different from leaving the field unset.
type Scheduler struct {
	MaxConcurrency   int  `yaml:"maxConcurrency,omitempty"`
	MaxRetries       *int `yaml:"maxRetries,omitempty"`
	RetryBaseDelayMs int  `yaml:"retryBaseDelayMs,omitempty"`
	TaskTimeoutMs    int  `yaml:"taskTimeoutMs,omitempty"`
	QueueCapacity    int  `yaml:"queueCapacity,omitempty"`
}

// AI selects and tunes the completion backend for the enhancement stage.
type AI struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	MaxTokens int    `yaml:"maxTokens,omitempty"`
}

// Sink selects where results are stored. An empty path keeps them in memory.
type Sink struct {
	Path string `yaml:"path,omitempty"`
}

// Rules adjusts the builtin ruleset.
type Rules struct {
	Disabled []string `yaml:"disabled,omitempty"`
	Extra    string   `yaml:"extra,omitempty"`
}

// Default returns the configuration applied when codelens.yml is missing or
// leaves sections unset.
func Default() Config {
	sched := scheduler.DefaultConfig()
	retries := sched.MaxRetries
	return Config{
		Scheduler: Scheduler{
			MaxConcurrency:   sched.MaxConcurrency,
			MaxRetries:       &retries,
			RetryBaseDelayMs: int(sched.RetryBaseDelay / time.Millisecond),
			TaskTimeoutMs:    int(sched.TaskTimeout / time.Millisecond),
			QueueCapacity:    sched.QueueCapacity,
		},
		AI: AI{Provider: ProviderAnthropic},
	}
}

// Load attempts to read codelens.yml or codelens.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists; callers fall back to Default semantics for unset fields.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"codelens.yml", "codelens.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &cfg, nil
	}
	return &Config{}, nil
}

// LoadFile reads an explicitly named config file. Unlike Load, a missing
// file is an error: the caller asked for this exact path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects settings the runtime cannot honor.
func (c Config) Validate() error {
	if c.Scheduler.MaxConcurrency < 0 {
		return fmt.Errorf("scheduler.maxConcurrency cannot be negative, got %d", c.Scheduler.MaxConcurrency)
	}
	if c.Scheduler.MaxRetries != nil && *c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler.maxRetries cannot be negative, got %d", *c.Scheduler.MaxRetries)
	}
	if c.Scheduler.RetryBaseDelayMs < 0 {
		return fmt.Errorf("scheduler.retryBaseDelayMs cannot be negative, got %d", c.Scheduler.RetryBaseDelayMs)
	}
	if c.Scheduler.TaskTimeoutMs < 0 {
		return fmt.Errorf("scheduler.taskTimeoutMs cannot be negative, got %d", c.Scheduler.TaskTimeoutMs)
	}
	if c.Scheduler.QueueCapacity < 0 {
		return fmt.Errorf("scheduler.queueCapacity cannot be negative, got %d", c.Scheduler.QueueCapacity)
	}
	switch c.AI.Provider {
	case "", ProviderAnthropic, ProviderRemote:
	default:
		return fmt.Errorf("ai.provider must be %q or %q, got %q", ProviderAnthropic, ProviderRemote, c.AI.Provider)
	}
	if c.AI.Enabled && c.AI.Provider == ProviderRemote && c.AI.Endpoint == "" {
		return fmt.Errorf("ai.endpoint is required for the %s provider", ProviderRemote)
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.maxTokens cannot be negative, got %d", c.AI.MaxTokens)
	}
	return nil
}

// SchedulerConfig converts the scheduler section into a scheduler.Config,
// falling back to the scheduler defaults for unset fields.
func (c Config) SchedulerConfig() scheduler.Config {
	out := scheduler.DefaultConfig()
	if c.Scheduler.MaxConcurrency > 0 {
		out.MaxConcurrency = c.Scheduler.MaxConcurrency
	}
	if c.Scheduler.MaxRetries != nil {
		out.MaxRetries = *c.Scheduler.MaxRetries
	}
	if c.Scheduler.RetryBaseDelayMs > 0 {
		out.RetryBaseDelay = time.Duration(c.Scheduler.RetryBaseDelayMs) * time.Millisecond
	}
	if c.Scheduler.TaskTimeoutMs > 0 {
		out.TaskTimeout = time.Duration(c.Scheduler.TaskTimeoutMs) * time.Millisecond
	}
	if c.Scheduler.QueueCapacity > 0 {
		out.QueueCapacity = c.Scheduler.QueueCapacity
	}
	return out
}
