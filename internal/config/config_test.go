package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/scheduler"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return dir
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_ReadsAllSections(t *testing.T) {
	dir := writeConfig(t, "codelens.yml", `
project:
  include:
    - "src/**/*.ts"
  exclude:
    - "**/vendor/**"
scheduler:
  maxConcurrency: 8
  maxRetries: 0
  retryBaseDelayMs: 250
  taskTimeoutMs: 30000
  queueCapacity: 64
ai:
  enabled: true
  provider: remote
  endpoint: http://localhost:8080/v1/complete
  maxTokens: 512
sink:
  path: .codelens/codelens.db
rules:
  disabled:
    - CLS001
  extra: rules/extra.yml
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/**/*.ts"}, cfg.Project.Include)
	assert.Equal(t, []string{"**/vendor/**"}, cfg.Project.Exclude)

	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrency)
	require.NotNil(t, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 0, *cfg.Scheduler.MaxRetries)
	assert.Equal(t, 250, cfg.Scheduler.RetryBaseDelayMs)
	assert.Equal(t, 30000, cfg.Scheduler.TaskTimeoutMs)
	assert.Equal(t, 64, cfg.Scheduler.QueueCapacity)

	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, ProviderRemote, cfg.AI.Provider)
	assert.Equal(t, "http://localhost:8080/v1/complete", cfg.AI.Endpoint)
	assert.Equal(t, 512, cfg.AI.MaxTokens)

	assert.Equal(t, ".codelens/codelens.db", cfg.Sink.Path)
	assert.Equal(t, []string{"CLS001"}, cfg.Rules.Disabled)
	assert.Equal(t, "rules/extra.yml", cfg.Rules.Extra)
}

func TestLoad_PrefersYmlOverYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codelens.yml"), []byte("sink:\n  path: from-yml.db\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codelens.yaml"), []byte("sink:\n  path: from-yaml.db\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yml.db", cfg.Sink.Path)
}

func TestLoad_FallsBackToYamlExtension(t *testing.T) {
	dir := writeConfig(t, "codelens.yaml", "sink:\n  path: results.db\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "results.db", cfg.Sink.Path)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "codelens.yml", "scheduler: [not, a, mapping\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codelens.yml")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := writeConfig(t, "codelens.yml", "scheduler:\n  maxRetries: -1\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxRetries")
}

func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, "lens.yaml", "scheduler:\n  maxConcurrency: 2\n")

	cfg, err := LoadFile(filepath.Join(dir, "lens.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduler.MaxConcurrency)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfig_Validate(t *testing.T) {
	negative := -1
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value is valid", cfg: Config{}},
		{name: "defaults are valid", cfg: Default()},
		{
			name:    "negative concurrency",
			cfg:     Config{Scheduler: Scheduler{MaxConcurrency: -2}},
			wantErr: "maxConcurrency",
		},
		{
			name:    "negative retries",
			cfg:     Config{Scheduler: Scheduler{MaxRetries: &negative}},
			wantErr: "maxRetries",
		},
		{
			name:    "negative retry delay",
			cfg:     Config{Scheduler: Scheduler{RetryBaseDelayMs: -5}},
			wantErr: "retryBaseDelayMs",
		},
		{
			name:    "negative task timeout",
			cfg:     Config{Scheduler: Scheduler{TaskTimeoutMs: -5}},
			wantErr: "taskTimeoutMs",
		},
		{
			name:    "negative queue capacity",
			cfg:     Config{Scheduler: Scheduler{QueueCapacity: -5}},
			wantErr: "queueCapacity",
		},
		{
			name:    "unknown provider",
			cfg:     Config{AI: AI{Provider: "openai"}},
			wantErr: "ai.provider",
		},
		{
			name:    "remote provider without endpoint",
			cfg:     Config{AI: AI{Enabled: true, Provider: ProviderRemote}},
			wantErr: "ai.endpoint",
		},
		{
			name: "remote provider disabled needs no endpoint",
			cfg:  Config{AI: AI{Provider: ProviderRemote}},
		},
		{
			name:    "negative max tokens",
			cfg:     Config{AI: AI{MaxTokens: -10}},
			wantErr: "maxTokens",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_SchedulerConfig_Defaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, scheduler.DefaultConfig(), cfg.SchedulerConfig())
}

func TestConfig_SchedulerConfig_Overrides(t *testing.T) {
	zero := 0
	cfg := Config{Scheduler: Scheduler{
		MaxConcurrency:   2,
		MaxRetries:       &zero,
		RetryBaseDelayMs: 100,
		TaskTimeoutMs:    5000,
		QueueCapacity:    16,
	}}

	got := cfg.SchedulerConfig()
	assert.Equal(t, 2, got.MaxConcurrency)
	assert.Equal(t, 0, got.MaxRetries, "explicit zero disables retries")
	assert.Equal(t, 100*time.Millisecond, got.RetryBaseDelay)
	assert.Equal(t, 5*time.Second, got.TaskTimeout)
	assert.Equal(t, 16, got.QueueCapacity)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrency)
	require.NotNil(t, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 3, *cfg.Scheduler.MaxRetries)
	assert.Equal(t, 500, cfg.Scheduler.RetryBaseDelayMs)
	assert.Equal(t, 60000, cfg.Scheduler.TaskTimeoutMs)
	assert.Equal(t, 256, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.False(t, cfg.AI.Enabled)
	require.NoError(t, cfg.Validate())
}
