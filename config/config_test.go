package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".melon")
	require.NoError(t, os.MkdirAll(cfgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0644))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.ClassifierModel)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.CommandTimeout())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelayDuration())
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
}

func TestLoadConfigUserLevel(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	writeConfig(t, home, "provider: anthropic\nmodel: claude-sonnet-4-20250514\nmax_iterations: 5\n")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 5, cfg.MaxIterations)
	// Unset fields still get defaults.
	assert.Equal(t, "openai/gpt-4o-mini", cfg.ClassifierModel)
}

func TestLoadConfigProjectOverridesUser(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, project)

	writeConfig(t, home, "provider: anthropic\nmax_iterations: 5\n")
	writeConfig(t, project, "provider: gemini\nalways_allow:\n  - \"git status*\"\n")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, []string{"git status*"}, cfg.AlwaysAllow)
	// User-level values not shadowed by the project file survive the merge.
	assert.Equal(t, 5, cfg.MaxIterations)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	chdir(t, project)

	writeConfig(t, project, "provider: [unterminated\n")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestRetryConfigDurations(t *testing.T) {
	tests := []struct {
		name  string
		delay string
		want  time.Duration
	}{
		{"valid", "250ms", 250 * time.Millisecond},
		{"invalid falls back", "soon", time.Second},
		{"negative falls back", "-2s", time.Second},
		{"empty falls back", "", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RetryConfig{InitialDelay: tt.delay}
			assert.Equal(t, tt.want, r.InitialDelayDuration())
		})
	}
}

func TestCommandTimeoutConfigured(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	chdir(t, project)

	writeConfig(t, project, "command_timeout_seconds: 5\n")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout())
}
