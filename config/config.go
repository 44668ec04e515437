package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/NateSpencerWx/melon/errors"
	"gopkg.in/yaml.v3"
)

// RetryConfig controls backoff for LLM calls.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	InitialDelay  string  `yaml:"initial_delay"` // Go duration string, e.g. "1s"
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// Config is the merged configuration for the agent.
type Config struct {
	// Provider selects the LLM backend: "openai", "anthropic", "gemini",
	// "bedrock", or "mock". Defaults to "openai" (OpenRouter-compatible).
	Provider string `yaml:"provider"`

	// Model is the conversational model identifier.
	Model string `yaml:"model"`

	// ClassifierModel is the model used for command-safety classification.
	// It may be a smaller model than the conversational one; misclassifying
	// a write as a read is the expensive mistake, so the classifier prompt
	// asks for careful analysis regardless of model size.
	ClassifierModel string `yaml:"classifier_model"`

	// MaxIterations bounds tool-call round trips within one user turn.
	MaxIterations int `yaml:"max_iterations"`

	// CommandTimeoutSeconds bounds shell command execution.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	// AlwaysAllow lists glob patterns (doublestar syntax) for commands that
	// may execute without classification or approval, e.g. "git status*".
	AlwaysAllow []string `yaml:"always_allow"`

	Retry RetryConfig `yaml:"retry"`
}

// Defaults mirror the behavior of the original Melon CLI.
const (
	DefaultProvider        = "openai"
	DefaultModel           = "openai/gpt-4o"
	DefaultClassifierModel = "openai/gpt-4o-mini"
	DefaultMaxIterations   = 10
	DefaultCommandTimeout  = 60
)

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence, then fills
// in defaults for anything left unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// User-level config first.
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".melon", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Project-level config overrides user-level.
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".melon", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level values.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ClassifierModel == "" {
		c.ClassifierModel = DefaultClassifierModel
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = DefaultCommandTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay == "" {
		c.Retry.InitialDelay = "1s"
	}
	if c.Retry.BackoffFactor <= 0 {
		c.Retry.BackoffFactor = 2.0
	}
}

// InitialDelayDuration parses the configured initial retry delay, falling
// back to one second if the duration string is invalid.
func (r RetryConfig) InitialDelayDuration() time.Duration {
	d, err := time.ParseDuration(r.InitialDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// CommandTimeout returns the shell execution timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}
