// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "walkthrough", cfg.Logger().ServiceName)
	assert.Equal(t, 20, cfg.Agent().MaxSteps)
	assert.Equal(t, 8, cfg.Agent().MaxAuthSteps)
	assert.Equal(t, 1500*time.Millisecond, cfg.Agent().CaptureInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Agent().StepPause)
	assert.Equal(t, time.Second, cfg.Agent().RecoveryPause)
	assert.Equal(t, 2*time.Second, cfg.Agent().StableWait)
	assert.Equal(t, 30*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 1920, cfg.Browser().Viewport["width"])
	assert.Equal(t, 1080, cfg.Browser().Viewport["height"])
	assert.Equal(t, ProviderGemini, cfg.LLM().Provider)
	assert.Equal(t, 1, cfg.Batch().Parallelism)
	assert.Equal(t, DefaultClassifierPolicy(), cfg.Agent().Classifier)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Defaults are valid", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Invalid max steps", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetAgentMaxSteps(0)
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_steps must be a positive integer")
	})

	t.Run("Invalid auth threshold", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AgentCfg.MaxAuthSteps = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_auth_steps")
	})

	t.Run("Empty completion table", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AgentCfg.Classifier.CompletionPhrases = nil
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "completion_phrases must not be empty")
	})

	t.Run("Unsupported provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLMCfg.Provider = "openai"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})

	t.Run("Batch parallelism", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BatchCfg.Parallelism = 0
		assert.Error(t, cfg.Validate())
	})
}

// -- Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("YAML overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yamlConfig := []byte(`
agent:
  max_steps: 5
  capture_interval: 3s
browser:
  headless: true
  screenshot_dir: /tmp/shots
llm:
  model: gemini-2.5-pro
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Agent().MaxSteps)
		assert.Equal(t, 3*time.Second, cfg.Agent().CaptureInterval)
		assert.True(t, cfg.Browser().Headless)
		assert.Equal(t, "/tmp/shots", cfg.Browser().ScreenshotDir)
		assert.Equal(t, "gemini-2.5-pro", cfg.LLM().Model)
	})

	t.Run("GEMINI_API_KEY is honored", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "test-key-123")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "test-key-123", cfg.LLM().APIKey)
	})

	t.Run("Home directory is expanded", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.screenshot_dir", "~/walkthrough-shots")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		home, err := homedir.Dir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "walkthrough-shots"), cfg.Browser().ScreenshotDir)
	})

	t.Run("Invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("agent.max_steps", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
