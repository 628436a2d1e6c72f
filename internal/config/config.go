// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on this rather than the concrete struct so tests can hand in fakes.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	LLM() LLMModelConfig
	Batch() BatchConfig

	SetBrowserHeadless(bool)
	SetAgentMaxSteps(int)
	SetLLMAPIKey(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	AgentCfg    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	LLMCfg      LLMModelConfig `mapstructure:"llm" yaml:"llm"`
	BatchCfg    BatchConfig    `mapstructure:"batch" yaml:"batch"`
}

// --- Getters ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Agent() AgentConfig       { return c.AgentCfg }
func (c *Config) LLM() LLMModelConfig      { return c.LLMCfg }
func (c *Config) Batch() BatchConfig       { return c.BatchCfg }

// --- Setters (CLI flag overrides) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetAgentMaxSteps(n int)    { c.AgentCfg.MaxSteps = n }
func (c *Config) SetLLMAPIKey(key string)   { c.LLMCfg.APIKey = key }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the Chromium instance driving the task.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ScreenshotDir     string         `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	FullPage          bool           `mapstructure:"full_page" yaml:"full_page"`
}

// AgentConfig tunes the step loop.
type AgentConfig struct {
	MaxSteps        int              `mapstructure:"max_steps" yaml:"max_steps"`
	MaxAuthSteps    int              `mapstructure:"max_auth_steps" yaml:"max_auth_steps"`
	CaptureInterval time.Duration    `mapstructure:"capture_interval" yaml:"capture_interval"`
	RecoveryPause   time.Duration    `mapstructure:"recovery_pause" yaml:"recovery_pause"`
	StepPause       time.Duration    `mapstructure:"step_pause" yaml:"step_pause"`
	CompletionPause time.Duration    `mapstructure:"completion_pause" yaml:"completion_pause"`
	StableWait      time.Duration    `mapstructure:"stable_wait" yaml:"stable_wait"`
	DefaultWait     time.Duration    `mapstructure:"default_wait" yaml:"default_wait"`
	Classifier      ClassifierPolicy `mapstructure:"classifier" yaml:"classifier"`
}

// ClassifierPolicy is the ordered keyword table used to judge reasoning output
// and to spot authentication pages. Rules are evaluated in field order.
type ClassifierPolicy struct {
	CompletionPhrases []string `mapstructure:"completion_phrases" yaml:"completion_phrases"`
	AuthTerms         []string `mapstructure:"auth_terms" yaml:"auth_terms"`
	FailureTerms      []string `mapstructure:"failure_terms" yaml:"failure_terms"`
	ProgressTerms     []string `mapstructure:"progress_terms" yaml:"progress_terms"`
	AuthURLMarkers    []string `mapstructure:"auth_url_markers" yaml:"auth_url_markers"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for the reasoning model.
type LLMModelConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// BatchConfig configures sequential or bounded-parallel task batches.
type BatchConfig struct {
	Parallelism int           `mapstructure:"parallelism" yaml:"parallelism"`
	Pause       time.Duration `mapstructure:"pause" yaml:"pause"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "walkthrough")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 30*time.Second)
	v.SetDefault("browser.post_load_wait", 2*time.Second)
	v.SetDefault("browser.screenshot_dir", "./screenshots")
	v.SetDefault("browser.full_page", true)

	// -- Agent loop --
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.max_auth_steps", 8)
	v.SetDefault("agent.capture_interval", 1500*time.Millisecond)
	v.SetDefault("agent.recovery_pause", time.Second)
	v.SetDefault("agent.step_pause", 500*time.Millisecond)
	v.SetDefault("agent.completion_pause", time.Second)
	v.SetDefault("agent.stable_wait", 2*time.Second)
	v.SetDefault("agent.default_wait", time.Second)
	policy := DefaultClassifierPolicy()
	v.SetDefault("agent.classifier.completion_phrases", policy.CompletionPhrases)
	v.SetDefault("agent.classifier.auth_terms", policy.AuthTerms)
	v.SetDefault("agent.classifier.failure_terms", policy.FailureTerms)
	v.SetDefault("agent.classifier.progress_terms", policy.ProgressTerms)
	v.SetDefault("agent.classifier.auth_url_markers", policy.AuthURLMarkers)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-flash-latest")
	v.SetDefault("llm.api_timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 15)
	v.SetDefault("llm.max_retries", 3)

	// -- Batch --
	v.SetDefault("batch.parallelism", 1)
	v.SetDefault("batch.pause", 3*time.Second)
}

// DefaultClassifierPolicy returns the stock keyword table.
func DefaultClassifierPolicy() ClassifierPolicy {
	return ClassifierPolicy{
		CompletionPhrases: []string{"project created", "task created", "successfully created", "project saved", "task saved"},
		AuthTerms:         []string{"login", "sign in", "signin", "google", "oauth", "authentication", "email", "password"},
		FailureTerms:      []string{"access denied", "error", "failed"},
		ProgressTerms:     []string{"continue", "form", "modal", "button", "create", "new"},
		AuthURLMarkers:    []string{"accounts.google.com", "login", "signin", "auth", "oauth"},
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The bare GEMINI_API_KEY is honored alongside the prefixed variant.
	_ = v.BindEnv("llm.api_key", "WALKTHROUGH_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "WALKTHROUGH_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("browser.headless", "WALKTHROUGH_BROWSER_HEADLESS", "HEADLESS")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLMCfg.APIKey == "" {
		cfg.LLMCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	dir, err := homedir.Expand(cfg.BrowserCfg.ScreenshotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand browser.screenshot_dir: %w", err)
	}
	cfg.BrowserCfg.ScreenshotDir = dir

	if cfg.LoggerCfg.LogFile != "" {
		logFile, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// The API key is checked by the agent at initialization, not here.
func (c *Config) Validate() error {
	if c.AgentCfg.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.AgentCfg.MaxAuthSteps <= 0 {
		return fmt.Errorf("agent.max_auth_steps must be a positive integer")
	}
	if c.AgentCfg.CaptureInterval < 0 || c.AgentCfg.StepPause < 0 || c.AgentCfg.RecoveryPause < 0 {
		return fmt.Errorf("agent pauses and intervals must not be negative")
	}
	if c.BrowserCfg.ScreenshotDir == "" {
		return fmt.Errorf("browser.screenshot_dir is a required configuration field")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.AgentCfg.Classifier.Validate(); err != nil {
		return fmt.Errorf("agent.classifier configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.BatchCfg.Parallelism <= 0 {
		return fmt.Errorf("batch.parallelism must be a positive integer")
	}
	return nil
}

// Validate checks the classifier table.
func (p *ClassifierPolicy) Validate() error {
	if len(p.CompletionPhrases) == 0 {
		return fmt.Errorf("completion_phrases must not be empty")
	}
	if len(p.AuthURLMarkers) == 0 {
		return fmt.Errorf("auth_url_markers must not be empty")
	}
	return nil
}

// Validate checks the LLM settings.
func (l *LLMModelConfig) Validate() error {
	if l.Provider != ProviderGemini {
		return fmt.Errorf("unsupported provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.RequestsPerMinute < 0 || l.MaxRetries < 0 {
		return fmt.Errorf("requests_per_minute and max_retries must not be negative")
	}
	return nil
}
