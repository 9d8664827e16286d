// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire SDK configuration. Sub-sections map 1:1 onto the
// config file layout and are populated through viper.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// APIConfig configures the remote session/inference API client.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time"`
	MaxInterval    time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	// InferenceRate caps inference requests per second; 0 disables limiting.
	InferenceRate float64 `mapstructure:"inference_rate" yaml:"inference_rate"`
	// Model optionally overrides the server-side model selection
	// (e.g. "anthropic/claude-sonnet-4", "openai/gpt-4o").
	Model string `mapstructure:"model" yaml:"model"`
}

// AgentConfig configures the task loop.
type AgentConfig struct {
	MaxSteps      int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay     time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	ContextWindow int           `mapstructure:"context_window" yaml:"context_window"`
	DeviceID      string        `mapstructure:"device_id" yaml:"device_id"`
}

// InferenceConfig configures direct (cloud-bypass) inference providers.
type InferenceConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"` // "openai", "gemini" or "" for the remote API
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// BrowserConfig configures the chromedp capture/executor adapter.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	StartURL       string        `mapstructure:"start_url" yaml:"start_url"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// StoreConfig configures the local run-history store.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TelemetryConfig configures the batched telemetry emitter.
type TelemetryConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	QueueLimit    int           `mapstructure:"queue_limit" yaml:"queue_limit"`
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
	v.SetDefault("logger.service_name", "agi-sdk")
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
	v.SetDefault("logger.colors.fatal", "red")

	// -- API --
	v.SetDefault("api.base_url", "https://api.agi.tech")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_elapsed_time", "2m")
	v.SetDefault("api.max_interval", "30s")
	v.SetDefault("api.inference_rate", 2.0)

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.step_delay", "500ms")
	v.SetDefault("agent.context_window", 20)

	// -- Inference (direct providers) --
	v.SetDefault("inference.provider", "")
	v.SetDefault("inference.model", "")
	v.SetDefault("inference.temperature", 0.2)
	v.SetDefault("inference.max_tokens", 1024)

	// -- Browser adapter --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.action_timeout", "20s")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "agi-history.db")

	// -- Telemetry --
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.batch_size", 10)
	v.SetDefault("telemetry.flush_interval", "5s")
	v.SetDefault("telemetry.queue_limit", 1000)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("api.api_key", "AGI_API_KEY")
	v.BindEnv("api.base_url", "AGI_API_URL")
	v.BindEnv("inference.api_key", "AGI_INFERENCE_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load secrets if Unmarshal didn't pick them up
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("AGI_API_KEY")
	}
	if cfg.Inference.APIKey == "" {
		cfg.Inference.APIKey = os.Getenv("AGI_INFERENCE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is a required configuration field")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.ContextWindow <= 0 {
		return fmt.Errorf("agent.context_window must be a positive integer")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be a positive duration")
	}
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference configuration invalid: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the direct-provider settings.
func (i *InferenceConfig) Validate() error {
	switch i.Provider {
	case "", "openai", "gemini":
	default:
		return fmt.Errorf("unknown provider %q (want \"openai\", \"gemini\" or empty)", i.Provider)
	}
	if i.Provider != "" && i.Model == "" {
		return fmt.Errorf("model is required when a direct provider is selected")
	}
	return nil
}

// Validate checks the telemetry settings.
func (t *TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be greater than 0")
	}
	if t.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be a positive duration")
	}
	return nil
}
