package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all unhabit configuration.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Stage temperatures, token limits and retry policy
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Transport retries and circuit breaker
	Resilience ResilienceConfig `yaml:"resilience"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Model call tracing
	Tracing TracingConfig `yaml:"tracing"`
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider     string `yaml:"provider"` // openai, gemini, offline
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	GeminiAPIKey string `yaml:"gemini_api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"` // OpenAI-compatible endpoint
	JSONModel    string `yaml:"json_model"`
	TextModel    string `yaml:"text_model"`
	Timeout      string `yaml:"timeout"` // per model call
}

// StageConfig tunes a single stage's model call.
type StageConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// StagesConfig holds per-stage settings.
type StagesConfig struct {
	Canonicalize StageConfig `yaml:"canonicalize"`
	Safety       StageConfig `yaml:"safety"`
	QuizForm     StageConfig `yaml:"quiz_form"`
	QuizSummary  StageConfig `yaml:"quiz_summary"`
	Plan21       StageConfig `yaml:"plan21"`
	Coach        StageConfig `yaml:"coach"`
}

// RetryConfig is the escalating retry policy for raw-JSON calls.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	EscalationStep float64 `yaml:"escalation_step"` // temperature added per attempt
}

// PipelineConfig configures the generation pipeline.
type PipelineConfig struct {
	Retry  RetryConfig  `yaml:"retry"`
	Stages StagesConfig `yaml:"stages"`

	// RescreenChat runs the safety classifier on every chat message.
	RescreenChat bool `yaml:"rescreen_chat"`
}

// ResilienceConfig configures transport retries and the circuit breaker.
type ResilienceConfig struct {
	TransportRetries int    `yaml:"transport_retries"`
	RetryDelay       string `yaml:"retry_delay"`
	BreakerThreshold int    `yaml:"breaker_threshold"` // consecutive failures before opening
	BreakerTimeout   string `yaml:"breaker_timeout"`   // how long the circuit stays open
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file,omitempty"`
}

// TracingConfig configures model call tracing.
type TracingConfig struct {
	// TraceFile receives one JSON line per model call when set.
	TraceFile string `yaml:"trace_file,omitempty"`
	// Spans exports OpenTelemetry spans to stderr.
	Spans bool `yaml:"spans"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			JSONModel: "gpt-4.1",
			TextModel: "gpt-4.1",
			Timeout:   "60s",
		},
		Pipeline: PipelineConfig{
			Retry: RetryConfig{
				MaxAttempts:    2,
				EscalationStep: 0.2,
			},
			Stages: StagesConfig{
				Canonicalize: StageConfig{Temperature: 0.5, MaxTokens: 800},
				Safety:       StageConfig{Temperature: 0.1, MaxTokens: 400},
				QuizForm:     StageConfig{Temperature: 0.4, MaxTokens: 1200},
				QuizSummary:  StageConfig{Temperature: 0.3, MaxTokens: 1000},
				Plan21:       StageConfig{Temperature: 0.35, MaxTokens: 1600},
				Coach:        StageConfig{Temperature: 0.6, MaxTokens: 500},
			},
			RescreenChat: true,
		},
		Resilience: ResilienceConfig{
			TransportRetries: 3,
			RetryDelay:       "500ms",
			BreakerThreshold: 5,
			BreakerTimeout:   "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.OpenAIAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.GeminiAPIKey = key
	}
	if p := os.Getenv("UNHABIT_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if m := os.Getenv("OPENAI_MODEL_JSON"); m != "" {
		c.LLM.JSONModel = m
	}
	if m := os.Getenv("OPENAI_MODEL_TEXT"); m != "" {
		c.LLM.TextModel = m
	}
	if t := os.Getenv("UNHABIT_LLM_TIMEOUT"); t != "" {
		c.LLM.Timeout = t
	}
	if v := os.Getenv("UNHABIT_RESCREEN_CHAT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Pipeline.RescreenChat = b
		}
	}
	if lvl := os.Getenv("UNHABIT_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// GetLLMTimeout returns the per-call model timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetRetryDelay returns the initial transport retry delay.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Resilience.RetryDelay, 500*time.Millisecond)
}

// GetBreakerTimeout returns how long an open circuit stays open.
func (c *Config) GetBreakerTimeout() time.Duration {
	return parseDuration(c.Resilience.BreakerTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.OpenAIAPIKey
	case "gemini":
		return c.LLM.GeminiAPIKey
	default:
		return ""
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini", "offline"}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider != "offline" && c.APIKey() == "" {
		return fmt.Errorf("LLM API key not configured for %s (set OPENAI_API_KEY or GEMINI_API_KEY, or use provider offline)", c.LLM.Provider)
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("invalid llm.timeout %q: %w", c.LLM.Timeout, err)
		}
	}
	if c.Pipeline.Retry.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.retry.max_attempts must be at least 1")
	}
	if c.Pipeline.Retry.EscalationStep < 0 {
		return fmt.Errorf("pipeline.retry.escalation_step must not be negative")
	}
	if c.Resilience.BreakerThreshold < 1 {
		return fmt.Errorf("resilience.breaker_threshold must be at least 1")
	}
	if c.Logging.Level != "" && !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
