package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment    string               `toml:"environment"` // "development" or "production"
	Server         ServerConfig         `toml:"server"`
	Logging        LoggingConfig        `toml:"logging"`
	LLM            LLMConfig            `toml:"llm"`
	Gemini         GeminiConfig         `toml:"gemini"`
	Claude         ClaudeConfig         `toml:"claude"`
	Pipeline       PipelineConfig       `toml:"pipeline"`
	Recommendation RecommendationConfig `toml:"recommendation"`
}

type ServerConfig struct {
	Port        int      `toml:"port"`
	Host        string   `toml:"host"`
	ReportsDir  string   `toml:"reports_dir"`  // Directory report_path requests are confined to; empty disables them
	CORSOrigins []string `toml:"cors_origins"` // Allowed browser origins, "*" allows any (default: ["*"])
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for console and file writers
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey    string `toml:"api_key"`    // Google Gemini API key
	Model     string `toml:"model"`      // Model name (default: "gemini-3-flash-preview")
	RateLimit string `toml:"rate_limit"` // Minimum interval between calls as duration string (default: "4s" for 15 RPM)
}

// DefaultClaudeModel is the Anthropic model used when claude.model is unset
const DefaultClaudeModel = "claude-haiku-4-5-20251001"

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model     string `toml:"model"`      // Model name (default: DefaultClaudeModel)
	MaxTokens int    `toml:"max_tokens"` // Upper bound applied to per-call max output tokens
	RateLimit string `toml:"rate_limit"` // Minimum interval between calls as duration string (default: "1s")
}

// LLMProvider represents the generation backend
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderOffline uses the deterministic in-process generator
	LLMProviderOffline LLMProvider = "offline"
)

// LLMConfig selects the generation backend used by every step
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude", "gemini" or "offline" (default: "claude")
}

// PipelineConfig controls the orchestrator retry loop and execution mode.
// Durations are strings parsed with time.ParseDuration.
type PipelineConfig struct {
	MaxRetries          int     `toml:"max_retries"`          // Retries after the first attempt (default: 3, 0 disables retry)
	RetryBackoff        string  `toml:"retry_backoff"`        // Base backoff delay (default: "1s")
	RetryMaxBackoff     string  `toml:"retry_max_backoff"`    // Backoff cap (default: "30s")
	RetryMultiplier     float64 `toml:"retry_multiplier"`     // Exponential multiplier (default: 2.0)
	StepTimeout         string  `toml:"step_timeout"`         // Per generation call timeout (default: "60s")
	RunBudget           string  `toml:"run_budget"`           // Wall-clock budget for one run (default: "5m")
	ParallelIndependent bool    `toml:"parallel_independent"` // Run extraction and sentiment concurrently
	UseLLMNarrative     bool    `toml:"use_llm_narrative"`    // Ask the model for headline and summary text
}

// RecommendationConfig holds the decision table thresholds used by the summary step
type RecommendationConfig struct {
	StrongGrowth   float64 `toml:"strong_growth"`   // YoY growth scoring +2 (default: 0.15)
	ModerateGrowth float64 `toml:"moderate_growth"` // YoY growth scoring +1 (default: 0.08)
	StrongMargin   float64 `toml:"strong_margin"`   // Operating margin scoring +2 (default: 0.30)
	HealthyMargin  float64 `toml:"healthy_margin"`  // Operating margin scoring +1 (default: 0.20)
	WeakMargin     float64 `toml:"weak_margin"`     // Operating margin scoring -1 (default: 0.10)
	BeatWeight     int     `toml:"beat_weight"`     // Score added when EPS beat the estimate (default: 0)
	BuyThreshold   int     `toml:"buy_threshold"`   // Total score at or above which the call is BUY (default: 3)
	SellThreshold  int     `toml:"sell_threshold"`  // Total score at or below which the call is SELL (default: -2)
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:        8000,
			Host:        "localhost",
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Gemini: GeminiConfig{
			Model:     "gemini-3-flash-preview",
			RateLimit: "4s",
		},
		Claude: ClaudeConfig{
			Model:     DefaultClaudeModel,
			MaxTokens: 4096,
			RateLimit: "1s",
		},
		Pipeline: PipelineConfig{
			MaxRetries:      3,
			RetryBackoff:    "1s",
			RetryMaxBackoff: "30s",
			RetryMultiplier: 2.0,
			StepTimeout:     "60s",
			RunBudget:       "5m",
			UseLLMNarrative: true,
		},
		Recommendation: RecommendationConfig{
			StrongGrowth:   0.15,
			ModerateGrowth: 0.08,
			StrongMargin:   0.30,
			HealthyMargin:  0.20,
			WeakMargin:     0.10,
			BeatWeight:     0,
			BuyThreshold:   3,
			SellThreshold:  -2,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files (in order) -> env.
// Later files override earlier files. CLI flags are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TALLY_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("TALLY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TALLY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if dir := os.Getenv("TALLY_SERVER_REPORTS_DIR"); dir != "" {
		config.Server.ReportsDir = dir
	}
	if origins := splitList(os.Getenv("TALLY_SERVER_CORS_ORIGINS")); len(origins) > 0 {
		config.Server.CORSOrigins = origins
	}

	// Logging
	if level := os.Getenv("TALLY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TALLY_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Providers
	if provider := os.Getenv("TALLY_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if apiKey := os.Getenv("TALLY_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("TALLY_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if rateLimit := os.Getenv("TALLY_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("TALLY_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // TALLY_ prefix takes priority
	}
	if model := os.Getenv("TALLY_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if rateLimit := os.Getenv("TALLY_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}

	// Pipeline
	if maxRetries := os.Getenv("TALLY_PIPELINE_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Pipeline.MaxRetries = mr
		}
	}
	if backoff := os.Getenv("TALLY_PIPELINE_RETRY_BACKOFF"); backoff != "" {
		config.Pipeline.RetryBackoff = backoff
	}
	if stepTimeout := os.Getenv("TALLY_PIPELINE_STEP_TIMEOUT"); stepTimeout != "" {
		config.Pipeline.StepTimeout = stepTimeout
	}
	if budget := os.Getenv("TALLY_PIPELINE_RUN_BUDGET"); budget != "" {
		config.Pipeline.RunBudget = budget
	}
	if parallel := os.Getenv("TALLY_PIPELINE_PARALLEL_INDEPENDENT"); parallel != "" {
		if p, err := strconv.ParseBool(parallel); err == nil {
			config.Pipeline.ParallelIndependent = p
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.RetryMultiplier < 1 {
		return fmt.Errorf("pipeline.retry_multiplier must be >= 1, got %g", c.Pipeline.RetryMultiplier)
	}

	durations := map[string]string{
		"pipeline.retry_backoff":     c.Pipeline.RetryBackoff,
		"pipeline.retry_max_backoff": c.Pipeline.RetryMaxBackoff,
		"pipeline.step_timeout":      c.Pipeline.StepTimeout,
		"pipeline.run_budget":        c.Pipeline.RunBudget,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	switch c.LLM.DefaultProvider {
	case LLMProviderClaude, LLMProviderGemini, LLMProviderOffline:
	default:
		return fmt.Errorf("unknown llm.default_provider %q", c.LLM.DefaultProvider)
	}

	if c.Recommendation.SellThreshold >= c.Recommendation.BuyThreshold {
		return fmt.Errorf("recommendation.sell_threshold (%d) must be below buy_threshold (%d)",
			c.Recommendation.SellThreshold, c.Recommendation.BuyThreshold)
	}

	return nil
}

// splitList splits a comma separated value, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> config fallback -> error
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"TALLY_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"TALLY_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"TALLY_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Redacted returns a copy safe to expose: API keys are masked
func (c *Config) Redacted() *Config {
	clone := *c
	clone.Logging.Output = append([]string(nil), c.Logging.Output...)
	clone.Claude.APIKey = redact(c.Claude.APIKey)
	clone.Gemini.APIKey = redact(c.Gemini.APIKey)
	return &clone
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
