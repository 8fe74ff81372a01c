package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config selects the model that reads score cards. Only one provider is
// active at a time, so the key and model belong to it.
type Config struct {
	// Provider is "anthropic", "openai" or "gemini".
	Provider string
	APIKey   string
	// Model is a short name (claude-haiku, gpt-4o-mini, gemini-flash) or a
	// provider model ID. Empty picks the provider default.
	Model string
	// BaseURL points the openai provider at a compatible API such as
	// OpenRouter.
	BaseURL string

	// MaxTokens caps one card reply. A truncated card is retried once with
	// twice the budget.
	MaxTokens int
	Retry     RetryConfig

	// Timeout bounds one extraction, retries included.
	Timeout time.Duration
}

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

var defaultModels = map[string]string{
	"anthropic": "claude-haiku",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-flash",
}

// standard API key variables, checked in this order by DiscoverConfig
var keyVars = []struct{ env, provider, baseURL, model string }{
	{"GEMINI_API_KEY", "gemini", "", ""},
	{"OPENAI_API_KEY", "openai", "", ""},
	{"ANTHROPIC_API_KEY", "anthropic", "", ""},
	{"OPENROUTER_API_KEY", "openai", OpenRouterBaseURL, "google/gemini-2.5-flash"},
}

func DefaultConfig() Config {
	return Config{
		Provider:  "anthropic",
		MaxTokens: 2048,
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

// ConfigFromEnv reads STUDYLOG_LLM_* variables over DefaultConfig. Without
// STUDYLOG_LLM_API_KEY the provider's standard key variable is used.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if p := os.Getenv("STUDYLOG_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
	}
	cfg.APIKey = os.Getenv("STUDYLOG_LLM_API_KEY")
	if cfg.APIKey == "" {
		for _, kv := range keyVars {
			if kv.provider == cfg.Provider && kv.baseURL == "" {
				cfg.APIKey = os.Getenv(kv.env)
			}
		}
	}
	cfg.Model = os.Getenv("STUDYLOG_LLM_MODEL")
	cfg.BaseURL = os.Getenv("STUDYLOG_LLM_BASE_URL")

	if v := os.Getenv("STUDYLOG_LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("STUDYLOG_LLM_MAX_TOKENS: %w", err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("STUDYLOG_LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("STUDYLOG_LLM_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	cfg.fillModel()
	return cfg, nil
}

// DiscoverConfig returns a Config for the first standard API key variable
// that is set: Gemini, OpenAI, Anthropic, then OpenRouter.
func DiscoverConfig() (Config, bool) {
	for _, kv := range keyVars {
		key := os.Getenv(kv.env)
		if key == "" {
			continue
		}
		cfg := DefaultConfig()
		cfg.Provider = kv.provider
		cfg.APIKey = key
		cfg.BaseURL = kv.baseURL
		cfg.Model = kv.model
		cfg.fillModel()
		return cfg, true
	}
	return Config{}, false
}

// ResolveConfig reads the environment. Without STUDYLOG_LLM_PROVIDER the
// provider comes from DiscoverConfig; STUDYLOG_LLM_* limits still apply.
func ResolveConfig() (Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	if os.Getenv("STUDYLOG_LLM_PROVIDER") == "" && os.Getenv("STUDYLOG_LLM_API_KEY") == "" {
		if found, ok := DiscoverConfig(); ok {
			found.MaxTokens, found.Timeout = cfg.MaxTokens, cfg.Timeout
			if m := os.Getenv("STUDYLOG_LLM_MODEL"); m != "" {
				found.Model = m
			}
			cfg = found
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillModel() {
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
}

func (c Config) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("no API key for the %s provider: set STUDYLOG_LLM_API_KEY", c.Provider)
	}
	if c.MaxTokens < 256 {
		return fmt.Errorf("max tokens %d is too small for a score card", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
