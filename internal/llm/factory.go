package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/studylog/internal/logger"
)

// NewReader builds the configured reader wrapped as
// caller → retry → logging → provider.
func NewReader(ctx context.Context, cfg Config, log *logger.Logger) (Reader, error) {
	var base Reader
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicReader(cfg)
	case "openai":
		base, err = NewOpenAIReader(cfg)
	case "gemini":
		base, err = NewGeminiReader(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s reader: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base, log), cfg.Retry), nil
}
