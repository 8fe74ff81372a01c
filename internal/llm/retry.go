package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryReader retries transient failures with exponential backoff. An
// unreadable card is retried once. A truncated card is retried once with
// twice the token budget, without waiting.
type RetryReader struct {
	inner  Reader
	config RetryConfig
}

func WithRetry(r Reader, cfg RetryConfig) Reader {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryReader{inner: r, config: cfg}
}

func (r *RetryReader) ReadCard(ctx context.Context, req Request) (*Reply, error) {
	var lastErr error
	unreadable, truncated := false, false

	for attempt := range r.config.MaxAttempts {
		reply, err := r.inner.ReadCard(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		var (
			cut *TruncatedError
			bad *UnreadableError
		)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrNoImages):
			return nil, err
		case errors.As(err, &cut):
			if truncated {
				return nil, err
			}
			truncated = true
			req.MaxTokens *= 2
			continue
		case errors.As(err, &bad):
			if unreadable {
				return nil, err
			}
			unreadable = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(attempt, err)):
		}
	}

	return nil, lastErr
}

func (r *RetryReader) ModelID() string {
	return r.inner.ModelID()
}

func (r *RetryReader) backoff(attempt int, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	wait = math.Min(wait, float64(r.config.MaxWait))

	// ±20% jitter
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(math.Max(wait, 0))
}
