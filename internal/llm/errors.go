package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoImages is returned when a card is requested without screenshots.
var ErrNoImages = errors.New("no score-card images")

// RateLimitError is a 429 from the provider.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// UnavailableError means the card was never read: the provider is down,
// unreachable or rejected the request.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return e.Provider + " unavailable"
	}
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// UnreadableError means the model answered with something that is not a
// score card. Raw keeps the answer so callers can try to salvage it.
type UnreadableError struct {
	Raw json.RawMessage
	Err error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("score card unreadable: %v", e.Err)
}

func (e *UnreadableError) Unwrap() error { return e.Err }

// TruncatedError means the card ran past MaxTokens. Raw is the partial card.
type TruncatedError struct {
	Raw       json.RawMessage
	MaxTokens int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("score card cut off at %d tokens", e.MaxTokens)
}
