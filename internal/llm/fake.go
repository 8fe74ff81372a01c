package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Scripted is one canned answer. Card wins over Raw; Err wins over both.
type Scripted struct {
	Card  *Card
	Raw   string
	Usage Usage
	Err   error
}

// ScriptedReader replays canned answers in order and records every request.
// Card answers are checked against the card schema like a real provider's.
type ScriptedReader struct {
	mu       sync.Mutex
	script   []Scripted
	Requests []Request
}

func NewScriptedReader(script ...Scripted) *ScriptedReader {
	return &ScriptedReader{script: script}
}

func (s *ScriptedReader) ReadCard(_ context.Context, req Request) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}
	if len(s.script) == 0 {
		return nil, &UnavailableError{Provider: "scripted", Err: errors.New("script exhausted")}
	}
	next := s.script[0]
	s.script = s.script[1:]
	if next.Err != nil {
		return nil, next.Err
	}

	raw := json.RawMessage(next.Raw)
	if next.Card != nil {
		b, err := json.Marshal(next.Card)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return finish(req, raw, false, next.Usage, "scripted")
}

func (s *ScriptedReader) ModelID() string { return "scripted" }

// Calls returns the number of ReadCard calls made.
func (s *ScriptedReader) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
