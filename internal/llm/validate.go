package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var compiledCard = sync.OnceValues(func() (*jsonschema.Schema, error) {
	// The compiler wants a decoded document, not Go maps with typed slices.
	def, err := json.Marshal(cardSchema())
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "schema://" + cardSchemaName + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
})

// checkCard returns *UnreadableError when raw is not a score card.
func checkCard(raw json.RawMessage) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &UnreadableError{Raw: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	schema, err := compiledCard()
	if err != nil {
		return fmt.Errorf("compile card schema: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return &UnreadableError{Raw: raw, Err: err}
	}
	return nil
}

// finish turns a provider's answer into a Reply. A truncated answer is
// reported before it is checked, since it is never valid.
func finish(req Request, raw json.RawMessage, truncated bool, usage Usage, model string) (*Reply, error) {
	if truncated {
		return nil, &TruncatedError{Raw: raw, MaxTokens: req.MaxTokens}
	}
	if err := checkCard(raw); err != nil {
		return nil, err
	}
	return &Reply{Card: raw, Usage: usage, Model: model}, nil
}
