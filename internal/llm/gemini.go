package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

type GeminiReader struct {
	client *genai.Client
	model  string
}

func NewGeminiReader(ctx context.Context, cfg Config) (*GeminiReader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiReader{client: client, model: resolveModel(cfg.Model, geminiModels)}, nil
}

// ReadCard sends the screenshots as inline blobs in one user turn.
func (p *GeminiReader) ReadCard(ctx context.Context, req Request) (*Reply, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   int32(req.MaxTokens),
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: cardInstructions}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiCardSchema(),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, geminiCardContents(req), config)
	if err != nil {
		return nil, geminiError(err)
	}

	truncated := len(result.Candidates) > 0 && result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens
	var usage Usage
	if m := result.UsageMetadata; m != nil {
		usage = Usage{InputTokens: int(m.PromptTokenCount), OutputTokens: int(m.CandidatesTokenCount)}
	}
	return finish(req, []byte(result.Text()), truncated, usage, p.model)
}

func (p *GeminiReader) ModelID() string {
	return p.model
}

func geminiCardContents(req Request) []*genai.Content {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}
	parts = append(parts, &genai.Part{Text: req.prompt()})
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// geminiCardSchema mirrors cardSchema in Gemini's schema type. Bounds are
// left to checkCard.
func geminiCardSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	num := &genai.Schema{Type: genai.TypeNumber}
	count := &genai.Schema{Type: genai.TypeInteger}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"testName":      str,
			"testType":      {Type: genai.TypeString, Enum: CardTestTypes},
			"totalMarks":    num,
			"obtainedMarks": num,
			"subjectScores": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"subjectName":    str,
						"correctAnswers": count,
						"totalQuestions": count,
						"percentage":     num,
					},
					Required: []string{"subjectName"},
				},
			},
		},
	}
}

func geminiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &RateLimitError{Err: err}
	}
	return &UnavailableError{Provider: "gemini", Err: err}
}
