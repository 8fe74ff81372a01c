package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenRouterBaseURL serves the OpenAI chat API for OpenRouter keys.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

var openaiModels = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

// OpenAIReader also reads through OpenAI-compatible APIs set by BaseURL.
type OpenAIReader struct {
	client *openai.Client
	model  string
}

func NewOpenAIReader(cfg Config) (*OpenAIReader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIReader{
		client: openai.NewClientWithConfig(config),
		model:  resolveModel(cfg.Model, openaiModels),
	}, nil
}

// ReadCard sends the screenshots as high-detail data URLs. The card schema
// is open, so json_schema runs without strict mode.
func (p *OpenAIReader) ReadCard(ctx context.Context, req Request) (*Reply, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}

	schema, err := json.Marshal(cardSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal card schema: %w", err)
	}

	// Content and MultiContent are mutually exclusive.
	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img), Detail: openai.ImageURLDetailHigh},
		})
	}
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: req.prompt()})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cardInstructions},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxCompletionTokens: req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   cardSchemaName,
				Schema: json.RawMessage(schema),
			},
		},
	})
	if err != nil {
		return nil, openaiError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UnreadableError{Err: errors.New("reply has no choices")}
	}

	choice := resp.Choices[0]
	usage := Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	return finish(req, []byte(choice.Message.Content), choice.FinishReason == openai.FinishReasonLength, usage, resp.Model)
}

func (p *OpenAIReader) ModelID() string {
	return p.model
}

func dataURL(img Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func openaiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Err: err}
	}
	return &UnavailableError{Provider: "openai", Err: err}
}
