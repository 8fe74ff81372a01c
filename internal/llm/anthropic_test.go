package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicReader(t *testing.T, handler http.HandlerFunc) *AnthropicReader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicReader{client: &client, model: "claude-haiku-4-5-20251001"}
}

func anthropicReply(text, stop string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": stop,
			"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
		})
	}
}

func anthropicError(status int, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": kind, "message": kind},
		})
	}
}

var card = Image{MIMEType: "image/png", Data: []byte("png")}

func TestAnthropicReader_ReadsCard(t *testing.T) {
	p := newTestAnthropicReader(t, anthropicReply(`{"testName":"GT 1","totalMarks":800}`, "end_turn"))

	reply, err := p.ReadCard(context.Background(), Request{Images: []Image{card}, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, 50, reply.Usage.InputTokens)
	assert.Equal(t, 80, reply.Usage.Total())
	assert.Equal(t, "claude-haiku-4-5-20251001", reply.Model)
	assert.JSONEq(t, `{"testName":"GT 1","totalMarks":800}`, string(reply.Card))
}

func TestAnthropicReader_SendsImagesBeforePrompt(t *testing.T) {
	var body map[string]any
	p := newTestAnthropicReader(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		anthropicReply(`{}`, "end_turn")(w, r)
	})

	_, err := p.ReadCard(context.Background(), Request{
		Images:    []Image{card, card},
		Subjects:  []string{"Anatomy", "OBG"},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	system := body["system"].([]any)
	assert.Contains(t, system[0].(map[string]any)["text"], "Never guess numbers")

	msgs := body["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 3)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	source := content[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "cG5n", source["data"])
	assert.Equal(t, "image", content[1].(map[string]any)["type"])
	assert.Equal(t, "text", content[2].(map[string]any)["type"])
	assert.Contains(t, content[2].(map[string]any)["text"], "Anatomy, OBG")
}

func TestAnthropicReader_NoImages(t *testing.T) {
	p := newTestAnthropicReader(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without images")
	})
	_, err := p.ReadCard(context.Background(), Request{MaxTokens: 64})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestAnthropicReader_Truncated(t *testing.T) {
	p := newTestAnthropicReader(t, anthropicReply(`{"testName":"GT`, "max_tokens"))

	_, err := p.ReadCard(context.Background(), Request{Images: []Image{card}, MaxTokens: 8})
	var cut *TruncatedError
	require.ErrorAs(t, err, &cut)
	assert.Equal(t, 8, cut.MaxTokens)
	assert.Equal(t, `{"testName":"GT`, string(cut.Raw))
}

func TestAnthropicReader_NotACard(t *testing.T) {
	p := newTestAnthropicReader(t, anthropicReply(`{"testType":"Weekly"}`, "end_turn"))

	_, err := p.ReadCard(context.Background(), Request{Images: []Image{card}, MaxTokens: 64})
	var bad *UnreadableError
	require.ErrorAs(t, err, &bad)
	assert.JSONEq(t, `{"testType":"Weekly"}`, string(bad.Raw))
}

func TestAnthropicReader_Errors(t *testing.T) {
	p := newTestAnthropicReader(t, anthropicError(http.StatusTooManyRequests, "rate_limit_error"))
	_, err := p.ReadCard(context.Background(), Request{Images: []Image{card}, MaxTokens: 8})
	var rl *RateLimitError
	assert.ErrorAs(t, err, &rl)

	p = newTestAnthropicReader(t, anthropicError(http.StatusInternalServerError, "api_error"))
	_, err = p.ReadCard(context.Background(), Request{Images: []Image{card}, MaxTokens: 8})
	var down *UnavailableError
	require.ErrorAs(t, err, &down)
	assert.Equal(t, "anthropic", down.Provider)
}

func TestAnthropicModelMapping(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5-20250929", resolveModel("claude-sonnet", anthropicModels))
	assert.Equal(t, "claude-haiku-4-5-20251001", resolveModel("claude-haiku", anthropicModels))
	assert.Equal(t, "claude-opus-4-1", resolveModel("claude-opus-4-1", anthropicModels))
}
