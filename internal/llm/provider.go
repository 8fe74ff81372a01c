package llm

import (
	"context"
	"encoding/json"
)

// Reader reads one test result out of score-card screenshots.
type Reader interface {
	// ReadCard returns the model's card JSON, already checked against the
	// card schema.
	ReadCard(ctx context.Context, req Request) (*Reply, error)

	ModelID() string
}

type Request struct {
	// Images are sent in order, before the prompt.
	Images []Image

	// Subjects are the tracker's subject names, offered to the model.
	Subjects []string

	MaxTokens int
}

// Image is inline binary image data, such as a screenshot of a test result.
type Image struct {
	// MIMEType is image/png, image/jpeg, image/webp or image/gif.
	MIMEType string
	Data     []byte
}

type Reply struct {
	Card  json.RawMessage
	Usage Usage
	// Model is the model that actually served the request.
	Model string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

func (r Request) imageBytes() int {
	n := 0
	for _, img := range r.Images {
		n += len(img.Data)
	}
	return n
}
