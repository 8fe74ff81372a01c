// Package extract reads test results out of score-card screenshots with an
// LLM and turns them into test scores.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/abhisek/studylog/internal/llm"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/study"
)

type Extractor struct {
	reader    llm.Reader
	log       *logger.Logger
	maxTokens int
	subjects  []string
}

type Option func(*Extractor)

func WithLogger(l *logger.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// WithSubjects offers the tracker's subject names to the model.
func WithSubjects(subjects []study.Subject) Option {
	return func(e *Extractor) {
		e.subjects = e.subjects[:0]
		for _, s := range subjects {
			e.subjects = append(e.subjects, s.Name)
		}
	}
}

func New(r llm.Reader, opts ...Option) *Extractor {
	e := &Extractor{reader: r, log: logger.Nop(), maxTokens: 2048}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads all images as one score card. A card that fails the schema
// check is salvaged when a JSON object can still be recovered from it.
func (e *Extractor) Extract(ctx context.Context, images []llm.Image) (*llm.Card, error) {
	reply, err := e.reader.ReadCard(ctx, llm.Request{
		Images:    images,
		Subjects:  e.subjects,
		MaxTokens: e.maxTokens,
	})

	var raw json.RawMessage
	var unreadable *llm.UnreadableError
	switch {
	case err == nil:
		raw = reply.Card
	case errors.As(err, &unreadable) && len(unreadable.Raw) > 0:
		e.log.Warn("salvaging unreadable score card", "error", err, "preview", safejson.Preview(string(unreadable.Raw)))
		raw = unreadable.Raw
	default:
		return nil, fmt.Errorf("analyze images: %w", err)
	}

	out, err := safejson.DecodeRepaired[llm.Card](string(raw))
	if err != nil {
		return nil, fmt.Errorf("could not extract structured data from images: %w", err)
	}
	e.log.Info("extracted test result", "test", out.TestName, "subjects", len(out.SubjectScores))
	return &out, nil
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// LoadImage reads an image file and sniffs its MIME type.
func LoadImage(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, err
	}
	mime := http.DetectContentType(data)
	if !imageTypes[mime] {
		return llm.Image{}, fmt.Errorf("%s: unsupported image type %s", filepath.Base(path), strings.TrimSpace(mime))
	}
	return llm.Image{MIMEType: mime, Data: data}, nil
}
