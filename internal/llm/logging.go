package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abhisek/studylog/internal/logger"
)

// LoggingReader logs every card read with its latency, token usage and
// estimated cost. The card JSON itself is logged at debug level.
type LoggingReader struct {
	inner Reader
	log   *logger.Logger
}

func WithLogging(r Reader, log *logger.Logger) Reader {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingReader{inner: r, log: log.With("component", "llm")}
}

func (l *LoggingReader) ReadCard(ctx context.Context, req Request) (*Reply, error) {
	start := time.Now()
	reply, err := l.inner.ReadCard(ctx, req)

	kv := []any{
		"model", l.inner.ModelID(),
		"latency_ms", time.Since(start).Milliseconds(),
		"images", len(req.Images),
		"image_bytes", req.imageBytes(),
		"max_tokens", req.MaxTokens,
	}
	if files := sourcesFrom(ctx); len(files) > 0 {
		kv = append(kv, "files", files)
	}
	if err != nil {
		l.log.Warn("score card read failed", append(kv, "error", err)...)
		return nil, err
	}

	kv = append(kv,
		"resolved_model", reply.Model,
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens,
	)
	if c := LookupCost(reply.Model); c != nil {
		kv = append(kv, "cost_usd", c.Cost(reply.Usage))
	}
	var card Card
	if json.Unmarshal(reply.Card, &card) == nil {
		kv = append(kv, "test", card.TestName, "subjects", len(card.SubjectScores))
	}
	l.log.Info("score card read", kv...)
	l.log.Debug("score card reply", "card", string(reply.Card))
	return reply, nil
}

func (l *LoggingReader) ModelID() string {
	return l.inner.ModelID()
}
