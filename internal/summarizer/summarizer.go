// Package summarizer turns a first prompt into a short thread title.
package summarizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

const (
	maxTitleWords = 15
	temperature   = 0.3

	instructions = "Summarize the user's message as a title for the conversation it starts. " +
		"Use at most 15 words. Reply with the title only, without quotes or trailing punctuation."
)

// Completer is the non-streaming part of llm.Client.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Summarizer produces thread titles.
type Summarizer struct {
	completer Completer
	model     string
}

// New creates a summarizer. Wrap completer with NewCachedCompleter to cache titles.
func New(completer Completer, model string) *Summarizer {
	return &Summarizer{completer: completer, model: model}
}

// Summarize returns a title of at most 15 words for prompt.
func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperr.New(apperr.SummaryGenerationFailed, "prompt is empty")
	}

	resp, err := s.completer.Complete(ctx, &llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   64,
		Temperature: temperature,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.SummaryGenerationFailed, "failed to summarize prompt", err)
	}

	title := cleanTitle(resp.Content)
	if title == "" {
		return "", apperr.New(apperr.SummaryGenerationFailed, "model returned an empty title")
	}
	return title, nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`“”‘’ \t")
	s = strings.TrimRight(s, ".!")

	words := strings.Fields(s)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}

// Cache stores completions by key without expiry.
type Cache interface {
	GetCached(ctx context.Context, key string) (string, bool, error)
	SetCached(ctx context.Context, key, value string) error
}

// CachedCompleter returns stored completions for requests it has seen before.
type CachedCompleter struct {
	next  Completer
	cache Cache
	log   *logger.Logger
}

// NewCachedCompleter wraps next with cache.
func NewCachedCompleter(next Completer, cache Cache, log *logger.Logger) *CachedCompleter {
	return &CachedCompleter{next: next, cache: cache, log: log}
}

// Complete implements Completer. Cache failures are logged and fall through to next.
func (c *CachedCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	key, err := CacheKey(req)
	if err != nil {
		c.log.Warn("failed to compute cache key", zap.Error(err))
		return c.next.Complete(ctx, req)
	}

	value, ok, err := c.cache.GetCached(ctx, key)
	if err != nil {
		c.log.Warn("failed to read completion cache", zap.String("key", key), zap.Error(err))
	}
	if ok {
		metrics.TitleCacheLookups.WithLabelValues("hit").Inc()
		return &llm.CompletionResponse{Content: value, Model: req.Model, StopReason: "cached"}, nil
	}
	metrics.TitleCacheLookups.WithLabelValues("miss").Inc()

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetCached(ctx, key, resp.Content); err != nil {
		c.log.Warn("failed to write completion cache", zap.String("key", key), zap.Error(err))
	}
	return resp, nil
}

// CacheKey is the hex sha256 of the JSON encoded request.
func CacheKey(req *llm.CompletionRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
