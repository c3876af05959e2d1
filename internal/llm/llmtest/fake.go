// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/capitalize-ai/persona-chat/internal/llm"
)

// Turn is one scripted model response.
type Turn struct {
	Tokens    []string
	ToolCalls []llm.ToolCall
	Err       error
	// FailAfter stops the stream with Err after this many tokens when Err is set.
	FailAfter int
}

// Client replays scripted turns in order. When the script runs out it echoes
// "ok" so tests that do not care about content keep working.
type Client struct {
	mu       sync.Mutex
	turns    []Turn
	Requests []llm.CompletionRequest
}

// New creates a fake client with the given script.
func New(turns ...Turn) *Client {
	return &Client{turns: turns}
}

// Push appends turns to the script.
func (c *Client) Push(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

// Calls returns how many requests were made.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

func (c *Client) next(req *llm.CompletionRequest) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *req
	cp.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	c.Requests = append(c.Requests, cp)
	if len(c.turns) == 0 {
		return Turn{Tokens: []string{"ok"}}
	}
	t := c.turns[0]
	c.turns = c.turns[1:]
	return t
}

// Complete returns the next scripted turn as a whole.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	t := c.next(req)
	if t.Err != nil {
		return nil, t.Err
	}
	return &llm.CompletionResponse{
		Content:   strings.Join(t.Tokens, ""),
		Model:     "fake",
		ToolCalls: t.ToolCalls,
	}, nil
}

// CompleteStream replays the next scripted turn token by token.
func (c *Client) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	t := c.next(req)
	if t.Err != nil && t.FailAfter == 0 {
		return nil, t.Err
	}
	var sb strings.Builder
	for i, tok := range t.Tokens {
		if t.Err != nil && i == t.FailAfter {
			return nil, t.Err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sb.WriteString(tok)
		if err := callback(tok, i); err != nil {
			return nil, err
		}
	}
	if t.Err != nil {
		return nil, t.Err
	}
	return &llm.CompletionResponse{
		Content:    sb.String(),
		Model:      "fake",
		TokensOut:  len(t.Tokens),
		StopReason: "stop",
		ToolCalls:  t.ToolCalls,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "fake" }

// Models returns available models.
func (c *Client) Models() []string { return []string{"fake"} }

// ErrProvider is a convenient provider failure for scripts.
var ErrProvider = errors.New("provider unavailable")
