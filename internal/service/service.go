// Package service implements the persona chat operations: thread creation and
// continuation, queries, anonymous user migration, user sync and background jobs.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/model"
)

var tracer = otel.Tracer("github.com/capitalize-ai/persona-chat/internal/service")

// ThreadStore persists threads, messages and stream deltas.
type ThreadStore interface {
	CreateThread(ctx context.Context, userID, title string) (*model.Thread, error)
	GetThread(ctx context.Context, threadID string) (*model.Thread, error)
	ListThreadsByUser(ctx context.Context, userID string, opts model.PaginationOpts) (*model.Page[model.Thread], error)
	UpdateThreadOwner(ctx context.Context, threadID, userID string) error
	UpdateThread(ctx context.Context, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error

	SaveMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, threadID, messageID string) (*model.Message, error)
	ListMessages(ctx context.Context, threadID string, opts model.PaginationOpts) (*model.Page[model.Message], error)
	RecentMessages(ctx context.Context, threadID string, n int) ([]model.Message, error)

	AppendDelta(ctx context.Context, d *model.StreamDelta) error
	FinalizeMessage(ctx context.Context, messageID string, c *model.MessageCompletion) error
	ListStreamingMessages(ctx context.Context, threadID string) ([]model.StreamInfo, error)
	ListDeltas(ctx context.Context, threadID string, cursors []model.StreamCursor) ([]model.StreamDelta, error)
}

// IdentityResolver maps call credentials to users.
type IdentityResolver interface {
	Authenticated(ctx context.Context, creds identity.Credentials) (*model.User, error)
	Anonymous(ctx context.Context, creds identity.Credentials) (*model.User, bool, error)
	LookupAnonymous(ctx context.Context, creds identity.Credentials) (*model.User, error)
	RateKey(ctx context.Context, creds identity.Credentials) string
}

// RateLimiter gates operations per caller.
type RateLimiter interface {
	Check(ctx context.Context, operation, key string) error
}

// TitleSummarizer names new threads.
type TitleSummarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Toolbox is the set of tools offered to the model.
type Toolbox interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, call llm.ToolCall) (string, bool)
}

// DeltaPublisher fans persisted deltas out to live subscribers.
type DeltaPublisher interface {
	PublishDelta(ctx context.Context, d *model.StreamDelta) error
}

// Config tunes generation.
type Config struct {
	Model             string
	SystemPrompt      string
	Temperature       float64
	MaxTokens         int
	MaxSteps          int
	HistoryLimit      int
	StreamThrottle    time.Duration
	GenerationTimeout time.Duration
}

// DefaultSystemPrompt is used when no persona prompt is configured.
const DefaultSystemPrompt = "You are the owner of this portfolio website, talking with a visitor. " +
	"Answer in the first person, warmly and concisely. Use the search tools to look up facts " +
	"about your background and career before answering questions about them, and never invent " +
	"details the tools do not return. If a tool fails, say you could not look it up right now."

// DefaultConfig returns the built-in generation settings.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:      DefaultSystemPrompt,
		Temperature:       0.3,
		MaxTokens:         1024,
		MaxSteps:          5,
		HistoryLimit:      20,
		StreamThrottle:    800 * time.Millisecond,
		GenerationTimeout: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.StreamThrottle <= 0 {
		c.StreamThrottle = d.StreamThrottle
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	return c
}
