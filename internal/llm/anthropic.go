package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient is the Anthropic LLM client. Tool definitions are not forwarded;
// tool turns already in the history are folded into plain text.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-haiku-20240307",
	}
}

func anthropicModel(req *CompletionRequest) string {
	if req.Model == "" {
		return defaultAnthropicModel
	}
	return req.Model
}

func (c *AnthropicClient) buildParams(req *CompletionRequest) anthropic.MessageNewParams {
	model := anthropicModel(req)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return anthropic.MessageNewParams{
		Model:       anthropic.F(model),
		MaxTokens:   anthropic.F(int64(maxTokens)),
		Temperature: anthropic.F(req.Temperature),
		Messages:    anthropic.F(toAnthropicMessages(req.Messages)),
	}
}

// toAnthropicMessages folds system prompts into the first user turn and merges
// consecutive turns of the same role, which the Messages API rejects.
func toAnthropicMessages(in []ChatMessage) []anthropic.MessageParam {
	var system []string
	type turn struct {
		role string
		text []string
	}
	var turns []turn

	for _, msg := range in {
		role, text := msg.Role, msg.Content
		switch role {
		case "system":
			system = append(system, text)
			continue
		case "tool":
			role, text = "user", "Tool result: "+text
		case "assistant":
			for _, tc := range msg.ToolCalls {
				text += "\n[called " + tc.Name + " with " + tc.Arguments + "]"
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text = append(turns[n-1].text, text)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{text}})
	}

	if len(system) > 0 {
		prefix := strings.Join(system, "\n\n")
		if len(turns) > 0 && turns[0].role == "user" {
			turns[0].text = append([]string{prefix}, turns[0].text...)
		} else {
			turns = append([]turn{{role: "user", text: []string{prefix}}}, turns...)
		}
	}

	messages := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(t.role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(strings.Join(t.text, "\n\n")),
				},
			}),
		}
	}
	return messages
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteStream sends a streaming completion request.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))

	var content strings.Builder
	var tokensOut int
	var stopReason string
	index := 0

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if event.Delta.Type == "text_delta" {
				token := event.Delta.Text
				content.WriteString(token)
				if err := callback(token, index); err != nil {
					return nil, err
				}
				index++
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			stopReason = string(event.Delta.StopReason)
			tokensOut = int(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:    content.String(),
		Model:      anthropicModel(req),
		TokensIn:   estimateTokens(req.Messages),
		TokensOut:  tokensOut,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
