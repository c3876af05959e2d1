package llm

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient is the OpenAI LLM client. It supports tool calls and embeddings.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}, nil
}

// NewOpenAIClientWithConfig creates a client against a custom endpoint.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

func (c *OpenAIClient) buildRequest(req *CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages[i] = m
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		out.StopReason = string(choice.FinishReason)
		for _, tc := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
	}
	return out, nil
}

// CompleteStream sends a streaming completion request. Text tokens go to callback;
// tool call fragments are assembled and returned on the response.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	chatReq := c.buildRequest(req)
	chatReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	var stopReason string
	calls := map[int]*ToolCall{}
	index := 0

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			content.WriteString(delta)
			if err := callback(delta, index); err != nil {
				return nil, err
			}
			index++
		}

		for i, tc := range choice.Delta.ToolCalls {
			pos := i
			if tc.Index != nil {
				pos = *tc.Index
			}
			call, ok := calls[pos]
			if !ok {
				call = &ToolCall{}
				calls[pos] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
	}

	positions := make([]int, 0, len(calls))
	for pos := range calls {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	var toolCalls []ToolCall
	for _, pos := range positions {
		toolCalls = append(toolCalls, *calls[pos])
	}

	// Streaming responses carry no usage; estimate from length.
	text := content.String()
	return &CompletionResponse{
		Content:    text,
		Model:      chatReq.Model,
		TokensIn:   estimateTokens(req.Messages),
		TokensOut:  len(text) / 4,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
		ToolCalls:  toolCalls,
	}, nil
}

// Embed returns one embedding per input text.
func (c *OpenAIClient) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func estimateTokens(msgs []ChatMessage) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content) / 4
	}
	return n
}
