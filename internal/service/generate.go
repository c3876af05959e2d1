package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

const finalizeTimeout = 10 * time.Second

// generation is the outcome of one assistant turn.
type generation struct {
	parts      []model.Part
	model      string
	tokensIn   int
	tokensOut  int
	stopReason string
}

// respond creates the streaming assistant message answering prompt, runs the
// model and finalizes the message. Generation is detached from the caller's
// cancellation and bounded by the generation timeout. Failures finalize the
// message as failed and are returned tagged with tag.
func (s *ThreadService) respond(ctx context.Context, thread *model.Thread, user *model.User, prompt *model.Message, tag apperr.Tag) (string, error) {
	history, err := s.store.RecentMessages(ctx, thread.ID, s.cfg.HistoryLimit)
	if err != nil {
		return "", apperr.Wrap(tag, "failed to load thread history", err)
	}
	history = upTo(history, prompt)

	assistant := &model.Message{
		ThreadID: thread.ID,
		UserID:   user.ID,
		Role:     model.RoleAssistant,
		Status:   model.MessageStreaming,
	}
	if err := s.store.SaveMessage(ctx, assistant); err != nil {
		return "", apperr.Wrap(tag, "failed to create assistant message", err)
	}

	detached := context.WithoutCancel(ctx)
	genCtx, cancel := context.WithTimeout(detached, s.cfg.GenerationTimeout)
	defer cancel()

	log := s.logger.With(zap.String("thread_id", thread.ID), zap.String("message_id", assistant.ID))
	writer := newDeltaWriter(s.store, s.publisher, log, assistant, s.cfg.StreamThrottle, s.now)

	start := time.Now()
	gen, genErr := s.generate(genCtx, history, writer)
	if genErr == nil {
		genErr = writer.Close(genCtx)
	} else if err := writer.Close(genCtx); err != nil {
		log.Warn("failed to flush partial response", zap.Error(err))
	}
	elapsed := time.Since(start)

	finalCtx, cancelFinal := context.WithTimeout(detached, finalizeTimeout)
	defer cancelFinal()

	completion := &model.MessageCompletion{
		Content:    writer.Persisted(),
		Parts:      gen.parts,
		Model:      gen.model,
		TokensIn:   gen.tokensIn,
		TokensOut:  gen.tokensOut,
		LatencyMs:  elapsed.Milliseconds(),
		StopReason: gen.stopReason,
	}

	if genErr != nil {
		reason := genErr.Error()
		completion.Status = model.MessageFailed
		completion.Error = &reason
		if err := s.store.FinalizeMessage(finalCtx, assistant.ID, completion); err != nil {
			log.Error("failed to finalize failed message", zap.Error(err))
		}
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant), string(model.MessageFailed)).Inc()
		metrics.RecordLLMStream(s.modelLabel(gen), "error", elapsed.Seconds(), gen.tokensIn, gen.tokensOut)
		log.Error("generation failed", zap.Duration("elapsed", elapsed), zap.Error(genErr))
		return "", apperr.Wrap(tag, "failed to generate response", genErr)
	}

	completion.Status = model.MessageSuccess
	if err := s.store.FinalizeMessage(finalCtx, assistant.ID, completion); err != nil {
		return "", apperr.Wrap(apperr.SendAiMessageFailed, "failed to finalize response", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant), string(model.MessageSuccess)).Inc()
	metrics.RecordLLMStream(s.modelLabel(gen), "success", elapsed.Seconds(), gen.tokensIn, gen.tokensOut)
	log.Info("generation finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens_out", gen.tokensOut),
		zap.Int("bytes", len(completion.Content)),
	)
	return completion.Content, nil
}

// generate streams the model's answer into writer. Each step may request tool
// calls; their results are fed back until the model answers in text or the step
// budget is spent. The last step is offered no tools.
func (s *ThreadService) generate(ctx context.Context, history []model.Message, writer *deltaWriter) (*generation, error) {
	ctx, span := tracer.Start(ctx, "ThreadService.generate")
	defer span.End()

	gen := &generation{}
	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: s.cfg.SystemPrompt})
	for _, m := range history {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	for step := 1; step <= s.cfg.MaxSteps; step++ {
		gen.parts = append(gen.parts, model.Part{Type: model.PartStepStart})

		req := &llm.CompletionRequest{
			Model:       s.cfg.Model,
			Messages:    messages,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
			Stream:      true,
		}
		if s.tools != nil && step < s.cfg.MaxSteps {
			req.Tools = s.tools.Definitions()
		}

		var stepText []byte
		resp, err := s.llm.CompleteStream(ctx, req, func(token string, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(stepText) == 0 && token != "" && writer.Content() != "" {
				if err := writer.Write(ctx, "\n\n"); err != nil {
					return err
				}
			}
			stepText = append(stepText, token...)
			return writer.Write(ctx, token)
		})
		if err != nil {
			return gen, err
		}

		gen.model = resp.Model
		gen.tokensIn += resp.TokensIn
		gen.tokensOut += resp.TokensOut
		gen.stopReason = resp.StopReason
		if len(stepText) > 0 {
			gen.parts = append(gen.parts, model.Part{Type: model.PartText, Text: string(stepText)})
		}

		if len(resp.ToolCalls) == 0 || req.Tools == nil {
			span.SetAttributes(attribute.Int("steps", step))
			return gen, nil
		}

		messages = append(messages, llm.ChatMessage{
			Role:      string(model.RoleAssistant),
			Content:   string(stepText),
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			out := s.runTool(ctx, span, call)
			gen.parts = append(gen.parts, model.Part{
				Type:       model.PartToolInvocation,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Args:       call.Arguments,
				Result:     out,
			})
			messages = append(messages, llm.ChatMessage{
				Role:       string(model.RoleTool),
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}
	return gen, nil
}

func (s *ThreadService) runTool(ctx context.Context, span trace.Span, call llm.ToolCall) string {
	out, ok := s.tools.Execute(ctx, call)
	status := "success"
	if !ok {
		status = "failure"
		s.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.String("result", out))
	}
	metrics.ToolCallsTotal.WithLabelValues(call.Name, status).Inc()
	span.AddEvent("tool_call", trace.WithAttributes(
		attribute.String("tool", call.Name),
		attribute.String("status", status),
	))
	return out
}

func (s *ThreadService) modelLabel(gen *generation) string {
	if gen.model != "" {
		return gen.model
	}
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return s.llm.Name()
}

// upTo drops history after prompt so a saved prompt is answered in the context
// it was asked in.
func upTo(history []model.Message, prompt *model.Message) []model.Message {
	for i, m := range history {
		if m.ID == prompt.ID {
			return history[:i+1]
		}
	}
	return append(history, *prompt)
}
