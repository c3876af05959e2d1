package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
)

// AppendDelta persists one stream delta.
func (s *Store) AppendDelta(ctx context.Context, d *model.StreamDelta) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to append delta: %w", err)
	}
	return nil
}

// FinalizeMessage moves a streaming message to its final state. It fails if the
// message is not streaming, so the transition happens at most once.
func (s *Store) FinalizeMessage(ctx context.Context, messageID string, c *model.MessageCompletion) error {
	updates := map[string]any{
		"status":     c.Status,
		"content":    c.Content,
		"error":      c.Error,
		"updated_at": time.Now().UTC(),
	}
	if c.Parts != nil {
		updates["parts"] = partsValue(c.Parts)
	}
	if c.Model != "" {
		updates["model"] = c.Model
		updates["tokens_in"] = c.TokensIn
		updates["tokens_out"] = c.TokensOut
		updates["latency_ms"] = c.LatencyMs
		updates["stop_reason"] = c.StopReason
	}

	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status = ?", messageID, model.MessageStreaming).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finalize message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.SendAiMessageFailed, "message is not streaming")
	}
	return nil
}

// ListStreamingMessages returns the messages of a thread that are still streaming.
func (s *Store) ListStreamingMessages(ctx context.Context, threadID string) ([]model.StreamInfo, error) {
	var msgs []model.Message
	if err := s.db.WithContext(ctx).
		Select("id", "msg_order").
		Where("thread_id = ? AND status = ?", threadID, model.MessageStreaming).
		Order("msg_order ASC").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list streaming messages: %w", err)
	}
	out := make([]model.StreamInfo, len(msgs))
	for i, m := range msgs {
		out[i] = model.StreamInfo{StreamID: m.ID, Order: m.Order}
	}
	return out, nil
}

// ListDeltas returns, for every cursor, the deltas of that stream with Seq >= cursor.
func (s *Store) ListDeltas(ctx context.Context, threadID string, cursors []model.StreamCursor) ([]model.StreamDelta, error) {
	var out []model.StreamDelta
	for _, c := range cursors {
		var deltas []model.StreamDelta
		if err := s.db.WithContext(ctx).
			Where("thread_id = ? AND message_id = ? AND seq >= ?", threadID, c.StreamID, c.Cursor).
			Order("seq ASC").
			Find(&deltas).Error; err != nil {
			return nil, fmt.Errorf("failed to list deltas: %w", err)
		}
		out = append(out, deltas...)
	}
	return out, nil
}

// partsValue encodes parts the way the json serializer stores them; map updates
// bypass field serializers.
func partsValue(parts []model.Part) string {
	b, err := json.Marshal(parts)
	if err != nil {
		return "[]"
	}
	return string(b)
}
