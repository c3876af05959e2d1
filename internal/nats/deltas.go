package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// DeltaBus fans out stream deltas to live subscribers over core NATS. Nothing
// is retained; clients that miss a delta read it back from the store.
type DeltaBus struct {
	client *Client
	logger *logger.Logger
}

// NewDeltaBus creates a delta bus.
func NewDeltaBus(client *Client, log *logger.Logger) *DeltaBus {
	return &DeltaBus{client: client, logger: log}
}

// DeltaSubject returns the subject carrying a thread's deltas.
func DeltaSubject(threadID string) string {
	return fmt.Sprintf("threads.%s.deltas", threadID)
}

// PublishDelta publishes d on its thread's subject.
func (b *DeltaBus) PublishDelta(_ context.Context, d *model.StreamDelta) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}
	if err := b.client.Conn().Publish(DeltaSubject(d.ThreadID), data); err != nil {
		return fmt.Errorf("failed to publish delta: %w", err)
	}
	return nil
}

// Subscribe calls fn for every delta of threadID until the returned function
// is called.
func (b *DeltaBus) Subscribe(threadID string, fn func(model.StreamDelta)) (func(), error) {
	sub, err := b.client.Conn().Subscribe(DeltaSubject(threadID), func(msg *nats.Msg) {
		var d model.StreamDelta
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			b.logger.Warn("dropping malformed delta", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(d)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", zap.Error(err))
		}
	}, nil
}
