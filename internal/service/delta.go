package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

type deltaAppender interface {
	AppendDelta(ctx context.Context, d *model.StreamDelta) error
}

// deltaWriter accumulates streamed text and persists it as deltas. Text is cut at
// the last word boundary at most once per throttle interval; Close writes the rest.
// Text whose delta failed to store stays pending.
// Writes are sequential, so delta N is stored before delta N+1 is produced.
type deltaWriter struct {
	store     deltaAppender
	publisher DeltaPublisher
	log       *logger.Logger

	threadID  string
	messageID string
	throttle  time.Duration
	now       func() time.Time

	content   strings.Builder
	pending   string
	offset    int
	seq       int
	lastFlush time.Time
}

func newDeltaWriter(store deltaAppender, publisher DeltaPublisher, log *logger.Logger, msg *model.Message, throttle time.Duration, now func() time.Time) *deltaWriter {
	return &deltaWriter{
		store:     store,
		publisher: publisher,
		log:       log,
		threadID:  msg.ThreadID,
		messageID: msg.ID,
		throttle:  throttle,
		now:       now,
		lastFlush: now(),
	}
}

// Write appends text and flushes complete words when the throttle allows.
func (w *deltaWriter) Write(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	w.content.WriteString(text)
	w.pending += text

	if w.now().Sub(w.lastFlush) < w.throttle {
		return nil
	}
	cut := strings.LastIndexAny(w.pending, " \t\n")
	if cut < 0 {
		return nil
	}
	if err := w.persist(ctx, w.pending[:cut+1]); err != nil {
		return err
	}
	w.pending = w.pending[cut+1:]
	return nil
}

// Close flushes everything still pending.
func (w *deltaWriter) Close(ctx context.Context) error {
	if w.pending == "" {
		return nil
	}
	if err := w.persist(ctx, w.pending); err != nil {
		return err
	}
	w.pending = ""
	return nil
}

// Content is all text written so far.
func (w *deltaWriter) Content() string {
	return w.content.String()
}

// Persisted is the text covered by stored deltas. It equals Content once Close
// succeeds.
func (w *deltaWriter) Persisted() string {
	return w.content.String()[:w.offset]
}

func (w *deltaWriter) persist(ctx context.Context, chunk string) error {
	d := &model.StreamDelta{
		MessageID: w.messageID,
		ThreadID:  w.threadID,
		Seq:       w.seq,
		Start:     w.offset,
		End:       w.offset + len(chunk),
		Text:      chunk,
	}
	if err := w.store.AppendDelta(ctx, d); err != nil {
		return err
	}
	w.seq++
	w.offset = d.End
	w.lastFlush = w.now()

	if w.publisher != nil {
		if err := w.publisher.PublishDelta(ctx, d); err != nil {
			w.log.Warn("failed to publish delta",
				zap.String("thread_id", w.threadID),
				zap.String("message_id", w.messageID),
				zap.Int("seq", d.Seq),
				zap.Error(err),
			)
		}
	}
	return nil
}
