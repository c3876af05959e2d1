package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/middleware"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

// DeltaSubscriber delivers live deltas of a thread.
type DeltaSubscriber interface {
	Subscribe(threadID string, fn func(model.StreamDelta)) (func(), error)
}

// StreamHandler pushes stream deltas to browsers over SSE.
type StreamHandler struct {
	threads   ThreadService
	deltas    DeltaSubscriber
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(threads ThreadService, deltas DeltaSubscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{threads: threads, deltas: deltas, logger: log, heartbeat: 30 * time.Second}
}

// Stream handles GET /api/v1/threads/{id}/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.threads.GetMessages)
}

// StreamAnonymous handles GET /api/v1/anonymous/threads/{id}/stream
func (h *StreamHandler) StreamAnonymous(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.threads.GetAnonymousMessages)
}

// stream replays the stored deltas of every message still streaming, then
// forwards live deltas. A delta is sent at most once per (stream, seq).
func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request, messages messagesFunc) {
	ctx := r.Context()
	creds := middleware.Credentials(ctx)
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	log := h.logger.FromContext(ctx).With(zap.String("thread_id", threadID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	// Subscribe before listing so a stream that starts in between is replayed.
	live := make(chan model.StreamDelta, 256)
	unsubscribe, err := h.deltas.Subscribe(threadID, func(d model.StreamDelta) {
		select {
		case live <- d:
		default:
			log.Warn("dropping live delta for slow client", zap.String("stream_id", d.MessageID), zap.Int("seq", d.Seq))
		}
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer unsubscribe()

	// Ownership check and the list of live streams in one query.
	listing, err := messages(ctx, creds, threadID, model.PaginationOpts{NumItems: 1}, model.StreamArgs{Kind: model.StreamKindList})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{"threadId": threadID})

	next := make(map[string]int)
	send := func(d model.StreamDelta) {
		if d.Seq < next[d.MessageID] {
			return
		}
		next[d.MessageID] = d.Seq + 1
		sendSSEEvent(w, flusher, "delta", d)
	}

	if listing.Streams != nil && len(listing.Streams.Messages) > 0 {
		cursors := make([]model.StreamCursor, 0, len(listing.Streams.Messages))
		for _, m := range listing.Streams.Messages {
			cursors = append(cursors, model.StreamCursor{StreamID: m.StreamID})
		}
		replay, err := messages(ctx, creds, threadID, model.PaginationOpts{NumItems: 1}, model.StreamArgs{Kind: model.StreamKindDeltas, Cursors: cursors})
		if err != nil {
			log.Error("failed to replay deltas", zap.Error(err))
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{Code: "replay_error", Message: "failed to replay deltas"})
		} else if replay.Streams != nil {
			for _, d := range replay.Streams.Deltas {
				send(d)
			}
		}
	}
	sendSSEEvent(w, flusher, "replay_complete", map[string]int{"streams": len(next)})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		case d := <-live:
			send(d)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{Timestamp: time.Now().UTC()})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
