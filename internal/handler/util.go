// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

const maxBodyBytes = 64 * 1024

// errorBody is the wire shape of a tagged error.
type errorBody struct {
	Tag     apperr.Tag     `json:"_tag"`
	Context map[string]any `json:"context"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts err to its tagged wire shape. Untagged errors are logged
// and reported as UnknownError without their details.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var tagged *apperr.Error
	if !errors.As(err, &tagged) {
		tagged = apperr.New(apperr.UnknownError, "internal error")
	}

	status := statusFor(tagged.Tag)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error("request failed",
			zap.String("tag", string(tagged.Tag)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	ctx := map[string]any{"message": tagged.Message}
	for k, v := range tagged.Context {
		ctx[k] = v
	}
	if retryAfter, ok := apperr.RetryAfter(tagged); ok {
		secs := int(retryAfter.Seconds())
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, errorBody{Tag: tagged.Tag, Context: ctx})
}

func statusFor(tag apperr.Tag) int {
	switch tag {
	case apperr.NotAuthenticated, apperr.WebhookSignatureInvalid:
		return http.StatusUnauthorized
	case apperr.UserAlreadyAuthenticated:
		return http.StatusConflict
	case apperr.UserNotFound, apperr.AiThreadNotFound:
		return http.StatusNotFound
	case apperr.RateLimitExceeded:
		return http.StatusTooManyRequests
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.SummaryGenerationFailed, apperr.GenerateAiTextFailed, apperr.ContinueThreadFailed,
		apperr.SendAiMessageFailed, apperr.AiToolFailure, apperr.ResendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, "failed to read request body", err)
	}
	if len(body) > maxBodyBytes {
		return apperr.New(apperr.InvalidArgument, "request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

// paginationOpts reads ?numItems=&cursor=.
func paginationOpts(r *http.Request) (model.PaginationOpts, error) {
	q := r.URL.Query()
	opts := model.PaginationOpts{Cursor: q.Get("cursor")}
	if n := q.Get("numItems"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed < 0 {
			return opts, apperr.New(apperr.InvalidArgument, "numItems must be a non-negative integer")
		}
		opts.NumItems = parsed
	}
	return opts, nil
}

// streamArgs reads ?streamKind=list|deltas&cursors=<streamId>:<n>,...
func streamArgs(r *http.Request) (model.StreamArgs, error) {
	q := r.URL.Query()
	args := model.StreamArgs{Kind: model.StreamKind(q.Get("streamKind"))}

	switch args.Kind {
	case model.StreamKindNone, model.StreamKindList:
		return args, nil
	case model.StreamKindDeltas:
	default:
		return args, apperr.New(apperr.InvalidArgument, "streamKind must be list or deltas")
	}

	raw := q.Get("cursors")
	if raw == "" {
		return args, nil
	}
	for _, item := range strings.Split(raw, ",") {
		id, n, ok := strings.Cut(strings.TrimSpace(item), ":")
		cursor, err := strconv.Atoi(n)
		if !ok || id == "" || err != nil || cursor < 0 {
			return args, apperr.New(apperr.InvalidArgument, "cursors must look like <streamId>:<n>")
		}
		args.Cursors = append(args.Cursors, model.StreamCursor{StreamID: id, Cursor: cursor})
	}
	return args, nil
}
