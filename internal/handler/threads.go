package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/middleware"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// ThreadService is the orchestrator surface served over HTTP.
type ThreadService interface {
	CreateThread(ctx context.Context, creds identity.Credentials, prompt string) (*model.CreateThreadResponse, error)
	CreateAnonymousThread(ctx context.Context, creds identity.Credentials, prompt string) (*model.CreateThreadResponse, error)
	ContinueThread(ctx context.Context, creds identity.Credentials, threadID string, req *model.ContinueThreadRequest) (string, error)
	ContinueAnonymousThread(ctx context.Context, creds identity.Credentials, threadID, prompt string) (string, error)
	SaveMessage(ctx context.Context, creds identity.Credentials, threadID, prompt string) (string, error)
	GetThreads(ctx context.Context, creds identity.Credentials, opts model.PaginationOpts) (*model.Page[model.Thread], error)
	GetAnonymousThreads(ctx context.Context, creds identity.Credentials, opts model.PaginationOpts) (*model.Page[model.Thread], error)
	GetMessages(ctx context.Context, creds identity.Credentials, threadID string, opts model.PaginationOpts, args model.StreamArgs) (*model.ListMessagesResponse, error)
	GetAnonymousMessages(ctx context.Context, creds identity.Credentials, threadID string, opts model.PaginationOpts, args model.StreamArgs) (*model.ListMessagesResponse, error)
	UpdateThread(ctx context.Context, creds identity.Credentials, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error)
	DeleteThread(ctx context.Context, creds identity.Credentials, threadID string) error
}

// ThreadHandler handles thread and message endpoints.
type ThreadHandler struct {
	service ThreadService
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(svc ThreadService, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{service: svc, logger: log}
}

// Create handles POST /api/v1/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.CreateThread)
}

// CreateAnonymous handles POST /api/v1/anonymous/threads
func (h *ThreadHandler) CreateAnonymous(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.CreateAnonymousThread)
}

func (h *ThreadHandler) create(w http.ResponseWriter, r *http.Request, fn func(context.Context, identity.Credentials, string) (*model.CreateThreadResponse, error)) {
	var req model.CreateThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.InvalidArgument, err.Error(), err))
		return
	}

	resp, err := fn(r.Context(), middleware.Credentials(r.Context()), req.Prompt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Continue handles POST /api/v1/threads/{id}/continue
func (h *ThreadHandler) Continue(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	var req model.ContinueThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.InvalidArgument, err.Error(), err))
		return
	}

	text, err := h.service.ContinueThread(r.Context(), middleware.Credentials(r.Context()), threadID, &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, &model.ContinueThreadResponse{Text: text})
}

// ContinueAnonymous handles POST /api/v1/anonymous/threads/{id}/continue
func (h *ThreadHandler) ContinueAnonymous(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	var req model.ContinueThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.InvalidArgument, err.Error(), err))
		return
	}

	text, err := h.service.ContinueAnonymousThread(r.Context(), middleware.Credentials(r.Context()), threadID, req.Prompt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, &model.ContinueThreadResponse{Text: text})
}

// SaveMessage handles POST /api/v1/threads/{id}/messages
func (h *ThreadHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	var req model.SaveMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.InvalidArgument, err.Error(), err))
		return
	}

	id, err := h.service.SaveMessage(r.Context(), middleware.Credentials(r.Context()), threadID, req.Prompt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, &model.SaveMessageResponse{MessageID: id})
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.GetThreads)
}

// ListAnonymous handles GET /api/v1/anonymous/threads
func (h *ThreadHandler) ListAnonymous(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.GetAnonymousThreads)
}

func (h *ThreadHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, identity.Credentials, model.PaginationOpts) (*model.Page[model.Thread], error)) {
	opts, err := paginationOpts(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := fn(r.Context(), middleware.Credentials(r.Context()), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Messages handles GET /api/v1/threads/{id}/messages
func (h *ThreadHandler) Messages(w http.ResponseWriter, r *http.Request) {
	h.messages(w, r, h.service.GetMessages)
}

// MessagesAnonymous handles GET /api/v1/anonymous/threads/{id}/messages
func (h *ThreadHandler) MessagesAnonymous(w http.ResponseWriter, r *http.Request) {
	h.messages(w, r, h.service.GetAnonymousMessages)
}

type messagesFunc func(context.Context, identity.Credentials, string, model.PaginationOpts, model.StreamArgs) (*model.ListMessagesResponse, error)

func (h *ThreadHandler) messages(w http.ResponseWriter, r *http.Request, fn messagesFunc) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	opts, err := paginationOpts(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	args, err := streamArgs(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := fn(r.Context(), middleware.Credentials(r.Context()), threadID, opts, args)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update handles PATCH /api/v1/threads/{id}
func (h *ThreadHandler) Update(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	var req model.UpdateThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	thread, err := h.service.UpdateThread(r.Context(), middleware.Credentials(r.Context()), threadID, &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// Delete handles DELETE /api/v1/threads/{id}
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.service.DeleteThread(r.Context(), middleware.Credentials(r.Context()), threadID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathThreadID reads the {id} path parameter. A malformed id cannot name any
// thread, so it is reported as not found.
func pathThreadID(w http.ResponseWriter, r *http.Request, log *logger.Logger) (string, bool) {
	id := chi.URLParam(r, "id")
	if !middleware.ValidThreadID(id) {
		writeError(w, r, log, apperr.New(apperr.AiThreadNotFound, "thread not found"))
		return "", false
	}
	return id, true
}
