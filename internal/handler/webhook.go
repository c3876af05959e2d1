package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/workos/workos-go/v4/pkg/webhooks"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/internal/service"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// SignatureHeader carries the WorkOS webhook signature.
const SignatureHeader = "WorkOS-Signature"

// UserEventHandler applies identity provider events.
type UserEventHandler interface {
	HandleEvent(ctx context.Context, ev service.UserEvent) error
}

// WebhookHandler receives WorkOS user events.
type WebhookHandler struct {
	verifier *webhooks.Client
	users    UserEventHandler
	logger   *logger.Logger
}

// NewWebhookHandler creates a webhook handler verifying with secret. An empty
// secret rejects every delivery.
func NewWebhookHandler(secret string, users UserEventHandler, log *logger.Logger) *WebhookHandler {
	h := &WebhookHandler{users: users, logger: log}
	if secret != "" {
		h.verifier = webhooks.NewClient(secret)
	}
	return h
}

type workosEvent struct {
	ID    string     `json:"id"`
	Event string     `json:"event"`
	Data  workosUser `json:"data"`
}

type workosUser struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	EmailVerified     bool   `json:"email_verified"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// Handle handles POST /workos-webhook
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		writeError(w, r, h.logger, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	if err := h.verify(r.Header.Get(SignatureHeader), body); err != nil {
		h.logger.FromContext(r.Context()).Warn("rejected webhook", zap.Error(err))
		writeError(w, r, h.logger, err)
		return
	}

	var ev workosEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.InvalidArgument, "invalid event", err))
		return
	}

	err = h.users.HandleEvent(r.Context(), service.UserEvent{
		ID:   ev.ID,
		Type: ev.Event,
		User: model.ExternalUser{
			ExternalID:    ev.Data.ID,
			Email:         ev.Data.Email,
			FirstName:     ev.Data.FirstName,
			LastName:      ev.Data.LastName,
			AvatarURL:     ev.Data.ProfilePictureURL,
			EmailVerified: ev.Data.EmailVerified,
		},
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// verify checks the signature header and its timestamp tolerance.
func (h *WebhookHandler) verify(header string, body []byte) error {
	if h.verifier == nil {
		return apperr.New(apperr.WebhookSignatureInvalid, "webhook secret not configured")
	}
	if header == "" {
		return apperr.New(apperr.WebhookSignatureInvalid, "missing signature header")
	}
	if _, err := h.verifier.ValidatePayload(header, string(body)); err != nil {
		return &apperr.Error{Tag: apperr.WebhookSignatureInvalid, Message: "invalid webhook signature", Cause: err}
	}
	return nil
}
