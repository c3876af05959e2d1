package handler

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/middleware"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// Migrator moves anonymous threads to an account.
type Migrator interface {
	MigrateAnonymousUser(ctx context.Context, creds identity.Credentials, anonymousUserID string) (*model.MigrationResult, error)
}

// MigrationHandler handles the account migration endpoint.
type MigrationHandler struct {
	migrator Migrator
	logger   *logger.Logger
}

// NewMigrationHandler creates a new migration handler.
func NewMigrationHandler(m Migrator, log *logger.Logger) *MigrationHandler {
	return &MigrationHandler{migrator: m, logger: log}
}

// Migrate handles POST /api/v1/users/migrate
func (h *MigrationHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req model.MigrateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.migrator.MigrateAnonymousUser(r.Context(), middleware.Credentials(r.Context()), req.AnonymousUserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
