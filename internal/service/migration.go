package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

const migrationPageSize = 50

// MigrationStore is the store surface used by migration.
type MigrationStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListThreadsByUser(ctx context.Context, userID string, opts model.PaginationOpts) (*model.Page[model.Thread], error)
	UpdateThreadOwner(ctx context.Context, threadID, userID string) error
}

// MigrationService moves an anonymous visitor's threads to their account.
type MigrationService struct {
	store    MigrationStore
	identity IdentityResolver
	logger   *logger.Logger
}

// NewMigrationService creates a migration service.
func NewMigrationService(store MigrationStore, resolver IdentityResolver, log *logger.Logger) *MigrationService {
	return &MigrationService{store: store, identity: resolver, logger: log}
}

// MigrateAnonymousUser reassigns every thread of anonymousUserID to the caller.
// Threads whose update fails are skipped and show up as the difference between
// processed and migrated. Running it again only sees threads still left behind.
func (s *MigrationService) MigrateAnonymousUser(ctx context.Context, creds identity.Credentials, anonymousUserID string) (*model.MigrationResult, error) {
	ctx, span := tracer.Start(ctx, "MigrationService.MigrateAnonymousUser")
	defer span.End()

	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return nil, fail(span, err)
	}

	id, ok := identity.NormalizeUserID(anonymousUserID)
	if !ok {
		return nil, fail(span, apperr.New(apperr.UserNotFound, "anonymous user not found"))
	}
	anon, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fail(span, apperr.Wrap(apperr.UserNotFound, "anonymous user not found", err))
	}
	if !anon.IsAnonymous {
		return nil, fail(span, apperr.New(apperr.UserNotFound, "anonymous user not found"))
	}

	log := s.logger.With(zap.String("anonymous_user_id", anon.ID), zap.String("user_id", user.ID))
	result := &model.MigrationResult{}
	opts := model.PaginationOpts{NumItems: migrationPageSize}

	for {
		page, err := s.store.ListThreadsByUser(ctx, anon.ID, opts)
		if err != nil {
			metrics.RecordMigration(result.TotalThreadsMigrated, result.TotalThreadsProcessed)
			return nil, fail(span, apperr.Wrap(apperr.ThreadMigrationFailed, "failed to list anonymous threads", err))
		}

		for _, thread := range page.Page {
			result.TotalThreadsProcessed++
			if err := s.store.UpdateThreadOwner(ctx, thread.ID, user.ID); err != nil {
				log.Warn("failed to migrate thread", zap.String("thread_id", thread.ID), zap.Error(err))
				continue
			}
			result.TotalThreadsMigrated++
		}

		if page.IsDone || len(page.Page) == 0 {
			break
		}
		opts.Cursor = page.ContinueCursor
	}

	metrics.RecordMigration(result.TotalThreadsMigrated, result.TotalThreadsProcessed)
	span.SetAttributes(
		attribute.Int("threads_processed", result.TotalThreadsProcessed),
		attribute.Int("threads_migrated", result.TotalThreadsMigrated),
	)
	log.Info("anonymous user migrated",
		zap.Int("threads_processed", result.TotalThreadsProcessed),
		zap.Int("threads_migrated", result.TotalThreadsMigrated),
	)
	return result, nil
}
