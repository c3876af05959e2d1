package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// Identity provider event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// UserEvent is a verified identity provider event.
type UserEvent struct {
	ID   string
	Type string
	User model.ExternalUser
}

// UserWriter is the store surface used by user sync.
type UserWriter interface {
	UpsertExternalUser(ctx context.Context, ext model.ExternalUser) (*model.User, bool, error)
	DeleteUserByExternalID(ctx context.Context, externalID string) error
}

// JobScheduler queues background jobs.
type JobScheduler interface {
	Schedule(ctx context.Context, kind string, payload any) error
}

// UserSync mirrors identity provider users into the local store.
type UserSync struct {
	users  UserWriter
	jobs   JobScheduler
	logger *logger.Logger
}

// NewUserSync creates a user sync service.
func NewUserSync(users UserWriter, jobs JobScheduler, log *logger.Logger) *UserSync {
	return &UserSync{users: users, jobs: jobs, logger: log}
}

// HandleEvent applies one event. Unknown event types are ignored. A new user is
// sent a welcome email through the job queue.
func (s *UserSync) HandleEvent(ctx context.Context, ev UserEvent) error {
	log := s.logger.With(zap.String("event_id", ev.ID), zap.String("event", ev.Type), zap.String("external_id", ev.User.ExternalID))

	switch ev.Type {
	case EventUserCreated, EventUserUpdated:
		if ev.User.ExternalID == "" {
			return apperr.New(apperr.InvalidArgument, "event has no user id")
		}
		user, created, err := s.users.UpsertExternalUser(ctx, ev.User)
		if err != nil {
			return apperr.Wrap(apperr.FailedToCreateUser, "failed to store user", err)
		}
		log.Info("user synced", zap.String("user_id", user.ID), zap.Bool("created", created))

		if ev.Type != EventUserCreated || user.Email == "" {
			return nil
		}
		job := WelcomeJob{
			UserID:    user.ID,
			Email:     user.Email,
			FirstName: ev.User.FirstName,
			LastName:  ev.User.LastName,
		}
		if err := s.jobs.Schedule(ctx, JobWelcomeEmail, job); err != nil {
			return apperr.Wrap(apperr.ActionScheduleError, "failed to schedule welcome email", err)
		}
		return nil

	case EventUserDeleted:
		if err := s.users.DeleteUserByExternalID(ctx, ev.User.ExternalID); err != nil {
			if apperr.Is(err, apperr.UserNotFound) {
				log.Info("deleted user was not known")
				return nil
			}
			return err
		}
		log.Info("user deleted")
		return nil

	default:
		log.Debug("ignoring identity event")
		return nil
	}
}
