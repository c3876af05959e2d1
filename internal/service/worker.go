package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

// JobWelcomeEmail greets a newly registered user.
const JobWelcomeEmail = "email.welcome"

// WelcomeJob is the payload of JobWelcomeEmail.
type WelcomeJob struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Notifier delivers user notifications.
type Notifier interface {
	AddContact(ctx context.Context, email, firstName, lastName string) error
	SendWelcome(ctx context.Context, email, firstName string) error
}

// Worker executes background jobs.
type Worker struct {
	notifier Notifier
	logger   *logger.Logger
}

// NewWorker creates a job worker.
func NewWorker(notifier Notifier, log *logger.Logger) *Worker {
	return &Worker{notifier: notifier, logger: log}
}

// HandleJob runs one job. InvalidArgument errors are permanent; any other error
// asks the queue to redeliver the job.
func (w *Worker) HandleJob(ctx context.Context, kind string, data []byte) error {
	err := w.handle(ctx, kind, data)
	status := "success"
	if err != nil {
		status = "error"
		w.logger.Error("job failed", zap.String("kind", kind), zap.Error(err))
	}
	metrics.JobsTotal.WithLabelValues(kind, status).Inc()
	return err
}

func (w *Worker) handle(ctx context.Context, kind string, data []byte) error {
	switch kind {
	case JobWelcomeEmail:
		var job WelcomeJob
		if err := json.Unmarshal(data, &job); err != nil {
			return apperr.Wrap(apperr.InvalidArgument, "invalid welcome job", err)
		}
		if err := w.notifier.AddContact(ctx, job.Email, job.FirstName, job.LastName); err != nil {
			return apperr.Wrap(apperr.ResendError, "failed to add contact", err)
		}
		if err := w.notifier.SendWelcome(ctx, job.Email, job.FirstName); err != nil {
			return apperr.Wrap(apperr.ResendError, "failed to send welcome email", err)
		}
		w.logger.Info("welcome email sent", zap.String("user_id", job.UserID))
		return nil
	default:
		return apperr.New(apperr.InvalidArgument, "unknown job kind "+kind)
	}
}
