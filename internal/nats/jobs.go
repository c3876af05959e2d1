package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

const (
	// JobStream is the JetStream stream holding background jobs.
	JobStream = "JOBS"

	// JobSubjectPrefix prefixes every job subject; the rest is the job kind.
	JobSubjectPrefix = "jobs"

	jobConsumer = "persona-chat-worker"
)

// JobHandler runs one job of the given kind.
type JobHandler func(ctx context.Context, kind string, data []byte) error

// JobQueue schedules and consumes background jobs over JetStream.
type JobQueue struct {
	client *Client
	logger *logger.Logger
}

// NewJobQueue creates a job queue.
func NewJobQueue(client *Client, log *logger.Logger) *JobQueue {
	return &JobQueue{client: client, logger: log}
}

// JobSubject returns the subject a job of kind is published on.
func JobSubject(kind string) string {
	return JobSubjectPrefix + "." + kind
}

// EnsureStream creates the jobs stream if it does not exist.
func (q *JobQueue) EnsureStream(ctx context.Context) error {
	js := q.client.JetStream()

	if _, err := js.Stream(ctx, JobStream); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        JobStream,
		Subjects:    []string{JobSubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Background jobs such as welcome emails",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Schedule publishes a job. The payload is JSON encoded.
func (q *JobQueue) Schedule(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ack, err := q.client.JetStream().Publish(ctx, JobSubject(kind), data)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	q.logger.Debug("job scheduled", zap.String("kind", kind), zap.Uint64("seq", ack.Sequence))
	return nil
}

// Consume delivers jobs to handler until ctx is done.
func (q *JobQueue) Consume(ctx context.Context, handler JobHandler) error {
	consumer, err := q.client.JetStream().CreateOrUpdateConsumer(ctx, JobStream, jetstream.ConsumerConfig{
		Durable:       jobConsumer,
		FilterSubject: JobSubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		settle(ctx, msg, handler, q.logger)
	})
	if err != nil {
		return fmt.Errorf("failed to consume jobs: %w", err)
	}
	<-ctx.Done()
	cc.Stop()
	return nil
}

// ackable is the part of jetstream.Msg a job needs.
type ackable interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// settle runs one job and acknowledges it. Jobs rejected as InvalidArgument
// can never succeed and are terminated; other failures are redelivered.
func settle(ctx context.Context, msg ackable, handler JobHandler, log *logger.Logger) {
	kind := strings.TrimPrefix(msg.Subject(), JobSubjectPrefix+".")

	var ackErr error
	err := handler(ctx, kind, msg.Data())
	switch {
	case err == nil:
		ackErr = msg.Ack()
	case apperr.Is(err, apperr.InvalidArgument):
		log.Warn("dropping job", zap.String("kind", kind), zap.Error(err))
		ackErr = msg.Term()
	default:
		ackErr = msg.Nak()
	}
	if ackErr != nil && !errors.Is(ackErr, context.Canceled) {
		log.Warn("failed to acknowledge job", zap.String("kind", kind), zap.Error(ackErr))
	}
}
