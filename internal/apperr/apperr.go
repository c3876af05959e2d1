// Package apperr defines the tagged error values returned across service boundaries.
//
// Internal code returns (T, error) and wraps failures with New or Wrap. The HTTP layer
// converts an *Error to its transport shape exactly once.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Tag names a failure kind.
type Tag string

const (
	NotAuthenticated          Tag = "NotAuthenticated"
	UserAlreadyAuthenticated  Tag = "UserAlreadyAuthenticated"
	UserNotFound              Tag = "UserNotFound"
	AiThreadNotFound          Tag = "AiThreadNotFound"
	SummaryGenerationFailed   Tag = "SummaryGenerationFailed"
	CreateThreadFailed        Tag = "CreateThreadFailed"
	ContinueThreadFailed      Tag = "ContinueThreadFailed"
	GenerateAiTextFailed      Tag = "GenerateAiTextFailed"
	SendAiMessageFailed       Tag = "SendAiMessageFailed"
	GetAiThreadsFailed        Tag = "GetAiThreadsFailed"
	GetAiThreadMessagesFailed Tag = "GetAiThreadMessagesFailed"
	AiToolFailure             Tag = "AiToolFailure"
	RateLimitExceeded         Tag = "RateLimitExceeded"
	ThreadMigrationFailed     Tag = "ThreadMigrationFailed"
	FailedToCreateUser        Tag = "FailedToCreateUser"
	ActionScheduleError       Tag = "ActionScheduleError"
	ResendError               Tag = "ResendError"
	UnknownError              Tag = "UnknownError"
	InvalidArgument           Tag = "InvalidArgument"
	WebhookSignatureInvalid   Tag = "WebhookSignatureInvalid"
)

// Error is a tagged failure. Context carries extra fields rendered next to the message.
type Error struct {
	Tag     Tag
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With returns a copy of e with an extra context field.
func (e *Error) With(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	cp := *e
	cp.Context = ctx
	return &cp
}

// New creates a tagged error.
func New(tag Tag, message string) *Error {
	return &Error{Tag: tag, Message: message}
}

// Wrap creates a tagged error around cause. If cause already carries a tag it is
// returned unchanged so the innermost classification wins.
func Wrap(tag Tag, message string, cause error) error {
	if cause == nil {
		return nil
	}
	var tagged *Error
	if errors.As(cause, &tagged) {
		return cause
	}
	return &Error{Tag: tag, Message: message, Cause: cause}
}

// RateLimited creates a RateLimitExceeded error with its retry hint.
func RateLimited(operation string, retryAfter time.Duration) *Error {
	return New(RateLimitExceeded, "rate limit exceeded for "+operation).
		With("retryAfter", retryAfter.Milliseconds())
}

// TagOf returns the tag of err, or UnknownError for untagged errors.
func TagOf(err error) Tag {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Tag
	}
	return UnknownError
}

// Is reports whether err carries tag.
func Is(err error, tag Tag) bool {
	return err != nil && TagOf(err) == tag
}

// RetryAfter returns the retry hint of a RateLimitExceeded error.
func RetryAfter(err error) (time.Duration, bool) {
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Tag != RateLimitExceeded {
		return 0, false
	}
	ms, ok := tagged.Context["retryAfter"].(int64)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
