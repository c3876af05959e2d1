package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsInnermostTag(t *testing.T) {
	inner := New(AiThreadNotFound, "thread not found")
	wrapped := Wrap(ContinueThreadFailed, "continue failed", fmt.Errorf("load: %w", inner))

	assert.Equal(t, AiThreadNotFound, TagOf(wrapped))
	assert.True(t, Is(wrapped, AiThreadNotFound))
}

func TestWrapTagsPlainErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(GenerateAiTextFailed, "provider failed", cause)

	assert.Equal(t, GenerateAiTextFailed, TagOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(GenerateAiTextFailed, "nothing", nil))
}

func TestTagOfUntagged(t *testing.T) {
	assert.Equal(t, UnknownError, TagOf(errors.New("boom")))
	assert.False(t, Is(nil, UnknownError))
}

func TestRateLimitedRetryAfter(t *testing.T) {
	err := RateLimited("sendMessage", 1500*time.Millisecond)

	d, ok := RetryAfter(fmt.Errorf("gate: %w", err))
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, ok = RetryAfter(New(UnknownError, "x"))
	assert.False(t, ok)
}

func TestWithDoesNotMutateOriginal(t *testing.T) {
	base := New(InvalidArgument, "bad")
	withField := base.With("field", "prompt")

	assert.Nil(t, base.Context)
	assert.Equal(t, "prompt", withField.Context["field"])
}
