package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

type fakeMsg struct {
	subject string
	data    []byte
	settled string
}

func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Ack() error      { m.settled = "ack"; return nil }
func (m *fakeMsg) Nak() error      { m.settled = "nak"; return nil }
func (m *fakeMsg) Term() error     { m.settled = "term"; return nil }

func TestSettle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ack"},
		{"bad payload", apperr.New(apperr.InvalidArgument, "invalid welcome job"), "term"},
		{"provider down", apperr.Wrap(apperr.ResendError, "failed", errors.New("503")), "nak"},
		{"untagged", errors.New("boom"), "nak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeMsg{subject: JobSubject("email.welcome"), data: []byte(`{}`)}
			var gotKind string
			settle(context.Background(), msg, func(_ context.Context, kind string, data []byte) error {
				gotKind = kind
				assert.Equal(t, []byte(`{}`), data)
				return tt.err
			}, logger.Nop())
			assert.Equal(t, "email.welcome", gotKind)
			assert.Equal(t, tt.want, msg.settled)
		})
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "jobs.email.welcome", JobSubject("email.welcome"))
	assert.Equal(t, "threads.01HX.deltas", DeltaSubject("01HX"))
}
