package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

type captured struct {
	mu       sync.Mutex
	paths    []string
	bodies   []map[string]any
	failWith int
}

func newServer(t *testing.T, c *captured) *resend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		fail := c.failWith
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail != 0 {
			w.WriteHeader(fail)
			_, _ = w.Write([]byte(`{"statusCode":500,"name":"internal_server_error","message":"down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"re_123","object":"contact"}`))
	}))
	t.Cleanup(srv.Close)

	client := resend.NewCustomClient(srv.Client(), "re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func TestSendWelcome_TestModeRedirects(t *testing.T) {
	c := &captured{}
	r := NewResendWithClient(newServer(t, c), Config{From: "hello@example.com", TestMode: true}, logger.Nop())

	require.NoError(t, r.SendWelcome(context.Background(), "ada@example.com", "Ada"))
	require.Len(t, c.bodies, 1)
	assert.Equal(t, "/emails", c.paths[0])
	assert.Equal(t, []any{TestRecipient}, c.bodies[0]["to"])
	assert.Contains(t, c.bodies[0]["html"], "<strong>What you can ask about</strong>")
	assert.Contains(t, c.bodies[0]["html"], "Hi Ada,")
}

func TestSendWelcome_Production(t *testing.T) {
	c := &captured{}
	r := NewResendWithClient(newServer(t, c), Config{From: "hello@example.com"}, logger.Nop())

	require.NoError(t, r.SendWelcome(context.Background(), "ada@example.com", ""))
	assert.Equal(t, []any{"ada@example.com"}, c.bodies[0]["to"])
	assert.Contains(t, c.bodies[0]["text"], "Hi there,")
}

func TestAddContact(t *testing.T) {
	c := &captured{}
	r := NewResendWithClient(newServer(t, c), Config{AudienceID: "aud_1"}, logger.Nop())

	require.NoError(t, r.AddContact(context.Background(), "ada@example.com", "Ada", "Lovelace"))
	require.Len(t, c.paths, 1)
	assert.Equal(t, "/audiences/aud_1/contacts", c.paths[0])
	assert.Equal(t, "ada@example.com", c.bodies[0]["email"])

	none := NewResendWithClient(newServer(t, &captured{}), Config{}, logger.Nop())
	assert.NoError(t, none.AddContact(context.Background(), "ada@example.com", "", ""))
}

func TestSendWelcome_ProviderError(t *testing.T) {
	c := &captured{failWith: http.StatusInternalServerError}
	r := NewResendWithClient(newServer(t, c), Config{From: "hello@example.com"}, logger.Nop())

	assert.Error(t, r.SendWelcome(context.Background(), "ada@example.com", "Ada"))
}
