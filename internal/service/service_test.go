package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/llm/llmtest"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/internal/rag"
	"github.com/capitalize-ai/persona-chat/internal/ratelimit"
	"github.com/capitalize-ai/persona-chat/internal/store"
	"github.com/capitalize-ai/persona-chat/internal/store/storetest"
	"github.com/capitalize-ai/persona-chat/internal/summarizer"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

type stubSearch struct {
	err error
}

func (s *stubSearch) Search(_ context.Context, namespace, query string, _ int) ([]rag.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []rag.Result{{Key: namespace, Text: "notes about " + query, Score: 0.8}}, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	deltas    []model.StreamDelta
	onPublish func()
}

func (p *recordingPublisher) PublishDelta(_ context.Context, d *model.StreamDelta) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, *d)
	if p.onPublish != nil {
		p.onPublish()
		p.onPublish = nil
	}
	return nil
}

// steppingClock advances by step on every reading so every write passes the
// stream throttle.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

// testRules keep the default rates with a long window so a test never straddles
// a window boundary.
var testRules = map[string]ratelimit.Rule{
	ratelimit.CreateThread: {Rate: 5, Period: time.Hour},
	ratelimit.SendMessage:  {Rate: 10, Period: time.Hour},
}

type harness struct {
	svc       *ThreadService
	migration *MigrationService
	st        *store.Store
	llm       *llmtest.Client
	titles    *llmtest.Client
	verifier  *identity.Verifier
	search    *stubSearch
	published *recordingPublisher
}

func newHarness(t *testing.T, cfg Config, turns ...llmtest.Turn) *harness {
	t.Helper()
	st := storetest.New(t)
	verifier := identity.NewVerifier("secret", "")
	resolver := identity.NewResolver(verifier, st, logger.Nop())

	h := &harness{
		st:        st,
		llm:       llmtest.New(turns...),
		titles:    llmtest.New(),
		verifier:  verifier,
		search:    &stubSearch{},
		published: &recordingPublisher{},
	}
	h.svc = NewThreadService(ThreadDeps{
		Store:     st,
		Identity:  resolver,
		Limiter:   ratelimit.New(ratelimit.NewMemoryStore(), testRules),
		Titles:    summarizer.New(h.titles, ""),
		LLM:       h.llm,
		Tools:     rag.NewTools(h.search, rag.DefaultTools()),
		Publisher: h.published,
	}, cfg, logger.Nop())
	h.svc.now = steppingClock(time.Second)
	h.migration = NewMigrationService(st, resolver, logger.Nop())
	return h
}

func (h *harness) authUser(t *testing.T, externalID string) (*model.User, identity.Credentials) {
	t.Helper()
	u, _, err := h.st.UpsertExternalUser(context.Background(), model.ExternalUser{ExternalID: externalID, Email: externalID + "@example.com"})
	require.NoError(t, err)
	tok, err := h.verifier.Sign(externalID, time.Hour)
	require.NoError(t, err)
	return u, identity.Credentials{Token: tok, RemoteAddr: "192.0.2.1:1234"}
}

func (h *harness) messages(t *testing.T, threadID string) []model.Message {
	t.Helper()
	page, err := h.st.ListMessages(context.Background(), threadID, model.PaginationOpts{NumItems: 100})
	require.NoError(t, err)
	return page.Page
}

func (h *harness) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.st.DB().Model(m).Count(&n).Error)
	return n
}
