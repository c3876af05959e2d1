package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/llm/llmtest"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/internal/ratelimit"
)

func TestCreateAnonymousThread_FreshVisitor(t *testing.T) {
	h := newHarness(t, Config{}, llmtest.Turn{Tokens: []string{"Hi! ", "I build ", "software."}})
	ctx := context.Background()

	resp, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{RemoteAddr: "198.51.100.7:4000"}, "Hi, who are you?")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ThreadID)
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, "Hi! I build software.", resp.Text)

	thread, err := h.st.GetThread(ctx, resp.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, thread.UserID)
	assert.Equal(t, "ok", thread.Title)

	msgs := h.messages(t, resp.ThreadID)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi, who are you?", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, model.MessageSuccess, msgs[1].Status)
	assert.Equal(t, resp.Text, msgs[1].Content)

	req := h.llm.Requests[0]
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "Hi, who are you?", req.Messages[len(req.Messages)-1].Content)
	assert.Len(t, req.Tools, 2)
}

func TestContinueAnonymousThread_ReusesReturnedUserID(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	created, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "Hello")
	require.NoError(t, err)
	users := h.count(t, &model.User{})

	creds := identity.Credentials{AnonymousUserID: created.UserID}
	for i, prompt := range []string{"P1", "P2"} {
		before := len(h.messages(t, created.ThreadID))

		text, err := h.svc.ContinueAnonymousThread(ctx, creds, created.ThreadID, prompt)
		require.NoError(t, err)
		assert.NotEmpty(t, text)

		msgs := h.messages(t, created.ThreadID)
		require.Len(t, msgs, before+2, "call %d", i+1)
		assert.Equal(t, model.RoleUser, msgs[before].Role)
		assert.Equal(t, prompt, msgs[before].Content)
		assert.Equal(t, model.RoleAssistant, msgs[before+1].Role)
		for j := 1; j < len(msgs); j++ {
			assert.Greater(t, msgs[j].Order, msgs[j-1].Order)
		}
	}

	thread, err := h.st.GetThread(ctx, created.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, thread.UserID)
	assert.Equal(t, users, h.count(t, &model.User{}))
}

func TestCreateAnonymousThread_RejectsActiveSession(t *testing.T) {
	h := newHarness(t, Config{})
	_, creds := h.authUser(t, "user_a")

	_, err := h.svc.CreateAnonymousThread(context.Background(), creds, "Hi")
	require.Error(t, err)
	assert.Equal(t, apperr.UserAlreadyAuthenticated, apperr.TagOf(err))
	assert.Equal(t, int64(0), h.count(t, &model.Thread{}))
	assert.Equal(t, 0, h.llm.Calls())
	assert.Equal(t, 0, h.titles.Calls())
}

func TestGetMessages_OtherUsersThreadIsNotFound(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, credsA := h.authUser(t, "user_a")
	_, credsB := h.authUser(t, "user_b")

	created, err := h.svc.CreateThread(ctx, credsA, "secret plans")
	require.NoError(t, err)

	page, err := h.svc.GetMessages(ctx, credsA, created.ThreadID, model.PaginationOpts{}, model.StreamArgs{})
	require.NoError(t, err)
	assert.Len(t, page.Page.Page, 2)

	_, err = h.svc.GetMessages(ctx, credsB, created.ThreadID, model.PaginationOpts{}, model.StreamArgs{})
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))

	_, err = h.svc.GetMessages(ctx, credsB, "01HZZZZZZZZZZZZZZZZZZZZZZZ", model.PaginationOpts{}, model.StreamArgs{})
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))

	_, err = h.svc.ContinueThread(ctx, credsB, created.ThreadID, &model.ContinueThreadRequest{Prompt: "let me in"})
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))
	assert.Len(t, h.messages(t, created.ThreadID), 2)

	_, err = h.svc.GetAnonymousMessages(ctx, identity.Credentials{}, created.ThreadID, model.PaginationOpts{}, model.StreamArgs{})
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))
}

func TestAuthenticatedOperationsRequireSession(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	anon := identity.Credentials{}

	_, err := h.svc.CreateThread(ctx, anon, "hi")
	assert.Equal(t, apperr.NotAuthenticated, apperr.TagOf(err))
	_, err = h.svc.GetThreads(ctx, anon, model.PaginationOpts{})
	assert.Equal(t, apperr.NotAuthenticated, apperr.TagOf(err))
	_, err = h.svc.ContinueThread(ctx, anon, "x", &model.ContinueThreadRequest{Prompt: "hi"})
	assert.Equal(t, apperr.NotAuthenticated, apperr.TagOf(err))

	_, creds := h.authUser(t, "user_a")
	creds.Token += "tampered"
	_, err = h.svc.GetThreads(ctx, creds, model.PaginationOpts{})
	assert.Equal(t, apperr.NotAuthenticated, apperr.TagOf(err))
}

func TestContinueAnonymousThread_UnknownVisitorWritesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	owned, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "Hello")
	require.NoError(t, err)
	users, messages := h.count(t, &model.User{}), h.count(t, &model.Message{})
	llmCalls := h.llm.Calls()

	cases := []struct {
		creds    identity.Credentials
		threadID string
	}{
		{identity.Credentials{}, "01JA0000000000000000000000"},
		{identity.Credentials{}, owned.ThreadID},
		{identity.Credentials{AnonymousUserID: uuid.NewString()}, owned.ThreadID},
	}
	for i, c := range cases {
		_, err := h.svc.ContinueAnonymousThread(ctx, c.creds, c.threadID, "hijack")
		assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err), "case %d", i)
	}

	assert.Equal(t, users, h.count(t, &model.User{}))
	assert.Equal(t, messages, h.count(t, &model.Message{}))
	assert.Equal(t, llmCalls, h.llm.Calls())
}

func TestCreateAnonymousThread_RotatingIDsShareAddressLimit(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	var succeeded, limited int
	for i := 0; i < 12; i++ {
		creds := identity.Credentials{AnonymousUserID: uuid.NewString(), RemoteAddr: "198.51.100.4:40000"}
		_, err := h.svc.CreateAnonymousThread(ctx, creds, "hello")
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.RateLimitExceeded):
			limited++
		default:
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
	}

	assert.Equal(t, testRules[ratelimit.CreateThread].Rate, succeeded)
	assert.Equal(t, 12-succeeded, limited)
	assert.Equal(t, int64(succeeded), h.count(t, &model.Thread{}))
	assert.Equal(t, int64(succeeded), h.count(t, &model.User{}))
}

func TestCreateThread_RateLimitedBeforeSideEffects(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, creds := h.authUser(t, "user_a")

	for i := 0; i < 5; i++ {
		_, err := h.svc.CreateThread(ctx, creds, "hello")
		require.NoError(t, err, "call %d", i+1)
	}
	llmCalls, titleCalls := h.llm.Calls(), h.titles.Calls()

	_, err := h.svc.CreateThread(ctx, creds, "hello")
	require.Error(t, err)
	assert.Equal(t, apperr.RateLimitExceeded, apperr.TagOf(err))
	retryAfter, ok := apperr.RetryAfter(err)
	require.True(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, testRules[ratelimit.CreateThread].Period)

	assert.Equal(t, int64(5), h.count(t, &model.Thread{}))
	assert.Equal(t, llmCalls, h.llm.Calls())
	assert.Equal(t, titleCalls, h.titles.Calls())
}

func TestGateRunsBeforeIdentity(t *testing.T) {
	h := newHarness(t, Config{})
	creds := identity.Credentials{Token: "not-a-token", RemoteAddr: "203.0.113.9:5555"}

	for i := 0; i < 5; i++ {
		_, err := h.svc.CreateThread(context.Background(), creds, "hi")
		assert.Equal(t, apperr.NotAuthenticated, apperr.TagOf(err))
	}
	_, err := h.svc.CreateThread(context.Background(), creds, "hi")
	assert.Equal(t, apperr.RateLimitExceeded, apperr.TagOf(err))
}

func TestContinueThread_SendMessageLimit(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, creds := h.authUser(t, "user_a")

	created, err := h.svc.CreateThread(ctx, creds, "start")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{Prompt: "more"})
		require.NoError(t, err, "call %d", i+1)
	}
	_, err = h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{Prompt: "more"})
	assert.Equal(t, apperr.RateLimitExceeded, apperr.TagOf(err))
	assert.Len(t, h.messages(t, created.ThreadID), 22)
}

func TestStreamingDeltasConcatenateToFinalContent(t *testing.T) {
	tokens := []string{"Hello ", "there, ", "I am ", "a persona ", "who likes Go."}
	h := newHarness(t, Config{}, llmtest.Turn{Tokens: tokens})
	ctx := context.Background()

	resp, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "Say hello")
	require.NoError(t, err)

	msgs := h.messages(t, resp.ThreadID)
	require.Len(t, msgs, 2)
	final := msgs[1]
	assert.Equal(t, strings.Join(tokens, ""), final.Content)

	deltas, err := h.st.ListDeltas(ctx, resp.ThreadID, []model.StreamCursor{{StreamID: final.ID}})
	require.NoError(t, err)
	require.Greater(t, len(deltas), 1)

	var sb strings.Builder
	offset := 0
	for i, d := range deltas {
		assert.Equal(t, i, d.Seq)
		assert.Equal(t, offset, d.Start)
		assert.Equal(t, d.Start+len(d.Text), d.End)
		offset = d.End
		sb.WriteString(d.Text)
	}
	assert.Equal(t, final.Content, sb.String())
	assert.Len(t, h.published.deltas, len(deltas))

	for _, d := range deltas[:len(deltas)-1] {
		assert.True(t, strings.HasSuffix(d.Text, " "), "delta %q should end on a word boundary", d.Text)
	}
}

func TestStreamingThrottleBatchesDeltas(t *testing.T) {
	tokens := []string{"one ", "two ", "three ", "four"}
	h := newHarness(t, Config{StreamThrottle: time.Hour}, llmtest.Turn{Tokens: tokens})
	ctx := context.Background()

	resp, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "count")
	require.NoError(t, err)

	msgs := h.messages(t, resp.ThreadID)
	deltas, err := h.st.ListDeltas(ctx, resp.ThreadID, []model.StreamCursor{{StreamID: msgs[1].ID}})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, "one two three four", deltas[0].Text)
}

func TestGenerationUsesToolsAndRecordsParts(t *testing.T) {
	h := newHarness(t, Config{},
		llmtest.Turn{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "search_biography", Arguments: `{"query":"education"}`}}},
		llmtest.Turn{Tokens: []string{"I studied ", "physics."}},
	)
	ctx := context.Background()

	resp, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "Where did you study?")
	require.NoError(t, err)
	assert.Equal(t, "I studied physics.", resp.Text)
	require.Equal(t, 2, h.llm.Calls())

	second := h.llm.Requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "notes about education")
	prev := second.Messages[len(second.Messages)-2]
	assert.Equal(t, "assistant", prev.Role)
	require.Len(t, prev.ToolCalls, 1)

	msgs := h.messages(t, resp.ThreadID)
	parts := msgs[1].Parts
	require.Len(t, parts, 4)
	assert.Equal(t, model.PartStepStart, parts[0].Type)
	assert.Equal(t, model.PartToolInvocation, parts[1].Type)
	assert.Equal(t, "search_biography", parts[1].ToolName)
	assert.Contains(t, parts[1].Result, "notes about education")
	assert.Equal(t, model.PartStepStart, parts[2].Type)
	assert.Equal(t, model.PartText, parts[3].Type)
	assert.Equal(t, "I studied physics.", parts[3].Text)
}

func TestToolFailureIsReturnedToModel(t *testing.T) {
	h := newHarness(t, Config{},
		llmtest.Turn{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "search_career", Arguments: `{"query":"jobs"}`}}},
		llmtest.Turn{Tokens: []string{"I could not look that up right now."}},
	)
	h.search.err = errors.New("vector index offline")

	resp, err := h.svc.CreateAnonymousThread(context.Background(), identity.Credentials{}, "Where did you work?")
	require.NoError(t, err)
	assert.Equal(t, "I could not look that up right now.", resp.Text)

	second := h.llm.Requests[1]
	toolMsg := second.Messages[len(second.Messages)-1]
	assert.Contains(t, toolMsg.Content, `"_tag":"AiToolFailure"`)
	assert.Contains(t, toolMsg.Content, "vector index offline")
}

func TestGenerationStopsAfterMaxSteps(t *testing.T) {
	call := llmtest.Turn{ToolCalls: []llm.ToolCall{{ID: "c", Name: "search_career", Arguments: `{"query":"x"}`}}}
	h := newHarness(t, Config{}, call, call, call, call, call, call, call)

	_, err := h.svc.CreateAnonymousThread(context.Background(), identity.Credentials{}, "loop forever")
	require.NoError(t, err)
	require.Equal(t, 5, h.llm.Calls())
	assert.Len(t, h.llm.Requests[3].Tools, 2)
	assert.Empty(t, h.llm.Requests[4].Tools)
}

func TestStepTextIsSeparated(t *testing.T) {
	h := newHarness(t, Config{},
		llmtest.Turn{Tokens: []string{"Let me check."}, ToolCalls: []llm.ToolCall{{ID: "c", Name: "search_career", Arguments: `{"query":"x"}`}}},
		llmtest.Turn{Tokens: []string{"Found it."}},
	)
	resp, err := h.svc.CreateAnonymousThread(context.Background(), identity.Credentials{}, "q")
	require.NoError(t, err)
	assert.Equal(t, "Let me check.\n\nFound it.", resp.Text)
}

func TestProviderFailureFinalizesMessageAsFailed(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, creds := h.authUser(t, "user_a")

	created, err := h.svc.CreateThread(ctx, creds, "start")
	require.NoError(t, err)

	h.llm.Push(llmtest.Turn{Tokens: []string{"Partial ", "answer ", "never"}, Err: llmtest.ErrProvider, FailAfter: 2})
	calls := h.llm.Calls()

	_, err = h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{Prompt: "next"})
	require.Error(t, err)
	assert.Equal(t, apperr.ContinueThreadFailed, apperr.TagOf(err))
	assert.ErrorIs(t, err, llmtest.ErrProvider)
	assert.Equal(t, calls+1, h.llm.Calls(), "no retry")

	msgs := h.messages(t, created.ThreadID)
	require.Len(t, msgs, 4)
	failed := msgs[3]
	assert.Equal(t, model.MessageFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "provider unavailable")
	assert.Equal(t, "Partial answer ", failed.Content)
}

func TestCreateThread_GenerationFailureTag(t *testing.T) {
	h := newHarness(t, Config{}, llmtest.Turn{Err: llmtest.ErrProvider})
	_, creds := h.authUser(t, "user_a")

	_, err := h.svc.CreateThread(context.Background(), creds, "hi")
	assert.Equal(t, apperr.GenerateAiTextFailed, apperr.TagOf(err))
}

func TestCreateThread_SummaryFailureCreatesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	h.titles.Push(llmtest.Turn{Err: llmtest.ErrProvider})
	_, creds := h.authUser(t, "user_a")

	_, err := h.svc.CreateThread(context.Background(), creds, "hi")
	assert.Equal(t, apperr.SummaryGenerationFailed, apperr.TagOf(err))
	assert.Equal(t, int64(0), h.count(t, &model.Thread{}))
	assert.Equal(t, 0, h.llm.Calls())
}

func TestGenerationOutlivesClientDisconnect(t *testing.T) {
	h := newHarness(t, Config{}, llmtest.Turn{Tokens: []string{"still ", "here ", "after ", "you left"}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.published.onPublish = cancel

	resp, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "bye")
	require.NoError(t, err)
	assert.Equal(t, "still here after you left", resp.Text)

	msgs := h.messages(t, resp.ThreadID)
	assert.Equal(t, model.MessageSuccess, msgs[1].Status)
	assert.Equal(t, resp.Text, msgs[1].Content)
}

func TestGenerationTimeout(t *testing.T) {
	h := newHarness(t, Config{GenerationTimeout: time.Nanosecond})
	ctx := context.Background()

	_, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "slow")
	require.Error(t, err)
	assert.Equal(t, apperr.GenerateAiTextFailed, apperr.TagOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var msgs []model.Message
	require.NoError(t, h.st.DB().Where("role = ?", model.RoleAssistant).Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageFailed, msgs[0].Status)
}

func TestSaveMessageThenContinueWithPromptMessageID(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, creds := h.authUser(t, "user_a")

	created, err := h.svc.CreateThread(ctx, creds, "start")
	require.NoError(t, err)

	msgID, err := h.svc.SaveMessage(ctx, creds, created.ThreadID, "saved question")
	require.NoError(t, err)
	require.Len(t, h.messages(t, created.ThreadID), 3)

	h.llm.Push(llmtest.Turn{Tokens: []string{"saved answer"}})
	text, err := h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{PromptMessageID: msgID})
	require.NoError(t, err)
	assert.Equal(t, "saved answer", text)

	msgs := h.messages(t, created.ThreadID)
	require.Len(t, msgs, 4)
	last := h.llm.Requests[len(h.llm.Requests)-1]
	assert.Equal(t, "saved question", last.Messages[len(last.Messages)-1].Content)

	_, err = h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{PromptMessageID: msgs[3].ID})
	assert.Equal(t, apperr.ContinueThreadFailed, apperr.TagOf(err))

	_, err = h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{PromptMessageID: "missing"})
	assert.Equal(t, apperr.ContinueThreadFailed, apperr.TagOf(err))

	_, err = h.svc.ContinueThread(ctx, creds, created.ThreadID, &model.ContinueThreadRequest{})
	assert.Equal(t, apperr.InvalidArgument, apperr.TagOf(err))
}

func TestGetMessages_StreamArgs(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	user, creds := h.authUser(t, "user_a")

	thread, err := h.st.CreateThread(ctx, user.ID, "live")
	require.NoError(t, err)
	live := &model.Message{ThreadID: thread.ID, UserID: user.ID, Role: model.RoleAssistant, Status: model.MessageStreaming}
	require.NoError(t, h.st.SaveMessage(ctx, live))
	for i, text := range []string{"a ", "b ", "c "} {
		require.NoError(t, h.st.AppendDelta(ctx, &model.StreamDelta{MessageID: live.ID, ThreadID: thread.ID, Seq: i, Start: 2 * i, End: 2*i + 2, Text: text}))
	}

	resp, err := h.svc.GetMessages(ctx, creds, thread.ID, model.PaginationOpts{}, model.StreamArgs{Kind: model.StreamKindList})
	require.NoError(t, err)
	require.NotNil(t, resp.Streams)
	require.Len(t, resp.Streams.Messages, 1)
	assert.Equal(t, live.ID, resp.Streams.Messages[0].StreamID)

	resp, err = h.svc.GetMessages(ctx, creds, thread.ID, model.PaginationOpts{}, model.StreamArgs{
		Kind:    model.StreamKindDeltas,
		Cursors: []model.StreamCursor{{StreamID: live.ID, Cursor: 1}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Streams.Deltas, 2)
	assert.Equal(t, "b ", resp.Streams.Deltas[0].Text)

	resp, err = h.svc.GetMessages(ctx, creds, thread.ID, model.PaginationOpts{}, model.StreamArgs{})
	require.NoError(t, err)
	assert.Nil(t, resp.Streams)
}

func TestGetThreads(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, creds := h.authUser(t, "user_a")

	for i := 0; i < 3; i++ {
		_, err := h.svc.CreateThread(ctx, creds, "hello")
		require.NoError(t, err)
	}
	page, err := h.svc.GetThreads(ctx, creds, model.PaginationOpts{NumItems: 2})
	require.NoError(t, err)
	assert.Len(t, page.Page, 2)
	assert.False(t, page.IsDone)

	anonPage, err := h.svc.GetAnonymousThreads(ctx, identity.Credentials{}, model.PaginationOpts{})
	require.NoError(t, err)
	assert.Empty(t, anonPage.Page)
	assert.True(t, anonPage.IsDone)

	created, err := h.svc.CreateAnonymousThread(ctx, identity.Credentials{}, "hey")
	require.NoError(t, err)
	anonPage, err = h.svc.GetAnonymousThreads(ctx, identity.Credentials{AnonymousUserID: created.UserID}, model.PaginationOpts{})
	require.NoError(t, err)
	require.Len(t, anonPage.Page, 1)
	assert.Equal(t, created.ThreadID, anonPage.Page[0].ID)
}

func TestUpdateAndDeleteThread(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_, credsA := h.authUser(t, "user_a")
	_, credsB := h.authUser(t, "user_b")

	created, err := h.svc.CreateThread(ctx, credsA, "hello")
	require.NoError(t, err)

	title := "  Renamed  "
	archived := model.ThreadArchived
	thread, err := h.svc.UpdateThread(ctx, credsA, created.ThreadID, &model.UpdateThreadRequest{Title: &title, Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", thread.Title)
	assert.Equal(t, model.ThreadArchived, thread.Status)

	bogus := model.ThreadStatus("deleted")
	_, err = h.svc.UpdateThread(ctx, credsA, created.ThreadID, &model.UpdateThreadRequest{Status: &bogus})
	assert.Equal(t, apperr.InvalidArgument, apperr.TagOf(err))

	_, err = h.svc.UpdateThread(ctx, credsB, created.ThreadID, &model.UpdateThreadRequest{Title: &title})
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))

	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(h.svc.DeleteThread(ctx, credsB, created.ThreadID)))
	require.NoError(t, h.svc.DeleteThread(ctx, credsA, created.ThreadID))

	_, err = h.st.GetThread(ctx, created.ThreadID)
	assert.Equal(t, apperr.AiThreadNotFound, apperr.TagOf(err))
	assert.Equal(t, int64(0), h.count(t, &model.Message{}))
}
