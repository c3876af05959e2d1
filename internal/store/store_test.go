package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/internal/store/storetest"
)

func TestListThreadsByUser_PagesNewestFirstWithoutGaps(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	owner, err := s.CreateAnonymousUser(ctx)
	require.NoError(t, err)
	other, err := s.CreateAnonymousUser(ctx)
	require.NoError(t, err)

	var created []string
	for i := 0; i < 7; i++ {
		th, err := s.CreateThread(ctx, owner.ID, "t")
		require.NoError(t, err)
		created = append(created, th.ID)
	}
	_, err = s.CreateThread(ctx, other.ID, "not mine")
	require.NoError(t, err)

	var seen []string
	opts := model.PaginationOpts{NumItems: 3}
	for {
		page, err := s.ListThreadsByUser(ctx, owner.ID, opts)
		require.NoError(t, err)
		for _, th := range page.Page {
			seen = append(seen, th.ID)
		}
		if page.IsDone {
			break
		}
		opts.Cursor = page.ContinueCursor
	}

	require.Len(t, seen, 7)
	for i := range seen {
		assert.Equal(t, created[len(created)-1-i], seen[i])
	}
}

func TestGetThread_NotFound(t *testing.T) {
	s := storetest.New(t)
	_, err := s.GetThread(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.True(t, apperr.Is(err, apperr.AiThreadNotFound))
}

func TestSaveMessage_AssignsIncreasingOrder(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	u, err := s.CreateAnonymousUser(ctx)
	require.NoError(t, err)
	th, err := s.CreateThread(ctx, u.ID, "t")
	require.NoError(t, err)

	for i, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser} {
		msg := &model.Message{ThreadID: th.ID, UserID: u.ID, Role: role, Content: "m"}
		require.NoError(t, s.SaveMessage(ctx, msg))
		assert.Equal(t, i, msg.Order)
	}

	page, err := s.ListMessages(ctx, th.ID, model.PaginationOpts{NumItems: 2})
	require.NoError(t, err)
	require.Len(t, page.Page, 2)
	assert.False(t, page.IsDone)

	next, err := s.ListMessages(ctx, th.ID, model.PaginationOpts{NumItems: 2, Cursor: page.ContinueCursor})
	require.NoError(t, err)
	require.Len(t, next.Page, 1)
	assert.True(t, next.IsDone)
	assert.Equal(t, 2, next.Page[0].Order)
}

func TestFinalizeMessage_OnlyOnce(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	u, err := s.CreateAnonymousUser(ctx)
	require.NoError(t, err)
	th, err := s.CreateThread(ctx, u.ID, "t")
	require.NoError(t, err)

	msg := &model.Message{ThreadID: th.ID, Role: model.RoleAssistant, Status: model.MessageStreaming}
	require.NoError(t, s.SaveMessage(ctx, msg))

	streams, err := s.ListStreamingMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, msg.ID, streams[0].StreamID)

	done := &model.MessageCompletion{
		Status:  model.MessageSuccess,
		Content: "hello",
		Parts:   []model.Part{{Type: model.PartText, Text: "hello"}},
	}
	require.NoError(t, s.FinalizeMessage(ctx, msg.ID, done))
	assert.Error(t, s.FinalizeMessage(ctx, msg.ID, done))

	got, err := s.GetMessage(ctx, th.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, model.MessageSuccess, got.Status)
	require.Len(t, got.Parts, 1)
	assert.Equal(t, model.PartText, got.Parts[0].Type)

	streams, err = s.ListStreamingMessages(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestListDeltas_FromCursor(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	for i, text := range []string{"Hello ", "there ", "friend"} {
		require.NoError(t, s.AppendDelta(ctx, &model.StreamDelta{
			MessageID: "m1", ThreadID: "t1", Seq: i, Text: text,
		}))
	}

	deltas, err := s.ListDeltas(ctx, "t1", []model.StreamCursor{{StreamID: "m1", Cursor: 1}})
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, "there ", deltas[0].Text)
	assert.Equal(t, "friend", deltas[1].Text)

	deltas, err = s.ListDeltas(ctx, "other-thread", []model.StreamCursor{{StreamID: "m1"}})
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestUpsertAndDeleteExternalUser(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	u, created, err := s.UpsertExternalUser(ctx, model.ExternalUser{ExternalID: "user_01", Email: "a@example.com", FirstName: "Ada"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, u.IsAnonymous)

	u2, created, err := s.UpsertExternalUser(ctx, model.ExternalUser{ExternalID: "user_01", Email: "b@example.com", FirstName: "Ada", LastName: "L"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, u2.ID)
	assert.Equal(t, "Ada L", u2.Name)

	th, err := s.CreateThread(ctx, u.ID, "t")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUserByExternalID(ctx, "user_01"))
	_, err = s.GetUserByExternalID(ctx, "user_01")
	assert.True(t, apperr.Is(err, apperr.UserNotFound))
	_, err = s.GetThread(ctx, th.ID)
	assert.True(t, apperr.Is(err, apperr.AiThreadNotFound))
}

func TestCacheHasNoExpiry(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, ok, err := s.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCached(ctx, "k", "v1"))
	require.NoError(t, s.SetCached(ctx, "k", "v2"))

	v, ok, err := s.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
