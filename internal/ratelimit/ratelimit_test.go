package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
)

func newTestLimiter(now time.Time) (*Limiter, *time.Time) {
	clock := now
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	l := New(store, DefaultRules())
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestCheckRejectsCallsBeyondRate(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	l, _ := newTestLimiter(start)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check(ctx, CreateThread, "user-1"), "call %d", i+1)
	}

	err := l.Check(ctx, CreateThread, "user-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.RateLimitExceeded))

	retryAfter, ok := apperr.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 50*time.Second, retryAfter)
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check(ctx, CreateThread, "a"))
	}
	assert.Error(t, l.Check(ctx, CreateThread, "a"))
	assert.NoError(t, l.Check(ctx, CreateThread, "b"))
	assert.NoError(t, l.Check(ctx, SendMessage, "a"))
}

func TestCheckResetsEachWindow(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 59, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Check(ctx, SendMessage, "k"))
	}
	err := l.Check(ctx, SendMessage, "k")
	require.Error(t, err)
	retryAfter, _ := apperr.RetryAfter(err)
	assert.Equal(t, time.Second, retryAfter)

	*clock = clock.Add(time.Second)
	assert.NoError(t, l.Check(ctx, SendMessage, "k"))
}

func TestCheckUnknownOperationIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Check(context.Background(), "somethingElse", "k"))
	}
}

func TestCheckIsAtomicUnderConcurrency(t *testing.T) {
	l := New(NewMemoryStore(), map[string]Rule{SendMessage: {Rate: 10, Period: time.Hour}})

	var allowed, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Check(context.Background(), SendMessage, "shared"); err != nil {
				rejected.Add(1)
				return
			}
			allowed.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
	assert.Equal(t, int32(40), rejected.Load())
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCheckFailsClosedWhenStoreIsDown(t *testing.T) {
	l := New(failingStore{}, DefaultRules())
	err := l.Check(context.Background(), SendMessage, "k")
	require.Error(t, err)
	assert.Equal(t, apperr.UnknownError, apperr.TagOf(err))
}

func TestMemoryStoreExpiresCounters(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	n, err := s.Increment(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	now = now.Add(time.Second)
	n, err = s.Increment(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
