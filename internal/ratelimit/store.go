package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisStore keeps counters in Redis so every API instance shares them.
type RedisStore struct {
	client redis.Scripter
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return incrScript.Run(ctx, s.client, []string{key}, ms).Int64()
}

type counter struct {
	n       int64
	expires time.Time
}

// MemoryStore keeps counters in process memory. It suits tests and a single
// instance deployment.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter), now: time.Now}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, c := range s.counters {
		if !now.Before(c.expires) {
			delete(s.counters, k)
		}
	}

	c, ok := s.counters[key]
	if !ok {
		c = &counter{expires: now.Add(ttl)}
		s.counters[key] = c
	}
	c.n++
	return c.n, nil
}
