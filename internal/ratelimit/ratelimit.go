// Package ratelimit implements fixed-window counters per operation and caller.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

// Operation names.
const (
	SendMessage  = "sendMessage"
	CreateThread = "createThread"
)

// Rule allows Rate calls per Period.
type Rule struct {
	Rate   int           `yaml:"rate"`
	Period time.Duration `yaml:"period"`
}

// DefaultRules returns the built-in limits.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		SendMessage:  {Rate: 10, Period: time.Minute},
		CreateThread: {Rate: 5, Period: time.Minute},
	}
}

// Store increments a counter atomically and returns its new value. The counter
// expires after ttl.
type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter gates operations.
type Limiter struct {
	store Store
	rules map[string]Rule
	now   func() time.Time
}

// New creates a limiter. Operations without a rule are not limited.
func New(store Store, rules map[string]Rule) *Limiter {
	return &Limiter{store: store, rules: rules, now: time.Now}
}

// Check consumes one unit of operation for key. It returns a RateLimitExceeded
// error carrying the time until the window resets once the rate is used up.
func (l *Limiter) Check(ctx context.Context, operation, key string) error {
	rule, ok := l.rules[operation]
	if !ok || rule.Rate <= 0 || rule.Period <= 0 {
		return nil
	}

	now := l.now()
	windowStart := now.Truncate(rule.Period)
	windowEnd := windowStart.Add(rule.Period)

	counterKey := fmt.Sprintf("ratelimit:%s:%s:%d", operation, key, windowStart.UnixMilli())
	count, err := l.store.Increment(ctx, counterKey, windowEnd.Sub(now))
	if err != nil {
		return apperr.Wrap(apperr.UnknownError, "rate limiter unavailable", err)
	}

	if count > int64(rule.Rate) {
		metrics.RateLimitRejections.WithLabelValues(operation).Inc()
		return apperr.RateLimited(operation, windowEnd.Sub(now))
	}
	return nil
}
