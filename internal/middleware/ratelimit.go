package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
)

// RateLimit is a coarse per-IP guard in front of the whole API. Operation
// limits are enforced by the service layer.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			body := map[string]any{
				"_tag": apperr.RateLimitExceeded,
				"context": map[string]any{
					"message":    "too many requests",
					"retryAfter": windowLength.Milliseconds(),
				},
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(windowLength.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		}),
	)
}
