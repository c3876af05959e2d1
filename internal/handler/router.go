package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/persona-chat/internal/middleware"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// RouterConfig wires the handlers into one router.
type RouterConfig struct {
	Threads   *ThreadHandler
	Migration *MigrationHandler
	Webhook   *WebhookHandler
	Stream    *StreamHandler
	Health    *HealthHandler
	Logger    *logger.Logger

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/workos-webhook", cfg.Webhook.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Use(middleware.Session)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", cfg.Threads.Create)
			r.Get("/", cfg.Threads.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", cfg.Threads.Update)
				r.Delete("/", cfg.Threads.Delete)
				r.Post("/continue", cfg.Threads.Continue)
				r.Get("/messages", cfg.Threads.Messages)
				r.Post("/messages", cfg.Threads.SaveMessage)
				r.Get("/stream", cfg.Stream.Stream)
			})
		})

		r.Route("/anonymous/threads", func(r chi.Router) {
			r.Post("/", cfg.Threads.CreateAnonymous)
			r.Get("/", cfg.Threads.ListAnonymous)
			r.Post("/{id}/continue", cfg.Threads.ContinueAnonymous)
			r.Get("/{id}/messages", cfg.Threads.MessagesAnonymous)
			r.Get("/{id}/stream", cfg.Stream.StreamAnonymous)
		})

		r.Post("/users/migrate", cfg.Migration.Migrate)
	})

	return r
}
