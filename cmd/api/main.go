// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/config"
	"github.com/capitalize-ai/persona-chat/internal/handler"
	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	natsclient "github.com/capitalize-ai/persona-chat/internal/nats"
	"github.com/capitalize-ai/persona-chat/internal/notify"
	"github.com/capitalize-ai/persona-chat/internal/rag"
	"github.com/capitalize-ai/persona-chat/internal/ratelimit"
	"github.com/capitalize-ai/persona-chat/internal/service"
	"github.com/capitalize-ai/persona-chat/internal/store"
	"github.com/capitalize-ai/persona-chat/internal/summarizer"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/tracing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server", zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "persona-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := store.Open(ctx, store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return err
	}
	defer st.Close()

	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	jobs := natsclient.NewJobQueue(natsClient, log)
	if err := jobs.EnsureStream(ctx); err != nil {
		return err
	}
	deltas := natsclient.NewDeltaBus(natsClient, log)

	health := map[string]handler.Pinger{"database": st, "nats": natsClient}

	var counters ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		counters = ratelimit.NewRedisStore(rdb)
		health["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		log.Warn("REDIS_ADDR not set, rate limits are per process")
	}

	chat, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	titleKey := cfg.OpenAIAPIKey
	if llm.Provider(cfg.TitleProvider) == llm.ProviderAnthropic {
		titleKey = cfg.AnthropicAPIKey
	}
	titleClient, err := llm.NewClient(llm.Provider(cfg.TitleProvider), titleKey)
	if err != nil {
		return fmt.Errorf("failed to create title client: %w", err)
	}

	searcher := rag.NewSearcher(rag.NewOpenAIEmbedder(chat, cfg.EmbeddingModel), st)
	resolver := identity.NewResolver(identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), st, log)

	threads := service.NewThreadService(service.ThreadDeps{
		Store:     st,
		Identity:  resolver,
		Limiter:   ratelimit.New(counters, cfg.Persona.RateLimits),
		Titles:    summarizer.New(summarizer.NewCachedCompleter(titleClient, st, log), cfg.TitleModel),
		LLM:       chat,
		Tools:     rag.NewTools(searcher, cfg.Persona.Tools),
		Publisher: deltas,
	}, service.Config{
		Model:             cfg.ChatModel,
		SystemPrompt:      cfg.Persona.SystemPrompt,
		StreamThrottle:    cfg.StreamThrottle,
		GenerationTimeout: cfg.GenerationTimeout,
	}, log)
	migration := service.NewMigrationService(st, resolver, log)
	users := service.NewUserSync(st, jobs, log)

	worker := service.NewWorker(notify.NewResend(notify.Config{
		APIKey:     cfg.ResendAPIKey,
		AudienceID: cfg.ResendAudienceID,
		From:       cfg.ResendFrom,
		TestMode:   cfg.TestMode(),
	}, log), log)
	go func() {
		if err := jobs.Consume(ctx, worker.HandleJob); err != nil {
			log.Error("job consumer stopped", zap.Error(err))
		}
	}()

	router := handler.NewRouter(handler.RouterConfig{
		Threads:           handler.NewThreadHandler(threads, log),
		Migration:         handler.NewMigrationHandler(migration, log),
		Webhook:           handler.NewWebhookHandler(cfg.WorkOSWebhookSecret, users, log),
		Stream:            handler.NewStreamHandler(threads, deltas, log),
		Health:            handler.NewHealthHandler(health),
		Logger:            log,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
