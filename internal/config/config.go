// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/persona-chat/internal/rag"
	"github.com/capitalize-ai/persona-chat/internal/ratelimit"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AppEnv             string
	CORSOrigins        []string

	// Database settings
	DBDriver string
	DBDSN    string

	// Redis settings. An empty address keeps rate-limit counters in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Session tokens
	JWTSecret string
	JWTIssuer string

	// WorkOS settings
	WorkOSClientID      string
	WorkOSAPIKey        string
	WorkOSWebhookSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	ChatModel       string
	TitleProvider   string
	TitleModel      string
	EmbeddingModel  string

	// Resend settings
	ResendAPIKey     string
	ResendAudienceID string
	ResendFrom       string

	// Per-IP HTTP guard
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Generation
	GenerationTimeout time.Duration
	StreamThrottle    time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Overlay from CONFIG_FILE
	ConfigFile string
	Persona    Persona
}

// Persona is the YAML overlay: the assistant's voice, its tools and the
// per-operation rate rules.
type Persona struct {
	SystemPrompt string                    `yaml:"system_prompt"`
	Tools        []rag.ToolSpec            `yaml:"tools"`
	RateLimits   map[string]ratelimit.Rule `yaml:"rate_limits"`
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, the YAML overlay it names.
func Load() (*Config, error) {
	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		AppEnv:             getEnv("APP_ENV", "production"),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS"),

		// Database
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "file:persona-chat.db?_pragma=busy_timeout(5000)"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		// WorkOS
		WorkOSClientID:      getEnv("WORKOS_CLIENT_ID", ""),
		WorkOSAPIKey:        getEnv("WORKOS_API_KEY", ""),
		WorkOSWebhookSecret: getEnv("WORKOS_WEBHOOK_SECRET", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-4o-mini"),
		TitleProvider:   getEnv("TITLE_PROVIDER", "openai"),
		TitleModel:      getEnv("TITLE_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		// Resend
		ResendAPIKey:     getEnv("RESEND_API_KEY", ""),
		ResendAudienceID: getEnv("RESEND_AUDIENCE_ID", ""),
		ResendFrom:       getEnv("RESEND_FROM", "Capitalize <hello@capitalize.ai>"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Generation
		GenerationTimeout: getDurationEnv("GENERATION_TIMEOUT", 2*time.Minute),
		StreamThrottle:    getDurationEnv("STREAM_THROTTLE", 800*time.Millisecond),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		ConfigFile: getEnv("CONFIG_FILE", ""),
		Persona: Persona{
			Tools:      rag.DefaultTools(),
			RateLimits: ratelimit.DefaultRules(),
		},
	}

	if cfg.ConfigFile != "" {
		if err := cfg.loadOverlay(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// TestMode reports whether outgoing email goes to the provider's test inbox.
func (c *Config) TestMode() bool {
	return c.AppEnv == "test"
}

func (c *Config) loadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay Persona
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if overlay.SystemPrompt != "" {
		c.Persona.SystemPrompt = overlay.SystemPrompt
	}
	if len(overlay.Tools) > 0 {
		c.Persona.Tools = overlay.Tools
	}
	for op, rule := range overlay.RateLimits {
		if rule.Rate <= 0 || rule.Period <= 0 {
			return fmt.Errorf("invalid rate limit for %s: rate and period must be positive", op)
		}
		c.Persona.RateLimits[op] = rule
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
