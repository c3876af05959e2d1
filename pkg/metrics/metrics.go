// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks a full generation, tool steps included.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM generation duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ToolCallsTotal tracks retrieval tool invocations.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tool_calls_total",
			Help: "Tool calls made by the model",
		},
		[]string{"tool", "status"},
	)

	// TitleCacheLookups tracks title cache hits and misses.
	TitleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "title_cache_lookups_total",
			Help: "Title summary cache lookups",
		},
		[]string{"result"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ThreadsTotal tracks threads created.
	ThreadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threads_total",
			Help: "Total threads created",
		},
		[]string{"owner"},
	)

	// MessagesTotal tracks messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role", "status"},
	)

	// RateLimitRejections tracks calls rejected by the operation limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Calls rejected by the rate limiter",
		},
		[]string{"operation"},
	)

	// MigratedThreads tracks per-thread migration outcomes.
	MigratedThreads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrated_threads_total",
			Help: "Threads processed by anonymous user migration",
		},
		[]string{"result"},
	)

	// JobsTotal tracks background jobs handled by the worker.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Background jobs processed",
		},
		[]string{"kind", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordMigration records one migration run.
func RecordMigration(migrated, processed int) {
	MigratedThreads.WithLabelValues("migrated").Add(float64(migrated))
	MigratedThreads.WithLabelValues("failed").Add(float64(processed - migrated))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
