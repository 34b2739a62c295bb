// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - Matcher resolution outcomes
// - Verification actions
// - CSV ingest throughput
// - The embedding-service circuit breaker

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	DBConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connection_pool_size",
			Help: "Current number of database connections in use",
		},
	)

	DBWriteConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duckdb_write_conflict_retries_total",
			Help: "Total number of single-statement retries after a transaction conflict",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Matcher Metrics
	MatcherResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matcher_resolutions_total",
			Help: "Total number of resolved (raw_artist, raw_title) pairs by classification",
		},
		[]string{"classification"}, // "auto", "review", "reject"
	)

	MatcherBridgeHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_bridge_hits_total",
			Help: "Total number of signatures resolved straight from the Identity Bridge",
		},
	)

	MatcherVectorQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_vector_queries_total",
			Help: "Total number of signatures that reached the vector-search stage",
		},
	)

	MatcherBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matcher_batch_size",
			Help:    "Number of unique signatures per resolution batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	// Verification Metrics
	VerificationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_actions_total",
			Help: "Total number of operator verification actions",
		},
		[]string{"action", "result"}, // action: "link", "promote", "dismiss", "undo"; result: "success", "failure"
	)

	DiscoveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_queue_depth",
			Help: "Current number of unverified signatures in the Discovery Queue",
		},
	)

	// Ingest Metrics
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Total number of CSV broadcast-log rows processed, by disposition",
		},
		[]string{"disposition"}, // "matched", "unmatched", "review", "dropped"
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Duration of one CSV ingest batch in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordMatcherBatch records the shape of one resolution batch: how many
// unique signatures went in and how many were answered by the bridge
// sweep versus needing vector search.
func RecordMatcherBatch(uniqueSignatures, bridgeHits, vectorQueries int) {
	MatcherBatchSize.Observe(float64(uniqueSignatures))
	MatcherBridgeHits.Add(float64(bridgeHits))
	MatcherVectorQueries.Add(float64(vectorQueries))
}

// RecordMatcherResolution increments the per-classification counter for
// one resolved pair.
func RecordMatcherResolution(classification string) {
	MatcherResolutions.WithLabelValues(classification).Inc()
}

// RecordVerificationAction records an operator action and its outcome.
func RecordVerificationAction(action string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	VerificationActions.WithLabelValues(action, result).Inc()
}

// RecordIngestBatch records the disposition counts of one CSV batch.
func RecordIngestBatch(matched, unmatched, review, dropped int, duration time.Duration) {
	IngestRows.WithLabelValues("matched").Add(float64(matched))
	IngestRows.WithLabelValues("unmatched").Add(float64(unmatched))
	IngestRows.WithLabelValues("review").Add(float64(review))
	IngestRows.WithLabelValues("dropped").Add(float64(dropped))
	IngestBatchDuration.Observe(duration.Seconds())
}
