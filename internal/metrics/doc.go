// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus
client library, exposing metrics for monitoring performance, errors, and system health.

# Overview

The package provides metrics for:
  - API request latency and throughput
  - Database query performance (DuckDB)
  - Matcher resolution outcomes and batch shapes
  - Scanner and re-evaluator progress
  - Operator verification actions
  - CSV ingest throughput
  - Embedding-service circuit breaker state

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:3857/metrics

# Available Metrics

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: Active requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

Database Metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
    Labels: operation, table, error_type
  - duckdb_connection_pool_size: Connections in use (gauge)
  - duckdb_write_conflict_retries_total: Single-statement retries (counter)

Matcher Metrics:
  - matcher_resolutions_total: Resolved pairs (counter)
    Labels: classification (auto, review, reject)
  - matcher_bridge_hits_total: Signatures answered by the Identity Bridge (counter)
  - matcher_vector_queries_total: Signatures that reached vector search (counter)
  - matcher_batch_size: Unique signatures per batch (histogram)

Scanner Metrics:
  - scanner_files_processed_total: Files by outcome (counter)
    Labels: outcome (created, touched, moved, updated, error)
  - scanner_scan_duration_seconds: Full-scan duration (histogram)
  - scanner_commits_skipped_total: Boundary crossings with no pending changes (counter)
  - scanner_proposed_splits_total: Ambiguous collaborations flagged (counter)
  - scanner_cancelled_total: Scans ended by cooperative cancellation (counter)

Re-evaluator Metrics:
  - reevaluator_pairs_processed_total: Distinct pairs re-matched (counter)
  - reevaluator_rows_updated_total: BroadcastLog rows updated (counter)
  - reevaluator_duration_seconds: Pass duration (histogram)

Verification Metrics:
  - verification_actions_total: Operator actions (counter)
    Labels: action (link, promote, dismiss, undo), result (success, failure)
  - discovery_queue_depth: Unverified signatures pending review (gauge)

Ingest Metrics:
  - ingest_rows_total: CSV rows by disposition (counter)
    Labels: disposition (matched, unmatched, review, dropped)
  - ingest_batch_duration_seconds: Per-batch duration (histogram)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through the breaker (counter)
    Labels: name, result
  - circuit_breaker_consecutive_failures: Consecutive failures (gauge)
    Labels: name
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

# Usage Example

Basic setup in main.go:

	import (
	    "github.com/airwave/radio-identity/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    // Register metrics endpoint
	    http.Handle("/metrics", promhttp.Handler())

	    // Record metrics
	    metrics.RecordAPIRequest("GET", "/api/v1/queue", "200", 23*time.Millisecond)
	    metrics.RecordDBQuery("SELECT", "broadcast_logs", 5*time.Millisecond, nil)
	    metrics.RecordMatcherResolution("auto")
	}

Recording database query metrics:

	func (db *DB) listWorks(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	    start := time.Now()
	    rows, err := db.conn.QueryContext(ctx, query, args...)
	    metrics.RecordDBQuery("SELECT", "works", time.Since(start), err)
	    return rows, err
	}

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'airwave'
	    static_configs:
	      - targets: ['localhost:3857']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

Example PromQL queries:

	# API request rate
	rate(api_requests_total[5m])

	# API p95 latency
	histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))

	# Share of pairs auto-matched
	sum(rate(matcher_resolutions_total{classification="auto"}[1h]))
	/
	sum(rate(matcher_resolutions_total[1h]))

	# Scan throughput by outcome
	rate(scanner_files_processed_total[5m])

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:

  - Endpoint labels are normalized (no query parameters)
  - Error types are truncated and limited
  - Raw artist/title strings never become labels

# Alerting Rules

Example Prometheus alerting rules:

	groups:
	  - name: airwave
	    rules:
	      - alert: HighErrorRate
	        expr: |
	          sum(rate(api_requests_total{status_code=~"5.."}[5m]))
	          /
	          sum(rate(api_requests_total[5m]))
	          > 0.05
	        for: 5m
	        annotations:
	          summary: "High error rate: {{ $value }}%"

	      - alert: EmbeddingBackendDown
	        expr: circuit_breaker_state{name="embedding"} == 2
	        for: 2m
	        annotations:
	          summary: "Embedding circuit breaker open; matching degraded to SQL-only"

	      - alert: DiscoveryQueueGrowing
	        expr: delta(discovery_queue_depth[1h]) > 500
	        for: 1h
	        annotations:
	          summary: "Unverified signatures accumulating faster than operators clear them"

# See Also

  - internal/middleware: HTTP middleware with metrics integration
  - internal/vectorindex: Circuit breaker metrics recording
  - internal/scanner, internal/reevaluator: Progress metrics
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
  - https://prometheus.io/docs/practices/instrumentation/: Instrumentation guide
*/
package metrics
