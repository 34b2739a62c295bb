// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// getCounterValue extracts the value from a Prometheus counter
func getCounterValue(counter prometheus.Counter) float64 {
	var m io_prometheus_client.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// getGaugeValue extracts the value from a Prometheus gauge
func getGaugeValue(gauge prometheus.Gauge) float64 {
	var m io_prometheus_client.Metric
	if err := gauge.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// TestRecordDBQuery tests database query metric recording
func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful SELECT query",
			operation: "SELECT",
			table:     "broadcast_logs",
			duration:  10 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "successful INSERT query",
			operation: "INSERT",
			table:     "library_files",
			duration:  5 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "failed query with short error",
			operation: "UPDATE",
			table:     "identity_bridge",
			duration:  100 * time.Millisecond,
			err:       errors.New("connection refused"),
		},
		{
			name:      "failed query with long error - should truncate to 50 chars",
			operation: "DELETE",
			table:     "discovery_queue",
			duration:  50 * time.Millisecond,
			err:       errors.New("this is a very long error message that exceeds fifty characters and should be truncated properly"),
		},
		{
			name:      "fast query under 1ms",
			operation: "SELECT",
			table:     "works",
			duration:  500 * time.Microsecond,
			err:       nil,
		},
		{
			name:      "slow query over 5 seconds",
			operation: "SELECT",
			table:     "verification_audit",
			duration:  5500 * time.Millisecond,
			err:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Record the query - should not panic
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
		})
	}
}

// TestRecordDBQuery_ErrorTruncation verifies error messages are truncated at 50 chars
func TestRecordDBQuery_ErrorTruncation(t *testing.T) {
	err50 := errors.New(strings.Repeat("a", 50))
	RecordDBQuery("SELECT", "test", time.Millisecond, err50)

	err51 := errors.New(strings.Repeat("b", 51))
	RecordDBQuery("SELECT", "test", time.Millisecond, err51)

	err100 := errors.New(strings.Repeat("c", 100))
	RecordDBQuery("SELECT", "test", time.Millisecond, err100)

	errShort := errors.New("err")
	RecordDBQuery("SELECT", "test", time.Millisecond, errShort)
}

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode string
		duration   time.Duration
	}{
		{"queue listing", "GET", "/api/v1/queue", "200", 23 * time.Millisecond},
		{"link action", "POST", "/api/v1/queue/link", "200", 120 * time.Millisecond},
		{"bridge conflict", "POST", "/api/v1/queue/link", "409", 45 * time.Millisecond},
		{"missing audit", "POST", "/api/v1/audit/undo", "404", 8 * time.Millisecond},
		{"threshold update", "PUT", "/api/v1/thresholds", "200", 310 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues(tt.method, tt.endpoint, tt.statusCode))
			RecordAPIRequest(tt.method, tt.endpoint, tt.statusCode, tt.duration)
			after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues(tt.method, tt.endpoint, tt.statusCode))
			if after != before+1 {
				t.Errorf("APIRequestsTotal = %v, want %v", after, before+1)
			}
		})
	}
}

// TestTrackActiveRequest verifies the active-request gauge pairs up
func TestTrackActiveRequest(t *testing.T) {
	before := getGaugeValue(APIActiveRequests)

	TrackActiveRequest(true)
	if got := getGaugeValue(APIActiveRequests); got != before+1 {
		t.Errorf("after inc: %v, want %v", got, before+1)
	}

	TrackActiveRequest(false)
	if got := getGaugeValue(APIActiveRequests); got != before {
		t.Errorf("after dec: %v, want %v", got, before)
	}
}

// TestRecordMatcherBatch verifies the batch-shape counters accumulate
func TestRecordMatcherBatch(t *testing.T) {
	bridgeBefore := getCounterValue(MatcherBridgeHits)
	vectorBefore := getCounterValue(MatcherVectorQueries)

	RecordMatcherBatch(100, 60, 25)

	if got := getCounterValue(MatcherBridgeHits); got != bridgeBefore+60 {
		t.Errorf("MatcherBridgeHits = %v, want %v", got, bridgeBefore+60)
	}
	if got := getCounterValue(MatcherVectorQueries); got != vectorBefore+25 {
		t.Errorf("MatcherVectorQueries = %v, want %v", got, vectorBefore+25)
	}
}

// TestRecordMatcherResolution covers each classification label
func TestRecordMatcherResolution(t *testing.T) {
	for _, classification := range []string{"auto", "review", "reject"} {
		before := testutil.ToFloat64(MatcherResolutions.WithLabelValues(classification))
		RecordMatcherResolution(classification)
		after := testutil.ToFloat64(MatcherResolutions.WithLabelValues(classification))
		if after != before+1 {
			t.Errorf("MatcherResolutions[%s] = %v, want %v", classification, after, before+1)
		}
	}
}

// TestRecordVerificationAction maps nil/non-nil error to success/failure
func TestRecordVerificationAction(t *testing.T) {
	successBefore := testutil.ToFloat64(VerificationActions.WithLabelValues("link", "success"))
	failureBefore := testutil.ToFloat64(VerificationActions.WithLabelValues("link", "failure"))

	RecordVerificationAction("link", nil)
	RecordVerificationAction("link", errors.New("bridge conflict"))

	if got := testutil.ToFloat64(VerificationActions.WithLabelValues("link", "success")); got != successBefore+1 {
		t.Errorf("success count = %v, want %v", got, successBefore+1)
	}
	if got := testutil.ToFloat64(VerificationActions.WithLabelValues("link", "failure")); got != failureBefore+1 {
		t.Errorf("failure count = %v, want %v", got, failureBefore+1)
	}
}

// TestRecordIngestBatch verifies every disposition bucket accumulates
func TestRecordIngestBatch(t *testing.T) {
	dispositions := []string{"matched", "unmatched", "review", "dropped"}
	before := make(map[string]float64, len(dispositions))
	for _, d := range dispositions {
		before[d] = testutil.ToFloat64(IngestRows.WithLabelValues(d))
	}

	RecordIngestBatch(40, 7, 3, 2, 1500*time.Millisecond)

	want := map[string]float64{"matched": 40, "unmatched": 7, "review": 3, "dropped": 2}
	for _, d := range dispositions {
		if got := testutil.ToFloat64(IngestRows.WithLabelValues(d)); got != before[d]+want[d] {
			t.Errorf("IngestRows[%s] = %v, want %v", d, got, before[d]+want[d])
		}
	}
}

// TestRecordScanOutcome covers the per-outcome scanner counter
func TestRecordScanOutcome(t *testing.T) {
	for _, outcome := range []string{"created", "touched", "moved", "skipped", "error"} {
		before := testutil.ToFloat64(ScanFilesProcessed.WithLabelValues(outcome))
		RecordScanOutcome(outcome)
		after := testutil.ToFloat64(ScanFilesProcessed.WithLabelValues(outcome))
		if after != before+1 {
			t.Errorf("ScanFilesProcessed[%s] = %v, want %v", outcome, after, before+1)
		}
	}
}

// TestRecordReevaluation verifies both counters accumulate together
func TestRecordReevaluation(t *testing.T) {
	pairsBefore := getCounterValue(ReevaluatePairsProcessed)
	rowsBefore := getCounterValue(ReevaluateRowsUpdated)

	RecordReevaluation(120, 340, 8*time.Second)

	if got := getCounterValue(ReevaluatePairsProcessed); got != pairsBefore+120 {
		t.Errorf("ReevaluatePairsProcessed = %v, want %v", got, pairsBefore+120)
	}
	if got := getCounterValue(ReevaluateRowsUpdated); got != rowsBefore+340 {
		t.Errorf("ReevaluateRowsUpdated = %v, want %v", got, rowsBefore+340)
	}
}

// TestCircuitBreakerMetrics exercises the breaker gauge/counter family
func TestCircuitBreakerMetrics(t *testing.T) {
	CircuitBreakerState.WithLabelValues("embedding").Set(0)
	CircuitBreakerState.WithLabelValues("embedding").Set(2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("embedding")); got != 2 {
		t.Errorf("CircuitBreakerState = %v, want 2", got)
	}

	before := testutil.ToFloat64(CircuitBreakerRequests.WithLabelValues("embedding", "failure"))
	CircuitBreakerRequests.WithLabelValues("embedding", "failure").Inc()
	if got := testutil.ToFloat64(CircuitBreakerRequests.WithLabelValues("embedding", "failure")); got != before+1 {
		t.Errorf("CircuitBreakerRequests = %v, want %v", got, before+1)
	}

	CircuitBreakerTransitions.WithLabelValues("embedding", "closed", "open").Inc()
	CircuitBreakerConsecutiveFailures.WithLabelValues("embedding").Set(7)
	if got := testutil.ToFloat64(CircuitBreakerConsecutiveFailures.WithLabelValues("embedding")); got != 7 {
		t.Errorf("CircuitBreakerConsecutiveFailures = %v, want 7", got)
	}
}

// TestDiscoveryQueueDepth verifies gauge set/read round-trip
func TestDiscoveryQueueDepth(t *testing.T) {
	DiscoveryQueueDepth.Set(42)
	if got := getGaugeValue(DiscoveryQueueDepth); got != 42 {
		t.Errorf("DiscoveryQueueDepth = %v, want 42", got)
	}
	DiscoveryQueueDepth.Set(0)
}

// TestDBConnectionPoolSize verifies gauge set/read round-trip
func TestDBConnectionPoolSize(t *testing.T) {
	DBConnectionPoolSize.Set(3)
	if got := getGaugeValue(DBConnectionPoolSize); got != 3 {
		t.Errorf("DBConnectionPoolSize = %v, want 3", got)
	}
	DBConnectionPoolSize.Set(0)
}

// TestAppMetrics verifies the info/uptime gauges accept writes
func TestAppMetrics(t *testing.T) {
	AppInfo.WithLabelValues("1.0.0", "go1.24").Set(1)
	AppUptime.Set(120)
	if got := getGaugeValue(AppUptime); got != 120 {
		t.Errorf("AppUptime = %v, want 120", got)
	}
}

// TestConcurrentMetricRecording verifies thread safety under parallel writes
func TestConcurrentMetricRecording(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				RecordDBQuery("SELECT", "works", time.Millisecond, nil)
				RecordMatcherResolution("auto")
				RecordAPIRequest("GET", "/api/v1/queue", "200", time.Millisecond)
				TrackActiveRequest(true)
				TrackActiveRequest(false)
			}
		}()
	}
	wg.Wait()
}

// TestMetricsRegistration confirms every metric family is gatherable from
// the default registry under its expected name.
func TestMetricsRegistration(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	registered := make(map[string]bool, len(families))
	for _, f := range families {
		registered[f.GetName()] = true
	}

	want := []string{
		"duckdb_query_duration_seconds",
		"api_requests_total",
		"api_active_requests",
		"matcher_resolutions_total",
		"matcher_bridge_hits_total",
		"verification_actions_total",
		"ingest_rows_total",
		"scanner_files_processed_total",
		"reevaluator_pairs_processed_total",
		"circuit_breaker_state",
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func BenchmarkRecordDBQuery(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordDBQuery("SELECT", "works", time.Millisecond, nil)
	}
}

func BenchmarkRecordAPIRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAPIRequest("GET", "/api/v1/queue", "200", time.Millisecond)
	}
}

func BenchmarkRecordMatcherResolution(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordMatcherResolution("auto")
	}
}
