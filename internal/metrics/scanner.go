// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Scanner Metrics
// =============================================================================

var (
	ScanFilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_files_processed_total",
			Help: "Total number of files processed by a scan, by outcome",
		},
		[]string{"outcome"}, // "created", "touched", "moved", "updated", "error"
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanner_scan_duration_seconds",
			Help:    "Duration of a full scan in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)

	ScanCommitsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_commits_skipped_total",
			Help: "Total number of commit-interval boundaries crossed with no pending changes",
		},
	)

	ScanProposedSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_proposed_splits_total",
			Help: "Total number of ambiguous collaboration artists flagged for review",
		},
	)

	ScanCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_cancelled_total",
			Help: "Total number of scans that ended via cooperative cancellation",
		},
	)

	// =============================================================================
	// Re-evaluator Metrics
	// =============================================================================

	ReevaluatePairsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reevaluator_pairs_processed_total",
			Help: "Total number of distinct (raw_artist, raw_title) pairs re-matched",
		},
	)

	ReevaluateRowsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reevaluator_rows_updated_total",
			Help: "Total number of BroadcastLog rows updated by a re-evaluation pass",
		},
	)

	ReevaluateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reevaluator_duration_seconds",
			Help:    "Duration of a re-evaluation pass in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900},
		},
	)
)

// RecordScanOutcome increments the per-outcome file counter.
func RecordScanOutcome(outcome string) {
	ScanFilesProcessed.WithLabelValues(outcome).Inc()
}

// RecordScanDuration records the wall-clock duration of a completed scan.
func RecordScanDuration(d time.Duration) {
	ScanDuration.Observe(d.Seconds())
}

// RecordReevaluation records the shape of a completed re-evaluation pass.
func RecordReevaluation(pairs, rowsUpdated int, d time.Duration) {
	ReevaluatePairsProcessed.Add(float64(pairs))
	ReevaluateRowsUpdated.Add(float64(rowsUpdated))
	ReevaluateDuration.Observe(d.Seconds())
}
