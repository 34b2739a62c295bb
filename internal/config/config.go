// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads Airwave's configuration: koanf-layered defaults
// -> optional YAML file -> environment overrides, producing one
// immutable Config read at startup.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Scanner   ScannerConfig   `koanf:"scanner"`
	Threshold ThresholdConfig `koanf:"threshold"`
	Logging   LoggingConfig   `koanf:"logging"`
	Vector    VectorConfig    `koanf:"vector"`
}

// DatabaseConfig configures the embedded DuckDB catalog store.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	Threads                int    `koanf:"threads"`
	MaxMemory              string `koanf:"max_memory"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// SkipIndexes skips secondary index creation at startup. Set by
	// tests that build a throwaway database and don't need query
	// performance; CreateIndexes() remains available as an explicit
	// override.
	SkipIndexes bool `koanf:"-"`
}

// ServerConfig configures the thin operator-surface HTTP mount
// (internal/api).
type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace"`
}

// ScannerConfig holds the filesystem Scanner's concurrency and batching
// tunables.
type ScannerConfig struct {
	RootPath           string        `koanf:"root_path"`
	MaxConcurrentFiles int           `koanf:"max_concurrent_files"`
	CommitInterval     int           `koanf:"commit_interval"`
	TouchBatchSize     int           `koanf:"touch_batch_size"`
	VectorBatchSize    int           `koanf:"vector_batch_size"`
	MissingChunkSize   int           `koanf:"missing_chunk_size"`
	CancelPollFiles    int           `koanf:"cancel_poll_files"`
	ExceptionsPath     string        `koanf:"exceptions_path"`

	// ScanInterval drives the Scanner's periodic-sync service loop. A
	// scan can also be triggered explicitly through the operator surface.
	ScanInterval time.Duration `koanf:"scan_interval"`

	// ReevaluateInterval drives the Re-evaluator's periodic pass. An
	// explicit threshold update also triggers an immediate pass
	// independent of this ticker.
	ReevaluateInterval time.Duration `koanf:"reevaluate_interval"`
}

// VectorConfig configures the embedding-model client behind the
// VectorIndex, including the circuit breaker guarding
// that network call.
type VectorConfig struct {
	Endpoint           string        `koanf:"endpoint"`
	Dimensions         int           `koanf:"dimensions"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
	IndexPath          string        `koanf:"index_path"`

	// SnapshotInterval is how often the in-memory index is persisted
	// to IndexPath. Embeddings added between a snapshot and a crash
	// are re-derived by the next scan, so this trades snapshot I/O
	// against re-embedding work, not against correctness.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

// LoggingConfig controls output level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ThresholdConfig holds the Matcher's classification thresholds and the
// work-dedup fuzzy-match tunables. This struct is also
// persisted row-for-field in the catalog database and mirrored to an
// atomic in-memory snapshot by internal/thresholdstore; Config carries
// only the boot-time defaults used to seed that table on first run.
type ThresholdConfig struct {
	ArtistAuto        float64 `koanf:"artist_auto"`
	ArtistReview      float64 `koanf:"artist_review"`
	TitleAuto         float64 `koanf:"title_auto"`
	TitleReview       float64 `koanf:"title_review"`
	VectorStrong      float64 `koanf:"vector_strong"`
	VectorTitleGuard  float64 `koanf:"vector_title_guard"`
	TitleVector       float64 `koanf:"title_vector"`
	TitleVectorDist   float64 `koanf:"title_vector_dist"`

	// VectorTitleGuardSet records whether VectorTitleGuard was explicitly
	// configured; when false, Normalize derives it as 0.8 * TitleReview.
	VectorTitleGuardSet bool `koanf:"-"`

	WorkFuzzyMaxWorks  int     `koanf:"work_fuzzy_max_works"`
	WorkFuzzyThreshold float64 `koanf:"work_fuzzy_threshold"`
}

// Normalize derives VectorTitleGuard when it was not explicitly set and
// validates the review <= auto ordering invariant.
func (t *ThresholdConfig) Normalize() error {
	if !t.VectorTitleGuardSet && t.VectorTitleGuard == 0 {
		t.VectorTitleGuard = 0.8 * t.TitleReview
	}
	return t.Validate()
}

// Validate enforces "review thresholds <= auto thresholds".
func (t *ThresholdConfig) Validate() error {
	if t.ArtistReview > t.ArtistAuto {
		return fmt.Errorf("threshold invariant violated: artist_review (%v) > artist_auto (%v)", t.ArtistReview, t.ArtistAuto)
	}
	if t.TitleReview > t.TitleAuto {
		return fmt.Errorf("threshold invariant violated: title_review (%v) > title_auto (%v)", t.TitleReview, t.TitleAuto)
	}
	if t.WorkFuzzyMaxWorks <= 0 {
		return fmt.Errorf("work_fuzzy_max_works must be positive, got %d", t.WorkFuzzyMaxWorks)
	}
	if t.WorkFuzzyThreshold <= 0 || t.WorkFuzzyThreshold > 1 {
		return fmt.Errorf("work_fuzzy_threshold must be in (0,1], got %v", t.WorkFuzzyThreshold)
	}
	return nil
}
