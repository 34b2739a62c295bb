// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
database_extensions.go - DuckDB Extension Installation

Airwave uses three DuckDB extensions:
  - icu: timezone-aware TIMESTAMPTZ columns on BroadcastLog and
    VerificationAudit, and collation-aware text comparisons.
  - json: flexible array-valued columns (ProposedSplit.proposed_artists,
    VerificationAudit.log_ids, FormatPreference.exclude_tags).
  - rapidfuzz: SQL-side fuzzy candidate shortlisting backing the Work
    dedup ratio check (search_fuzzy.go); Go-side matchutil.Ratio performs
    the final scoring so the part-number asymmetry rule can be enforced.

httpfs is installed first because it is the community-extension
download transport; rapidfuzz is a community extension and depends on
it being loaded.

Installation Strategy:
Each extension follows a fallback installation pattern:
 1. Try INSTALL <extension>
 2. If install fails, try LOAD <extension> (may already be installed)
 3. If load fails, try FORCE INSTALL <extension>
 4. If optional=true and all fail, disable feature gracefully

Environment Variables:
  - DUCKDB_EXTENSIONS_OPTIONAL=true: allow startup without icu/json (testing only)
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/airwave/radio-identity/internal/logging"
)

// communityExtensionTimeout is the hard timeout for community extension
// operations. CGO calls don't respect context cancellation, so we need
// goroutine-based timeouts. Overridable via DUCKDB_EXTENSION_TIMEOUT.
var communityExtensionTimeout = getExtensionTimeout()

// extensionRetryConfig controls retry behavior for extension operations.
type extensionRetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BackoffMult float64
}

// defaultRetryConfig provides sensible defaults for extension loading retries.
var defaultRetryConfig = extensionRetryConfig{
	MaxRetries:  3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
	BackoffMult: 2.0,
}

func getExtensionTimeout() time.Duration {
	if timeoutStr := os.Getenv("DUCKDB_EXTENSION_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// duckdbVersion is the DuckDB version used for extension paths; must
// match the duckdb-go-bindings version in go.mod.
const duckdbVersion = "v1.4.3"

// isExtensionInstalledLocally checks if an extension file exists in the
// local DuckDB extension directory, letting us skip network INSTALL
// commands when extensions are pre-installed.
func isExtensionInstalledLocally(extensionName string) bool {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return false
	}

	platform := runtime.GOOS + "_" + runtime.GOARCH
	extPath := filepath.Join(homeDir, ".duckdb", "extensions", duckdbVersion, platform, extensionName+".duckdb_extension")

	_, err = os.Stat(extPath)
	return err == nil
}

type execResult struct {
	err error
}

type queryResult struct {
	value interface{}
	err   error
}

// execWithHardTimeout executes a SQL statement with a goroutine-based
// hard timeout, necessary because DuckDB CGO calls don't respect
// context cancellation.
func (db *DB) execWithHardTimeout(query string) error {
	resultCh := make(chan execResult, 1)

	ctx, cancel := extensionContext()
	defer cancel()

	go func() {
		_, err := db.conn.ExecContext(ctx, query)
		resultCh <- execResult{err: err}
	}()

	select {
	case result := <-resultCh:
		return result.err
	case <-time.After(communityExtensionTimeout):
		return fmt.Errorf("operation timed out after %v", communityExtensionTimeout)
	}
}

// queryRowWithHardTimeout executes a query and scans a single value
// with a hard timeout.
func (db *DB) queryRowWithHardTimeout(query string) (interface{}, error) {
	resultCh := make(chan queryResult, 1)

	ctx, cancel := extensionContext()
	defer cancel()

	go func() {
		var result interface{}
		err := db.conn.QueryRowContext(ctx, query).Scan(&result)
		resultCh <- queryResult{value: result, err: err}
	}()

	select {
	case result := <-resultCh:
		return result.value, result.err
	case <-time.After(communityExtensionTimeout):
		return nil, fmt.Errorf("query timed out after %v", communityExtensionTimeout)
	}
}

// execWithRetry executes a SQL statement with retry logic and
// exponential backoff, handling transient network failures when
// downloading extensions.
func (db *DB) execWithRetry(query string, config extensionRetryConfig) error {
	var lastErr error
	delay := config.BaseDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("query", query).
				Msg("Retrying extension operation")
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * config.BackoffMult)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		err := db.execWithHardTimeout(query)
		if err == nil {
			return nil
		}
		lastErr = err

		errStr := err.Error()
		isRetryable := strings.Contains(errStr, "timed out") ||
			strings.Contains(errStr, "timeout") ||
			strings.Contains(errStr, "connection refused") ||
			strings.Contains(errStr, "503") ||
			strings.Contains(errStr, "temporary failure")

		if !isRetryable {
			return err
		}

		logging.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxRetries+1).
			Msg("Extension operation failed, will retry")
	}

	return fmt.Errorf("extension operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

type extensionInstaller func(optional bool) error

func installExtension(installer extensionInstaller, optional bool) error {
	if err := installer(optional); err != nil && !optional {
		return err
	}
	return nil
}

// installExtensions installs and loads icu, json, and (outside CI)
// rapidfuzz.
func (db *DB) installExtensions() error {
	extensionsOptional := os.Getenv("DUCKDB_EXTENSIONS_OPTIONAL") == "true"
	isCI := os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""

	if err := db.configureExtensionRepository(); err != nil {
		logging.Warn().Err(err).Msg("Failed to set custom extension repository, will use default")
	}

	if err := db.installHttpfs(); err != nil {
		logging.Warn().Err(err).Msg("Failed to install/load httpfs extension, rapidfuzz download may fail")
	}

	coreExtensions := []extensionInstaller{
		db.installICU,
		db.installJSON,
	}
	for _, installer := range coreExtensions {
		if err := installExtension(installer, extensionsOptional); err != nil {
			return err
		}
	}

	// In CI, skip the community extension: CGO LOAD calls cannot be
	// interrupted by Go context cancellation or timeouts, so a network
	// download hanging there blocks the whole process.
	if isCI {
		db.rapidfuzzAvailable = false
		return nil
	}

	return db.installRapidFuzzIfLocal(true)
}

// configureExtensionRepository sets HTTPS for extension downloads.
func (db *DB) configureExtensionRepository() error {
	return db.execWithHardTimeout("SET custom_extension_repository = 'https://extensions.duckdb.org';")
}

// installHttpfs installs the httpfs extension, the download transport
// for community extensions like rapidfuzz.
func (db *DB) installHttpfs() error {
	if isExtensionInstalledLocally("httpfs") {
		logging.Debug().Msg("httpfs extension found locally")
	}

	if err := db.execWithRetry("INSTALL httpfs;", defaultRetryConfig); err != nil {
		if loadErr := db.execWithHardTimeout("LOAD httpfs;"); loadErr != nil {
			return fmt.Errorf("httpfs install error: %w, load error: %w", err, loadErr)
		}
		return nil
	}
	return db.execWithHardTimeout("LOAD httpfs;")
}

// installICU installs the ICU extension for timezone support.
func (db *DB) installICU(optional bool) error {
	spec := &extensionSpec{
		Name:              "icu",
		VerifyQuery:       "SELECT timezone('America/New_York', TIMESTAMP '2024-01-01 12:00:00')::VARCHAR",
		AvailabilityField: func(db *DB) *bool { return &db.icuAvailable },
		WarningMessage:    "ICU extension unavailable, timezone-aware timestamp columns will fall back to naive TIMESTAMP",
	}
	return db.installCoreExtension(spec, optional)
}

// installJSON installs the JSON extension for array-valued columns.
func (db *DB) installJSON(optional bool) error {
	spec := &extensionSpec{
		Name:              "json",
		VerifyQuery:       "SELECT json_extract('{\"name\":\"test\"}', '$.name')::VARCHAR",
		AvailabilityField: func(db *DB) *bool { return &db.jsonAvailable },
		WarningMessage:    "JSON extension unavailable, array-valued JSON columns have no fallback storage",
	}
	return db.installCoreExtension(spec, optional)
}

// installRapidFuzz installs the RapidFuzz community extension backing
// the Work-dedup fuzzy shortlist and search_fuzzy.go.
func (db *DB) installRapidFuzz(optional bool) error {
	spec := &extensionSpec{
		Name:              "rapidfuzz",
		Community:         true,
		VerifyQuery:       "SELECT rapidfuzz_ratio('hello', 'helo')",
		AvailabilityField: func(db *DB) *bool { return &db.rapidfuzzAvailable },
		WarningMessage:    "RapidFuzz extension unavailable, Work dedup will fall back to Go-side matchutil.Ratio over an unscored, title-ordered, capped artist-scoped listing",
	}
	return db.installCommunityExtension(spec, optional)
}

// installRapidFuzzIfLocal installs rapidfuzz only if it's already
// locally installed, preventing CGO hangs from network downloads.
func (db *DB) installRapidFuzzIfLocal(optional bool) error {
	if !isExtensionInstalledLocally("rapidfuzz") {
		db.rapidfuzzAvailable = false
		logging.Info().Msg("rapidfuzz extension not found locally, Work dedup will use Go-side scoring only")
		return nil
	}
	return db.installRapidFuzz(optional)
}
