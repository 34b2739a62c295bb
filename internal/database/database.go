// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/logging"
)

// DB wraps the embedded DuckDB connection backing the CatalogStore.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// sqlxOnce/sqlxConn back the export queries' tagged-struct scanning
	// (export_queries.go); every other query in this package uses conn
	// directly, so this is built lazily rather than at New.
	sqlxOnce sync.Once
	sqlxConn *sqlx.DB

	icuAvailable       bool // timezone-aware TIMESTAMPTZ columns on BroadcastLog/Audit
	jsonAvailable      bool // JSON columns for ProposedSplit.proposed_artists, Audit.log_ids
	rapidfuzzAvailable bool // SQL-side fuzzy candidate shortlisting (search_fuzzy.go)

	// writeMu serializes mutating CatalogStore operations. DuckDB
	// supports only one writer connection at a time; holding this for
	// the duration of a single statement or transaction keeps retries
	// scoped to that statement rather than the whole caller batch.
	writeMu sync.Mutex

	maxReconnectTries int
	reconnectDelay    time.Duration
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// CRITICAL: Preload extensions BEFORE opening the main database.
	// When DuckDB opens a database file, it immediately replays the WAL.
	// If the WAL contains ALTER TABLE statements that use extension
	// functions (e.g. TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP from ICU),
	// WAL replay fails with "GetDefaultDatabase with no default database
	// set" if extensions aren't loaded yet. Loading them in an in-memory
	// database first caches them per-process, making them available
	// when we open the main database file for WAL replay.
	if err := preloadExtensions(); err != nil {
		logging.Warn().Err(err).Msg("Failed to preload extensions, WAL replay may fail if database has pending changes")
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments; extensions are explicitly loaded by
	// installExtensions() with proper timeout handling.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:               conn,
		cfg:                cfg,
		icuAvailable:       true,
		jsonAvailable:      true,
		rapidfuzzAvailable: true,
		maxReconnectTries:  3,
		reconnectDelay:     2 * time.Second,
	}

	if err := db.configureConnectionPool(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to configure connection pool: %w", err)
	}

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.enableProfiling(); err != nil {
		logging.Warn().Err(err).Msg("Query profiling not enabled")
	}

	return db, nil
}

// IsICUAvailable returns whether the icu extension is available.
func (db *DB) IsICUAvailable() bool {
	return db.icuAvailable
}

// IsJSONAvailable returns whether the json extension is available.
func (db *DB) IsJSONAvailable() bool {
	return db.jsonAvailable
}

// IsRapidFuzzAvailable returns whether the rapidfuzz extension is available.
func (db *DB) IsRapidFuzzAvailable() bool {
	return db.rapidfuzzAvailable
}

// Conn returns the underlying SQL database connection for packages that
// need direct access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// preloadExtensions loads DuckDB extensions in an in-memory database
// before opening the main database file, ensuring they are available
// during WAL replay. DuckDB caches loaded extensions per-process, so
// once loaded anywhere they become available for all connections.
func preloadExtensions() error {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		logging.Debug().Msg("Skipping extension preload in CI environment")
		return nil
	}

	logging.Debug().Msg("Preloading DuckDB extensions for WAL replay compatibility")

	conn, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return fmt.Errorf("failed to open in-memory database for extension preload: %w", err)
	}
	defer func() {
		conn.SetConnMaxLifetime(0)
		conn.SetMaxIdleConns(0)
		conn.SetMaxOpenConns(0)
		closeQuietly(conn)
	}()

	for _, ext := range []string{"icu", "json"} {
		if !isExtensionInstalledLocally(ext) {
			logging.Debug().Str("extension", ext).Msg("Extension not installed locally, skipping preload")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := conn.ExecContext(ctx, fmt.Sprintf("LOAD %s;", ext))
		cancel()

		if err != nil {
			logging.Debug().Str("extension", ext).Err(err).Msg("Failed to preload extension")
		} else {
			logging.Debug().Str("extension", ext).Msg("Extension preloaded successfully")
		}
	}

	return nil
}

// Close closes the database connection, forcing a checkpoint first to
// flush the WAL to the main database file. This prevents WAL replay
// issues on next startup caused by a DuckDB bug where replaying CREATE
// TABLE statements with TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP can fail
// with "GetDefaultDatabase with no default database set" errors.
func (db *DB) Close() error {
	if db.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()

		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// initialize creates tables and installs required extensions.
func (db *DB) initialize() error {
	if err := db.installExtensions(); err != nil {
		return err
	}

	if err := db.createTables(); err != nil {
		return err
	}

	if err := db.runVersionedMigrations(); err != nil {
		return err
	}

	if err := db.createIndexes(); err != nil {
		return err
	}

	// Force a checkpoint after schema initialization to flush the WAL.
	// This prevents a DuckDB bug where WAL replay of CREATE TABLE
	// statements with TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP fails with
	// "GetDefaultDatabase with no default database set" errors.
	checkpointCtx, checkpointCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer checkpointCancel()
	if err := db.Checkpoint(checkpointCtx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}

	return nil
}
