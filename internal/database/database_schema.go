// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
database_schema.go - Database Schema Management

Tables:
  - artists, works, work_artists, recordings, library_files: the catalog
    hierarchy Artist -> Work -> Recording -> LibraryFile.
  - stations, broadcast_logs: the ingest side — one row per play event.
  - identity_bridge, discovery_queue: the learning structures the
    Matcher and VerificationService read and mutate.
  - verification_audit: the append-only undo log.
  - station_preferences, format_preferences, work_default_recordings:
    the RecordingResolver's priority ladder.
  - proposed_splits, artist_aliases: human-review side tables for
    ambiguous collaboration strings and canonical-name mapping.
  - threshold_config: the single persisted row mirrored to the
    in-memory atomic snapshot.

Schema Strategy (Pre-Release):
All columns are defined in the initial CREATE TABLE statements; see
migrations.go for the post-release incremental-change strategy.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
func (db *DB) getTableCreationQueries() []string {
	return []string{
		// Artist: created by Scanner/Verification; never deleted while
		// any Work references it.
		`CREATE TABLE IF NOT EXISTS artists (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			musicbrainz_id TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_artists_name ON artists(name);`,

		// Work: the abstract composition. Uniqueness of (title,
		// primary_artist_id) is enforced in application code by
		// upsert_work's exact-then-fuzzy lookup, not a SQL
		// unique constraint, because the fuzzy path intentionally
		// allows two distinct Works with near-identical titles when
		// part numbers disagree. part_kind /
		// part_number cache the Normalizer's extract_part_number result
		// so upsert_work's asymmetry check does not re-parse the title
		// on every candidate comparison.
		`CREATE TABLE IF NOT EXISTS works (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			primary_artist_id UUID REFERENCES artists(id),
			is_instrumental BOOLEAN NOT NULL DEFAULT FALSE,
			part_kind TEXT,
			part_number INTEGER,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_works_primary_artist ON works(primary_artist_id);`,
		`CREATE INDEX IF NOT EXISTS idx_works_title ON works(title);`,

		// WorkArtist: bridges multi-artist Works. Idempotent linking is
		// enforced by the composite primary key.
		`CREATE TABLE IF NOT EXISTS work_artists (
			work_id UUID NOT NULL REFERENCES works(id),
			artist_id UUID NOT NULL REFERENCES artists(id),
			role TEXT NOT NULL CHECK (role IN ('primary', 'featured')),
			PRIMARY KEY (work_id, artist_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_artists_artist ON work_artists(artist_id);`,

		// Recording: a concrete rendition of a Work.
		`CREATE TABLE IF NOT EXISTS recordings (
			id UUID PRIMARY KEY,
			work_id UUID NOT NULL REFERENCES works(id),
			title TEXT NOT NULL,
			version_type TEXT NOT NULL DEFAULT 'original',
			duration_ms INTEGER,
			isrc TEXT,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_work ON recordings(work_id);`,

		// LibraryFile: a physical audio file on disk, unique by its
		// forward-slash-normalized path.
		`CREATE TABLE IF NOT EXISTS library_files (
			id UUID PRIMARY KEY,
			recording_id UUID NOT NULL REFERENCES recordings(id),
			path TEXT NOT NULL,
			file_hash TEXT,
			size BIGINT NOT NULL,
			mtime TIMESTAMPTZ,
			format TEXT,
			bitrate INTEGER,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_library_files_path ON library_files(path);`,
		`CREATE INDEX IF NOT EXISTS idx_library_files_recording ON library_files(recording_id);`,

		// Station: a broadcast source.
		`CREATE TABLE IF NOT EXISTS stations (
			id UUID PRIMARY KEY,
			callsign TEXT NOT NULL,
			format_code TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stations_callsign ON stations(callsign);`,

		// BroadcastLog: a single play event. work_id is nullable: null
		// means unmatched.
		`CREATE TABLE IF NOT EXISTS broadcast_logs (
			id UUID PRIMARY KEY,
			station_id UUID NOT NULL REFERENCES stations(id),
			played_at TIMESTAMPTZ NOT NULL,
			raw_artist TEXT NOT NULL,
			raw_title TEXT NOT NULL,
			work_id UUID REFERENCES works(id),
			match_reason TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_station_played ON broadcast_logs(station_id, played_at);`,
		`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_work ON broadcast_logs(work_id);`,
		`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_unmatched ON broadcast_logs(work_id, match_reason);`,

		// IdentityBridge: durable signature -> Work cache with
		// revocation. log_signature is unique across both active and
		// revoked rows so lookup_active/create/revive can tell the
		// difference between "no bridge" and "revoked bridge".
		`CREATE TABLE IF NOT EXISTS identity_bridge (
			id UUID PRIMARY KEY,
			log_signature TEXT NOT NULL,
			reference_artist TEXT NOT NULL,
			reference_title TEXT NOT NULL,
			work_id UUID NOT NULL REFERENCES works(id),
			confidence DOUBLE NOT NULL,
			is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_identity_bridge_signature ON identity_bridge(log_signature);`,

		// DiscoveryQueue: aggregated counter of unmatched signatures.
		`CREATE TABLE IF NOT EXISTS discovery_queue (
			signature TEXT PRIMARY KEY,
			raw_artist TEXT NOT NULL,
			raw_title TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 1,
			suggested_work_id UUID REFERENCES works(id),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,

		// VerificationAudit: append-only, is_undone flips at most once.
		// log_ids is a JSON array of BroadcastLog UUID strings — the
		// json extension backs this column (see database_extensions.go).
		`CREATE TABLE IF NOT EXISTS verification_audit (
			id UUID PRIMARY KEY,
			action_type TEXT NOT NULL,
			signature TEXT NOT NULL,
			raw_artist TEXT NOT NULL,
			raw_title TEXT NOT NULL,
			work_id UUID REFERENCES works(id),
			log_ids JSON,
			bridge_id UUID,
			is_undone BOOLEAN NOT NULL DEFAULT FALSE,
			undone_at TIMESTAMPTZ,
			performed_by TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_verification_audit_signature ON verification_audit(signature);`,
		`CREATE INDEX IF NOT EXISTS idx_verification_audit_created ON verification_audit(created_at);`,

		// Policy tables backing the RecordingResolver priority ladder.
		`CREATE TABLE IF NOT EXISTS station_preferences (
			station_id UUID NOT NULL REFERENCES stations(id),
			work_id UUID NOT NULL REFERENCES works(id),
			preferred_recording_id UUID NOT NULL REFERENCES recordings(id),
			priority INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (station_id, work_id, preferred_recording_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_station_preferences_lookup ON station_preferences(station_id, work_id);`,

		`CREATE TABLE IF NOT EXISTS format_preferences (
			format_code TEXT NOT NULL,
			work_id UUID NOT NULL REFERENCES works(id),
			preferred_recording_id UUID NOT NULL REFERENCES recordings(id),
			priority INTEGER NOT NULL DEFAULT 0,
			exclude_tags JSON,
			PRIMARY KEY (format_code, work_id, preferred_recording_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_format_preferences_lookup ON format_preferences(format_code, work_id);`,

		`CREATE TABLE IF NOT EXISTS work_default_recordings (
			work_id UUID PRIMARY KEY REFERENCES works(id),
			default_recording_id UUID NOT NULL REFERENCES recordings(id)
		);`,

		// ProposedSplit: surfaces ambiguous collaboration strings.
		`CREATE TABLE IF NOT EXISTS proposed_splits (
			id UUID PRIMARY KEY,
			raw_artist TEXT NOT NULL,
			proposed_artists JSON NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			confidence DOUBLE NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_proposed_splits_raw_artist ON proposed_splits(raw_artist);`,

		// ArtistAlias: canonical-form mapping consulted before matching.
		`CREATE TABLE IF NOT EXISTS artist_aliases (
			raw_name TEXT PRIMARY KEY,
			resolved_name TEXT,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_null BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,

		// ThresholdConfig: singleton row, write-through mirrored to an
		// in-memory atomic snapshot by internal/thresholdstore.
		`CREATE TABLE IF NOT EXISTS threshold_config (
			id INTEGER PRIMARY KEY DEFAULT 1,
			artist_auto DOUBLE NOT NULL,
			artist_review DOUBLE NOT NULL,
			title_auto DOUBLE NOT NULL,
			title_review DOUBLE NOT NULL,
			vector_strong DOUBLE NOT NULL,
			vector_title_guard DOUBLE NOT NULL,
			title_vector DOUBLE NOT NULL,
			title_vector_dist DOUBLE NOT NULL,
			work_fuzzy_max_works INTEGER NOT NULL,
			work_fuzzy_threshold DOUBLE NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}

// createIndexes creates database indexes for query optimization. Skips
// index creation if cfg.SkipIndexes is true (for fast test setup).
func (db *DB) createIndexes() error {
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}
	return db.doCreateIndexes()
}

// CreateIndexes creates all database indexes. Exposed for tests that
// specifically need indexes; most tests should use SkipIndexes: true.
func (db *DB) CreateIndexes() error {
	return db.doCreateIndexes()
}

func (db *DB) doCreateIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}

	return nil
}

// getIndexQueries returns secondary index creation SQL statements
// beyond the ones declared inline with their tables above.
func (db *DB) getIndexQueries() []string {
	return []string{
		// Re-evaluator's scan for unmatched/review logs.
		`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_review ON broadcast_logs(match_reason) WHERE match_reason LIKE '%Review%';`,

		// Bridges by the Work they point to.
		`CREATE INDEX IF NOT EXISTS idx_identity_bridge_work ON identity_bridge(work_id);`,
	}
}
