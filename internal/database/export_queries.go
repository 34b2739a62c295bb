// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
export_queries.go - Read-side support for internal/export.

The export join (broadcast_logs -> stations -> works -> artists) is a
plain read query with no write-lock concerns, so it is the one place
in this package that reaches for github.com/jmoiron/sqlx's struct-tag
scanning instead of the manual rows.Scan the rest of the CRUD files
use: the export row has nine columns and no caller needs the
intermediate domain structs, so a tagged struct is strictly less code
than hand-written scanning, and sqlx already wraps the same *sql.DB
this package opened.
*/
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ExportRow is one broadcast log joined out to its station and
// (if resolved) matched artist/title, shaped for both CSV and M3U
// export.
type ExportRow struct {
	PlayedAt      time.Time  `db:"played_at"`
	Station       string     `db:"station"`
	RawArtist     string     `db:"raw_artist"`
	RawTitle      string     `db:"raw_title"`
	MatchedArtist *string    `db:"matched_artist"`
	MatchedTitle  *string    `db:"matched_title"`
	MatchReason   *string    `db:"match_reason"`
	WorkID        *uuid.UUID `db:"work_id"`
	RecordingID   *uuid.UUID `db:"recording_id"`
}

// ExportFilter narrows a chronological export to a time window. A zero
// value exports every BroadcastLog row.
type ExportFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// sqlxDB lazily wraps db.conn for the export package's tagged-struct
// queries; every other query in this package uses db.conn directly.
func (db *DB) sqlxDB() *sqlx.DB {
	db.sqlxOnce.Do(func() {
		db.sqlxConn = sqlx.NewDb(db.conn, "duckdb")
	})
	return db.sqlxConn
}

// ListBroadcastLogsForExport returns every BroadcastLog row matching
// filter, joined to its station callsign and (when resolved) the
// primary credited artist of the matched Work plus one Recording of
// that Work, ordered by played_at ascending. Picking "a" Recording here, not
// "the" RecordingResolver's choice, is deliberate: export needs a
// library-file path to check for skip/include, and the resolver's
// station/format-aware ladder only matters when a player is choosing
// among multiple recordings for live playout, not when walking a
// historical log for a file listing.
func (db *DB) ListBroadcastLogsForExport(ctx context.Context, filter ExportFilter) ([]ExportRow, error) {
	query := `
		SELECT
			bl.played_at AS played_at,
			s.callsign AS station,
			bl.raw_artist AS raw_artist,
			bl.raw_title AS raw_title,
			a.name AS matched_artist,
			w.title AS matched_title,
			bl.match_reason AS match_reason,
			bl.work_id AS work_id,
			(SELECT r.id FROM recordings r WHERE r.work_id = w.id ORDER BY r.is_verified DESC, r.created_at ASC LIMIT 1) AS recording_id
		FROM broadcast_logs bl
		JOIN stations s ON s.id = bl.station_id
		LEFT JOIN works w ON w.id = bl.work_id
		LEFT JOIN artists a ON a.id = w.primary_artist_id
		WHERE (? IS NULL OR bl.played_at >= ?) AND (? IS NULL OR bl.played_at <= ?)
		ORDER BY bl.played_at ASC`

	var out []ExportRow
	err := db.sqlxDB().SelectContext(ctx, &out, db.sqlxDB().Rebind(query),
		filter.StartDate, filter.StartDate, filter.EndDate, filter.EndDate)
	if err != nil {
		return nil, fmt.Errorf("list broadcast logs for export: %w", err)
	}
	return out, nil
}

// FirstLibraryFileForRecording returns the first (by creation order)
// LibraryFile attached to recordingID, or nil if none exists - M3U
// export's "absolute filesystem path of the first LibraryFile of the
// resolved Recording".
func (db *DB) FirstLibraryFileForRecording(ctx context.Context, recordingID uuid.UUID) (*ExportLibraryFile, error) {
	var lf ExportLibraryFile
	err := db.sqlxDB().GetContext(ctx, &lf,
		db.sqlxDB().Rebind(`SELECT lf.path AS path, r.duration_ms AS duration_ms FROM library_files lf
			JOIN recordings r ON r.id = lf.recording_id
			WHERE lf.recording_id = ?
			ORDER BY lf.created_at ASC LIMIT 1`), recordingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("first library file for recording: %w", err)
	}
	return &lf, nil
}

// ExportLibraryFile is the subset of LibraryFile/Recording M3U export
// needs: a path and the duration to print on the #EXTINF line.
type ExportLibraryFile struct {
	Path       string `db:"path"`
	DurationMs *int64 `db:"duration_ms"`
}
