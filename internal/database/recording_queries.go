// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
recording_queries.go - Recording-Selection Policy Lookups

FindStationPreference/FindFormatPreference in audit_crud.go each return
only the single highest-priority row for a (station|format, work) pair;
RecordingResolver (internal/recording) needs the whole priority-ordered
candidate list so it can skip a preferred recording with no available
file and fall through to the next one (ordered by priority ascending,
only candidates with at least one LibraryFile).
*/
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/models"
)

// ListStationPreferences returns every StationPreference row for
// (stationID, workID), ordered by priority ascending - the order
// RecordingResolver must try them in.
func (db *DB) ListStationPreferences(ctx context.Context, stationID, workID uuid.UUID) ([]models.StationPreference, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT station_id, work_id, preferred_recording_id, priority FROM station_preferences
		 WHERE station_id = ? AND work_id = ? ORDER BY priority ASC`, stationID, workID)
	if err != nil {
		return nil, fmt.Errorf("list station preferences: %w", err)
	}
	defer rows.Close()

	var out []models.StationPreference
	for rows.Next() {
		var p models.StationPreference
		if err := rows.Scan(&p.StationID, &p.WorkID, &p.PreferredRecordingID, &p.Priority); err != nil {
			return nil, fmt.Errorf("scan station preference row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListFormatPreferences returns every FormatPreference row for
// (formatCode, workID), ordered by priority ascending.
func (db *DB) ListFormatPreferences(ctx context.Context, formatCode string, workID uuid.UUID) ([]models.FormatPreference, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT format_code, work_id, preferred_recording_id, priority, exclude_tags FROM format_preferences
		 WHERE format_code = ? AND work_id = ? ORDER BY priority ASC`, formatCode, workID)
	if err != nil {
		return nil, fmt.Errorf("list format preferences: %w", err)
	}
	defer rows.Close()

	var out []models.FormatPreference
	for rows.Next() {
		var p models.FormatPreference
		var excludeTagsRaw string
		if err := rows.Scan(&p.FormatCode, &p.WorkID, &p.PreferredRecordingID, &p.Priority, &excludeTagsRaw); err != nil {
			return nil, fmt.Errorf("scan format preference row: %w", err)
		}
		if excludeTagsRaw != "" {
			if err := json.Unmarshal([]byte(excludeTagsRaw), &p.ExcludeTags); err != nil {
				return nil, fmt.Errorf("unmarshal exclude_tags: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindStationByID returns a Station by primary key, or nil if none
// exists - RecordingResolver uses it to resolve a station's format_code
// when the caller supplies only a station ID.
func (db *DB) FindStationByID(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	var s models.Station
	var formatCode sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, callsign, format_code, created_at FROM stations WHERE id = ?`, id,
	).Scan(&s.ID, &s.Callsign, &formatCode, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find station by id: %w", err)
	}
	if formatCode.Valid {
		s.FormatCode = &formatCode.String
	}
	return &s, nil
}

// FindRecordingByID returns a Recording by primary key, or nil if none
// exists.
func (db *DB) FindRecordingByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, work_id, title, version_type, duration_ms, isrc, is_verified, created_at, updated_at
		 FROM recordings WHERE id = ?`, id)
	return scanRecording(row)
}

// HasLibraryFile reports whether recordingID has at least one
// LibraryFile row - the resolver's availability predicate.
// Deliberately tolerant of the file having since vanished from disk;
// periodic Scanner runs reconcile that separately.
func (db *DB) HasLibraryFile(ctx context.Context, recordingID uuid.UUID) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM library_files WHERE recording_id = ?)`, recordingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check library file existence: %w", err)
	}
	return exists, nil
}

// RecordingsForWork returns every Recording belonging to workID,
// verified recordings first, each group oldest-created first - the
// order RecordingResolver's last two ladder rungs need.
func (db *DB) RecordingsForWork(ctx context.Context, workID uuid.UUID) ([]models.Recording, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, work_id, title, version_type, duration_ms, isrc, is_verified, created_at, updated_at
		 FROM recordings WHERE work_id = ? ORDER BY is_verified DESC, created_at ASC`, workID)
	if err != nil {
		return nil, fmt.Errorf("list recordings for work: %w", err)
	}
	defer rows.Close()

	var out []models.Recording
	for rows.Next() {
		r, err := scanRecordingsRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecordingsRow(rows *sql.Rows) (models.Recording, error) {
	var r models.Recording
	var durationMs sql.NullInt64
	var isrc sql.NullString

	if err := rows.Scan(&r.ID, &r.WorkID, &r.Title, &r.VersionType, &durationMs, &isrc, &r.IsVerified, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Recording{}, fmt.Errorf("scan recording row: %w", err)
	}
	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		r.Duration = &d
	}
	if isrc.Valid {
		r.ISRC = &isrc.String
	}
	return r, nil
}
