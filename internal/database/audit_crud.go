// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
audit_crud.go - Verification Audit, Proposed Splits, Artist Aliases,
Stations, Broadcast Logs, and Recording-Selection Policy Persistence

VerificationAudit rows are append-only: InsertAuditRecord never
updates an existing row, and MarkAuditUndone only ever flips is_undone
false -> true.
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

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/models"
)

// InsertAuditRecord appends a VerificationAudit row.
func (db *DB) InsertAuditRecord(ctx context.Context, audit *models.VerificationAudit) error {
	logIDs, err := json.Marshal(audit.LogIDs)
	if err != nil {
		return fmt.Errorf("marshal log_ids: %w", err)
	}

	return db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO verification_audit
				(id, action_type, signature, raw_artist, raw_title, work_id, log_ids, bridge_id, is_undone, performed_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			audit.ID, string(audit.ActionType), audit.Signature, audit.RawArtist, audit.RawTitle,
			audit.WorkID, string(logIDs), audit.BridgeID, audit.IsUndone, audit.PerformedBy, audit.CreatedAt)
		if execErr != nil {
			return fmt.Errorf("insert audit record: %w", execErr)
		}
		return nil
	})
}

// FindAuditByID returns a single audit row by ID.
func (db *DB) FindAuditByID(ctx context.Context, id uuid.UUID) (*models.VerificationAudit, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, action_type, signature, raw_artist, raw_title, work_id, log_ids, bridge_id, is_undone, undone_at, performed_by, created_at
		 FROM verification_audit WHERE id = ?`, id)
	return scanAudit(row)
}

func scanAudit(row *sql.Row) (*models.VerificationAudit, error) {
	var a models.VerificationAudit
	var actionType string
	var workID, bridgeID, performedBy sql.NullString
	var undoneAt sql.NullTime
	var logIDsRaw string

	err := row.Scan(&a.ID, &actionType, &a.Signature, &a.RawArtist, &a.RawTitle, &workID, &logIDsRaw, &bridgeID, &a.IsUndone, &undoneAt, &performedBy, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}

	a.ActionType = models.AuditAction(actionType)
	if workID.Valid {
		id, parseErr := uuid.Parse(workID.String)
		if parseErr != nil {
			return nil, fmt.Errorf("scan audit: invalid work_id: %w", parseErr)
		}
		a.WorkID = &id
	}
	if bridgeID.Valid {
		id, parseErr := uuid.Parse(bridgeID.String)
		if parseErr != nil {
			return nil, fmt.Errorf("scan audit: invalid bridge_id: %w", parseErr)
		}
		a.BridgeID = &id
	}
	if performedBy.Valid {
		a.PerformedBy = &performedBy.String
	}
	if undoneAt.Valid {
		a.UndoneAt = &undoneAt.Time
	}
	if logIDsRaw != "" {
		if unmarshalErr := json.Unmarshal([]byte(logIDsRaw), &a.LogIDs); unmarshalErr != nil {
			return nil, fmt.Errorf("scan audit: unmarshal log_ids: %w", unmarshalErr)
		}
	}
	return &a, nil
}

// MarkAuditUndone flips is_undone from false to true. Returns
// catalogerr.ErrNotFound if no matching non-undone row exists; an
// already-undone row and a missing row both yield that same error.
func (db *DB) MarkAuditUndone(ctx context.Context, auditID uuid.UUID) error {
	return db.withWriteLock(func() error {
		now := time.Now()
		res, err := db.conn.ExecContext(ctx,
			`UPDATE verification_audit SET is_undone = TRUE, undone_at = ? WHERE id = ? AND is_undone = FALSE`,
			now, auditID)
		if err != nil {
			return fmt.Errorf("mark audit undone: %w", err)
		}
		return requireRowsAffected(res, catalogerr.ErrNotFound)
	})
}

// ListAudit returns VerificationAudit rows matching filter, newest
// first, for the operator's list_audit(filters) surface.
func (db *DB) ListAudit(ctx context.Context, filter AuditFilter, limit int) ([]models.VerificationAudit, error) {
	if limit <= 0 {
		limit = 200
	}
	conditions, args := filter.buildFilterConditions()
	query := "SELECT id, action_type, signature, raw_artist, raw_title, work_id, log_ids, bridge_id, is_undone, undone_at, performed_by, created_at FROM verification_audit WHERE 1=1"
	query += conditions
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []models.VerificationAudit
	for rows.Next() {
		var a models.VerificationAudit
		var actionType string
		var workID, bridgeID, performedBy sql.NullString
		var undoneAt sql.NullTime
		var logIDsRaw string

		if err := rows.Scan(&a.ID, &actionType, &a.Signature, &a.RawArtist, &a.RawTitle, &workID, &logIDsRaw, &bridgeID, &a.IsUndone, &undoneAt, &performedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		a.ActionType = models.AuditAction(actionType)
		if workID.Valid {
			id, parseErr := uuid.Parse(workID.String)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid work_id: %w", parseErr)
			}
			a.WorkID = &id
		}
		if bridgeID.Valid {
			id, parseErr := uuid.Parse(bridgeID.String)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid bridge_id: %w", parseErr)
			}
			a.BridgeID = &id
		}
		if performedBy.Valid {
			a.PerformedBy = &performedBy.String
		}
		if undoneAt.Valid {
			a.UndoneAt = &undoneAt.Time
		}
		if logIDsRaw != "" {
			if unmarshalErr := json.Unmarshal([]byte(logIDsRaw), &a.LogIDs); unmarshalErr != nil {
				return nil, fmt.Errorf("unmarshal log_ids: %w", unmarshalErr)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertProposedSplit creates or refreshes the proposal for rawArtist,
// keyed by its unique text.
func (db *DB) UpsertProposedSplit(ctx context.Context, rawArtist string, proposedArtists []string, confidence float64) (*models.ProposedSplit, error) {
	artistsJSON, err := json.Marshal(proposedArtists)
	if err != nil {
		return nil, fmt.Errorf("marshal proposed_artists: %w", err)
	}

	id := uuid.New()
	now := time.Now()
	err = db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO proposed_splits (id, raw_artist, proposed_artists, status, confidence, created_at, updated_at)
			 VALUES (?, ?, ?, 'pending', ?, ?, ?)
			 ON CONFLICT (raw_artist) DO UPDATE SET
				proposed_artists = excluded.proposed_artists,
				confidence = excluded.confidence,
				updated_at = excluded.updated_at`,
			id, rawArtist, string(artistsJSON), confidence, now, now)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert proposed split: %w", err)
	}
	return db.findProposedSplitByRawArtist(ctx, rawArtist)
}

func (db *DB) findProposedSplitByRawArtist(ctx context.Context, rawArtist string) (*models.ProposedSplit, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, raw_artist, proposed_artists, status, confidence, created_at FROM proposed_splits WHERE raw_artist = ?`,
		rawArtist)
	return scanProposedSplit(row)
}

func scanProposedSplit(row *sql.Row) (*models.ProposedSplit, error) {
	var p models.ProposedSplit
	var status string
	var artistsRaw string
	if err := row.Scan(&p.ID, &p.RawArtist, &artistsRaw, &status, &p.Confidence, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan proposed split: %w", err)
	}
	p.Status = models.SplitStatus(status)
	if artistsRaw != "" {
		if err := json.Unmarshal([]byte(artistsRaw), &p.ProposedArtists); err != nil {
			return nil, fmt.Errorf("unmarshal proposed_artists: %w", err)
		}
	}
	return &p, nil
}

// UpdateProposedSplitStatus records an operator's decision on a split.
func (db *DB) UpdateProposedSplitStatus(ctx context.Context, id uuid.UUID, status models.SplitStatus) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE proposed_splits SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), time.Now(), id)
		if err != nil {
			return fmt.Errorf("update proposed split status: %w", err)
		}
		return requireRowsAffected(res, catalogerr.ErrNotFound)
	})
}

// ListProposedSplits returns splits with the given status, oldest
// first, for operator review.
func (db *DB) ListProposedSplits(ctx context.Context, status models.SplitStatus, limit int) ([]models.ProposedSplit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, raw_artist, proposed_artists, status, confidence, created_at
		 FROM proposed_splits WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list proposed splits: %w", err)
	}
	defer rows.Close()

	var out []models.ProposedSplit
	for rows.Next() {
		var p models.ProposedSplit
		var st, artistsRaw string
		if err := rows.Scan(&p.ID, &p.RawArtist, &artistsRaw, &st, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposed split row: %w", err)
		}
		p.Status = models.SplitStatus(st)
		if artistsRaw != "" {
			if err := json.Unmarshal([]byte(artistsRaw), &p.ProposedArtists); err != nil {
				return nil, fmt.Errorf("unmarshal proposed_artists: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveAlias looks up the canonical resolution for a raw artist
// string, if one has been recorded.
func (db *DB) ResolveAlias(ctx context.Context, rawName string) (*models.ArtistAlias, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT raw_name, resolved_name, is_verified, is_null FROM artist_aliases WHERE raw_name = ?`, rawName)

	var a models.ArtistAlias
	var resolved sql.NullString
	err := row.Scan(&a.RawName, &resolved, &a.IsVerified, &a.IsNull)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve alias: %w", err)
	}
	if resolved.Valid {
		a.ResolvedName = &resolved.String
	}
	return &a, nil
}

// UpsertArtistAlias records (or updates) the canonical mapping for a
// raw artist string.
func (db *DB) UpsertArtistAlias(ctx context.Context, rawName string, resolvedName *string, isNull bool) error {
	return db.withWriteLock(func() error {
		now := time.Now()
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO artist_aliases (raw_name, resolved_name, is_verified, is_null, created_at, updated_at)
			 VALUES (?, ?, FALSE, ?, ?, ?)
			 ON CONFLICT (raw_name) DO UPDATE SET
				resolved_name = excluded.resolved_name,
				is_null = excluded.is_null,
				updated_at = excluded.updated_at`,
			rawName, resolvedName, isNull, now, now)
		if err != nil {
			return fmt.Errorf("upsert artist alias: %w", err)
		}
		return nil
	})
}

// VerifyArtistAlias marks an alias as operator-confirmed.
func (db *DB) VerifyArtistAlias(ctx context.Context, rawName string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE artist_aliases SET is_verified = TRUE, updated_at = ? WHERE raw_name = ?`,
			time.Now(), rawName)
		if err != nil {
			return fmt.Errorf("verify artist alias: %w", err)
		}
		return requireRowsAffected(res, catalogerr.ErrNotFound)
	})
}

// UpsertStation finds a Station by callsign, creating one if none
// exists.
func (db *DB) UpsertStation(ctx context.Context, callsign string, formatCode *string) (*models.Station, error) {
	if existing, err := db.findStationByCallsign(ctx, callsign); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	station := &models.Station{ID: uuid.New(), Callsign: callsign, FormatCode: formatCode, CreatedAt: time.Now()}
	err := db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO stations (id, callsign, format_code, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (callsign) DO NOTHING`,
			station.ID, station.Callsign, station.FormatCode, station.CreatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert station: %w", err)
	}
	return db.findStationByCallsign(ctx, callsign)
}

func (db *DB) findStationByCallsign(ctx context.Context, callsign string) (*models.Station, error) {
	var s models.Station
	var formatCode sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, callsign, format_code, created_at FROM stations WHERE callsign = ?`, callsign,
	).Scan(&s.ID, &s.Callsign, &formatCode, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find station by callsign: %w", err)
	}
	if formatCode.Valid {
		s.FormatCode = &formatCode.String
	}
	return &s, nil
}

// InsertBroadcastLog appends a single play event row.
func (db *DB) InsertBroadcastLog(ctx context.Context, log *models.BroadcastLog) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO broadcast_logs (id, station_id, played_at, raw_artist, raw_title, work_id, match_reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			log.ID, log.StationID, log.PlayedAt, log.RawArtist, log.RawTitle, log.WorkID, log.MatchReason, log.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert broadcast log: %w", err)
		}
		return nil
	})
}

// UpdateBroadcastLogMatch records the Matcher's (or a verification
// action's) resolution of a previously-unmatched log row.
func (db *DB) UpdateBroadcastLogMatch(ctx context.Context, logID uuid.UUID, workID *uuid.UUID, matchReason string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE broadcast_logs SET work_id = ?, match_reason = ? WHERE id = ?`,
			workID, matchReason, logID)
		if err != nil {
			return fmt.Errorf("update broadcast log match: %w", err)
		}
		return requireRowsAffected(res, catalogerr.ErrNotFound)
	})
}

// ListBroadcastLogsBySignature returns every log row whose raw_artist
// and raw_title equal rawArtist and rawTitle exactly. Rows whose raw
// values differ but hash to the same signature are not returned.
func (db *DB) ListBroadcastLogsBySignature(ctx context.Context, rawArtist, rawTitle string) ([]models.BroadcastLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, station_id, played_at, raw_artist, raw_title, work_id, match_reason, created_at
		 FROM broadcast_logs WHERE raw_artist = ? AND raw_title = ?`, rawArtist, rawTitle)
	if err != nil {
		return nil, fmt.Errorf("list broadcast logs by signature: %w", err)
	}
	defer rows.Close()

	var out []models.BroadcastLog
	for rows.Next() {
		var l models.BroadcastLog
		var workID, matchReason sql.NullString
		if err := rows.Scan(&l.ID, &l.StationID, &l.PlayedAt, &l.RawArtist, &l.RawTitle, &workID, &matchReason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan broadcast log row: %w", err)
		}
		if workID.Valid {
			id, parseErr := uuid.Parse(workID.String)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid work_id: %w", parseErr)
			}
			l.WorkID = &id
		}
		if matchReason.Valid {
			l.MatchReason = &matchReason.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertStationPreference ranks preferredRecordingID for work on
// station ahead of format- and catalog-level defaults.
func (db *DB) UpsertStationPreference(ctx context.Context, pref models.StationPreference) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO station_preferences (station_id, work_id, preferred_recording_id, priority)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (station_id, work_id, preferred_recording_id) DO UPDATE SET priority = excluded.priority`,
			pref.StationID, pref.WorkID, pref.PreferredRecordingID, pref.Priority)
		if err != nil {
			return fmt.Errorf("upsert station preference: %w", err)
		}
		return nil
	})
}

// FindStationPreference returns the highest-priority (lowest priority
// value) station preference for (stationID, workID), if any.
func (db *DB) FindStationPreference(ctx context.Context, stationID, workID uuid.UUID) (*models.StationPreference, error) {
	var p models.StationPreference
	err := db.conn.QueryRowContext(ctx,
		`SELECT station_id, work_id, preferred_recording_id, priority FROM station_preferences
		 WHERE station_id = ? AND work_id = ? ORDER BY priority ASC LIMIT 1`,
		stationID, workID,
	).Scan(&p.StationID, &p.WorkID, &p.PreferredRecordingID, &p.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find station preference: %w", err)
	}
	return &p, nil
}

// UpsertFormatPreference ranks preferredRecordingID for work across an
// entire station format.
func (db *DB) UpsertFormatPreference(ctx context.Context, pref models.FormatPreference) error {
	excludeTags, err := json.Marshal(pref.ExcludeTags)
	if err != nil {
		return fmt.Errorf("marshal exclude_tags: %w", err)
	}
	return db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO format_preferences (format_code, work_id, preferred_recording_id, priority, exclude_tags)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (format_code, work_id, preferred_recording_id) DO UPDATE SET
				priority = excluded.priority, exclude_tags = excluded.exclude_tags`,
			pref.FormatCode, pref.WorkID, pref.PreferredRecordingID, pref.Priority, string(excludeTags))
		if execErr != nil {
			return fmt.Errorf("upsert format preference: %w", execErr)
		}
		return nil
	})
}

// FindFormatPreference returns the highest-priority (lowest priority
// value) format preference for (formatCode, workID), if any.
func (db *DB) FindFormatPreference(ctx context.Context, formatCode string, workID uuid.UUID) (*models.FormatPreference, error) {
	var p models.FormatPreference
	var excludeTagsRaw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT format_code, work_id, preferred_recording_id, priority, exclude_tags FROM format_preferences
		 WHERE format_code = ? AND work_id = ? ORDER BY priority ASC LIMIT 1`,
		formatCode, workID,
	).Scan(&p.FormatCode, &p.WorkID, &p.PreferredRecordingID, &p.Priority, &excludeTagsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find format preference: %w", err)
	}
	if excludeTagsRaw != "" {
		if err := json.Unmarshal([]byte(excludeTagsRaw), &p.ExcludeTags); err != nil {
			return nil, fmt.Errorf("unmarshal exclude_tags: %w", err)
		}
	}
	return &p, nil
}

// UpsertWorkDefaultRecording sets the catalog-wide fallback Recording
// for work.
func (db *DB) UpsertWorkDefaultRecording(ctx context.Context, workID, defaultRecordingID uuid.UUID) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO work_default_recordings (work_id, default_recording_id) VALUES (?, ?)
			 ON CONFLICT (work_id) DO UPDATE SET default_recording_id = excluded.default_recording_id`,
			workID, defaultRecordingID)
		if err != nil {
			return fmt.Errorf("upsert work default recording: %w", err)
		}
		return nil
	})
}

// FindWorkDefaultRecording returns work's catalog-wide fallback
// Recording, if one has been set.
func (db *DB) FindWorkDefaultRecording(ctx context.Context, workID uuid.UUID) (*models.WorkDefaultRecording, error) {
	var d models.WorkDefaultRecording
	err := db.conn.QueryRowContext(ctx,
		`SELECT work_id, default_recording_id FROM work_default_recordings WHERE work_id = ?`, workID,
	).Scan(&d.WorkID, &d.DefaultRecordingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find work default recording: %w", err)
	}
	return &d, nil
}
