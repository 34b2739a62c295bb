// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
catalog_crud.go - CatalogStore Catalog Operations

Implements the five catalog-mutation operations: upsert_artist,
upsert_work (with SQL-prefiltered, Go-scored fuzzy dedup),
upsert_recording, link_work_artists, and attach_library_file.

DuckDB accepts one writer connection at a time; withWriteLock below
holds db.writeMu for a single statement and retries only that
statement on a transaction conflict, rather than retrying an entire
caller-level batch.
*/
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/matchutil"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// withWriteLock serializes fn against every other CatalogStore mutation
// and retries it when DuckDB reports a single-writer transaction
// conflict, up to db.maxReconnectTries times.
func (db *DB) withWriteLock(fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var lastErr error
	tries := db.maxReconnectTries
	if tries <= 0 {
		tries = 1
	}
	for attempt := 0; attempt < tries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransactionConflict(err) {
			break
		}
		time.Sleep(db.reconnectDelay)
	}
	if isTransactionConflict(lastErr) {
		return fmt.Errorf("%w: %v", catalogerr.ErrIntegrity, lastErr)
	}
	if isConnectionError(lastErr) {
		return fmt.Errorf("%w: %v", catalogerr.ErrFatal, lastErr)
	}
	return lastErr
}

// UpsertArtist finds an Artist by exact normalized name, creating one
// if none exists.
func (db *DB) UpsertArtist(ctx context.Context, cleanName string) (*models.Artist, error) {
	if existing, err := db.findArtistByName(ctx, cleanName); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	artist := &models.Artist{
		ID:        uuid.New(),
		Name:      cleanName,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO artists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (name) DO NOTHING`,
			artist.ID, artist.Name, artist.CreatedAt, artist.UpdatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert_artist insert: %w", err)
	}

	existing, err := db.findArtistByName(ctx, cleanName)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("upsert_artist: row missing after insert for %q: %w", cleanName, catalogerr.ErrIntegrity)
	}
	return existing, nil
}

func (db *DB) findArtistByName(ctx context.Context, name string) (*models.Artist, error) {
	var a models.Artist
	var mbid sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, musicbrainz_id, created_at, updated_at FROM artists WHERE name = ?`,
		name,
	).Scan(&a.ID, &a.Name, &mbid, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find artist by name: %w", err)
	}
	if mbid.Valid {
		a.MusicBrainzID = &mbid.String
	}
	return &a, nil
}

// UpsertWork resolves cleanTitle to an existing Work credited to
// primaryArtistID, or creates one. When primaryArtistID is non-nil it
// runs the fuzzy-dedup pass: a SQL-prefiltered shortlist
// (capped at maxWorks) scored in Go with matchutil.Ratio, honoring the
// part-number asymmetry rule when respectParts is true, and
// terminating early on a near-certain (>=0.95) match.
func (db *DB) UpsertWork(ctx context.Context, cleanTitle string, primaryArtistID *uuid.UUID, respectParts bool, threshold float64, maxWorks int) (*models.Work, error) {
	if existing, err := db.findWorkExact(ctx, cleanTitle, primaryArtistID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	kind, num, hasPart := normalizer.ExtractPartNumber(cleanTitle)

	if primaryArtistID != nil {
		best, err := db.findWorkFuzzy(ctx, *primaryArtistID, cleanTitle, kind, num, hasPart, respectParts, threshold, maxWorks)
		if err != nil {
			return nil, err
		}
		if best != nil {
			return best, nil
		}
	}

	work := &models.Work{
		ID:              uuid.New(),
		Title:           cleanTitle,
		PrimaryArtistID: primaryArtistID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if hasPart {
		kindStr := string(kind)
		work.PartKind = &kindStr
		work.PartNumber = &num
	}

	err := db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO works (id, title, primary_artist_id, is_instrumental, part_kind, part_number, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			work.ID, work.Title, work.PrimaryArtistID, work.IsInstrumental, work.PartKind, work.PartNumber, work.CreatedAt, work.UpdatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert_work insert: %w", err)
	}
	return work, nil
}

func (db *DB) findWorkExact(ctx context.Context, title string, primaryArtistID *uuid.UUID) (*models.Work, error) {
	var row *sql.Row
	if primaryArtistID != nil {
		row = db.conn.QueryRowContext(ctx,
			`SELECT id, title, primary_artist_id, is_instrumental, part_kind, part_number, created_at, updated_at
			 FROM works WHERE title = ? AND primary_artist_id = ?`,
			title, *primaryArtistID)
	} else {
		row = db.conn.QueryRowContext(ctx,
			`SELECT id, title, primary_artist_id, is_instrumental, part_kind, part_number, created_at, updated_at
			 FROM works WHERE title = ? AND primary_artist_id IS NULL`,
			title)
	}
	return scanWork(row)
}

// findWorkFuzzy ranks the SQL shortlist with matchutil.Ratio and
// applies the part-number asymmetry rule: a candidate is rejected if
// exactly one of {candidate, new title} carries a part number, or both
// carry one and the numbers disagree.
func (db *DB) findWorkFuzzy(ctx context.Context, artistID uuid.UUID, title string, kind normalizer.PartKind, num int, hasPart, respectParts bool, threshold float64, maxWorks int) (*models.Work, error) {
	candidates, err := db.FuzzyCandidateWorks(ctx, artistID.String(), title, maxWorks)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidate works: %w", err)
	}

	var bestID uuid.UUID
	var bestScore float64
	found := false

	for _, c := range candidates {
		if respectParts {
			cHasPart := c.PartNumber.Valid
			if hasPart != cHasPart {
				continue
			}
			if hasPart && cHasPart && int(c.PartNumber.Int64) != num {
				continue
			}
		}

		score := matchutil.Ratio(title, c.Title)
		if score < threshold {
			continue
		}
		if !found || score > bestScore {
			id, parseErr := uuid.Parse(c.ID)
			if parseErr != nil {
				continue
			}
			bestID, bestScore, found = id, score, true
		}
		if score >= 0.95 {
			break
		}
	}

	if !found {
		return nil, nil
	}
	return db.findWorkByID(ctx, bestID)
}

func (db *DB) findWorkByID(ctx context.Context, id uuid.UUID) (*models.Work, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, title, primary_artist_id, is_instrumental, part_kind, part_number, created_at, updated_at
		 FROM works WHERE id = ?`, id)
	return scanWork(row)
}

func scanWork(row *sql.Row) (*models.Work, error) {
	var w models.Work
	var primaryArtistID sql.NullString
	var partKind sql.NullString
	var partNumber sql.NullInt64

	err := row.Scan(&w.ID, &w.Title, &primaryArtistID, &w.IsInstrumental, &partKind, &partNumber, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan work: %w", err)
	}

	if primaryArtistID.Valid {
		id, parseErr := uuid.Parse(primaryArtistID.String)
		if parseErr != nil {
			return nil, fmt.Errorf("scan work: invalid primary_artist_id: %w", parseErr)
		}
		w.PrimaryArtistID = &id
	}
	if partKind.Valid {
		w.PartKind = &partKind.String
	}
	if partNumber.Valid {
		n := int(partNumber.Int64)
		w.PartNumber = &n
	}
	return &w, nil
}

// LinkWorkArtists idempotently associates artistIDs with workID,
// marking primaryID (if present in artistIDs) with RolePrimary and all
// others RoleFeatured.
func (db *DB) LinkWorkArtists(ctx context.Context, workID uuid.UUID, artistIDs []uuid.UUID, primaryID *uuid.UUID) error {
	return db.withWriteLock(func() error {
		for _, artistID := range artistIDs {
			role := models.RoleFeatured
			if primaryID != nil && artistID == *primaryID {
				role = models.RolePrimary
			}
			_, err := db.conn.ExecContext(ctx,
				`INSERT INTO work_artists (work_id, artist_id, role) VALUES (?, ?, ?)
				 ON CONFLICT (work_id, artist_id) DO UPDATE SET role = excluded.role`,
				workID, artistID, string(role))
			if err != nil {
				return fmt.Errorf("link work artist %s: %w", artistID, err)
			}
		}
		return nil
	})
}

// UpsertRecording finds a Recording by (work_id, title, version_type),
// creating one if none exists.
func (db *DB) UpsertRecording(ctx context.Context, workID uuid.UUID, title, versionType string, duration *time.Duration, isrc *string) (*models.Recording, error) {
	if existing, err := db.findRecording(ctx, workID, title, versionType); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	rec := &models.Recording{
		ID:          uuid.New(),
		WorkID:      workID,
		Title:       title,
		VersionType: versionType,
		Duration:    duration,
		ISRC:        isrc,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	var durationMs *int64
	if duration != nil {
		ms := duration.Milliseconds()
		durationMs = &ms
	}

	err := db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO recordings (id, work_id, title, version_type, duration_ms, isrc, is_verified, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.WorkID, rec.Title, rec.VersionType, durationMs, rec.ISRC, rec.IsVerified, rec.CreatedAt, rec.UpdatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert_recording insert: %w", err)
	}
	return rec, nil
}

func (db *DB) findRecording(ctx context.Context, workID uuid.UUID, title, versionType string) (*models.Recording, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, work_id, title, version_type, duration_ms, isrc, is_verified, created_at, updated_at
		 FROM recordings WHERE work_id = ? AND title = ? AND version_type = ?`,
		workID, title, versionType)
	return scanRecording(row)
}

func scanRecording(row *sql.Row) (*models.Recording, error) {
	var r models.Recording
	var durationMs sql.NullInt64
	var isrc sql.NullString

	err := row.Scan(&r.ID, &r.WorkID, &r.Title, &r.VersionType, &durationMs, &isrc, &r.IsVerified, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		r.Duration = &d
	}
	if isrc.Valid {
		r.ISRC = &isrc.String
	}
	return &r, nil
}

// AttachLibraryFile upserts a LibraryFile by its unique path: an
// existing row at the same path is updated in place (the Scanner's
// re-scan path), otherwise a new row is inserted.
func (db *DB) AttachLibraryFile(ctx context.Context, recordingID uuid.UUID, path string, size int64, mtime time.Time, format string, hash *string, bitrate *int) (*models.LibraryFile, error) {
	lf := &models.LibraryFile{
		ID:          uuid.New(),
		RecordingID: recordingID,
		Path:        path,
		FileHash:    hash,
		Size:        size,
		ModTime:     mtime,
		Format:      format,
		Bitrate:     bitrate,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	err := db.withWriteLock(func() error {
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO library_files (id, recording_id, path, file_hash, size, mtime, format, bitrate, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (path) DO UPDATE SET
				recording_id = excluded.recording_id,
				file_hash = excluded.file_hash,
				size = excluded.size,
				mtime = excluded.mtime,
				format = excluded.format,
				bitrate = excluded.bitrate,
				updated_at = excluded.updated_at`,
			lf.ID, lf.RecordingID, lf.Path, lf.FileHash, lf.Size, lf.ModTime, lf.Format, lf.Bitrate, lf.CreatedAt, lf.UpdatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("attach_library_file upsert: %w", err)
	}

	return db.findLibraryFileByPath(ctx, path)
}

func (db *DB) findLibraryFileByPath(ctx context.Context, path string) (*models.LibraryFile, error) {
	var lf models.LibraryFile
	var hash sql.NullString
	var bitrate sql.NullInt64

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, recording_id, path, file_hash, size, mtime, format, bitrate, created_at, updated_at
		 FROM library_files WHERE path = ?`, path,
	).Scan(&lf.ID, &lf.RecordingID, &lf.Path, &hash, &lf.Size, &lf.ModTime, &lf.Format, &bitrate, &lf.CreatedAt, &lf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attach_library_file: row missing after upsert for %q: %w", path, catalogerr.ErrIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("find library file by path: %w", err)
	}
	if hash.Valid {
		lf.FileHash = &hash.String
	}
	if bitrate.Valid {
		b := int(bitrate.Int64)
		lf.Bitrate = &b
	}
	return &lf, nil
}
