// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
matcher_queries.go - Bulk Lookups for the Matcher Pipeline

The Matcher batches many (raw_artist, raw_title) pairs through the same
pipeline, so the two SQL-backed steps it owns - the bulk bridge sweep and
the exact recording/work lookup - are written here as set-at-a-time
queries rather than one-row-at-a-time loops, mirroring the shortlisting
style already used by search_fuzzy.go.
*/
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/models"
)

// FindActiveBridgesBySignatures returns the active Identity Bridge for
// every signature in signatures that has one, keyed by signature.
// Signatures with no active bridge are simply absent from the result.
func (db *DB) FindActiveBridgesBySignatures(ctx context.Context, signatures []string) (map[string]*models.IdentityBridge, error) {
	out := make(map[string]*models.IdentityBridge)
	if len(signatures) == 0 {
		return out, nil
	}

	placeholders, args := buildInClause(signatures)
	query := fmt.Sprintf(
		`SELECT id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at
		 FROM identity_bridge WHERE is_revoked = FALSE AND log_signature IN (%s)`, placeholders)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bulk bridge sweep: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.IdentityBridge
		if err := rows.Scan(&b.ID, &b.LogSignature, &b.ReferenceArtist, &b.ReferenceTitle, &b.WorkID, &b.Confidence, &b.IsRevoked, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bulk bridge row: %w", err)
		}
		out[b.LogSignature] = &b
	}
	return out, rows.Err()
}

// ArtistTitlePair is a normalized (artist, title) key used by the exact
// SQL match step and by the Matcher's per-pair result assignment.
type ArtistTitlePair struct {
	Artist string
	Title  string
}

// ExactMatchResult is one hit from ExactMatchRecordings: the Recording
// whose title and credited artist exactly equal a query pair, and the
// Work it belongs to.
type ExactMatchResult struct {
	RecordingID uuid.UUID
	WorkID      uuid.UUID
}

// ExactMatchRecordings looks up every pair in pairs against
// Recording<->Work<->Artist (via WorkArtist, so a match on any credited
// artist - not only the primary - counts), joined through a VALUES
// table rather than one query per pair.
// Pairs with no exact hit are simply absent from the result map.
func (db *DB) ExactMatchRecordings(ctx context.Context, pairs []ArtistTitlePair) (map[ArtistTitlePair]ExactMatchResult, error) {
	out := make(map[ArtistTitlePair]ExactMatchResult)
	const chunk = 200
	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		if err := db.exactMatchChunk(ctx, pairs[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) exactMatchChunk(ctx context.Context, pairs []ArtistTitlePair, out map[ArtistTitlePair]ExactMatchResult) error {
	if len(pairs) == 0 {
		return nil
	}

	valuesClauses := make([]string, len(pairs))
	args := make([]interface{}, 0, len(pairs)*2)
	for i, p := range pairs {
		valuesClauses[i] = "(?, ?)"
		args = append(args, p.Artist, p.Title)
	}

	query := fmt.Sprintf(`
		SELECT q.artist_name, q.title, r.id, r.work_id
		FROM (VALUES %s) AS q(artist_name, title)
		JOIN artists a ON a.name = q.artist_name
		JOIN work_artists wa ON wa.artist_id = a.id
		JOIN works w ON w.id = wa.work_id
		JOIN recordings r ON r.work_id = w.id AND r.title = q.title
	`, strings.Join(valuesClauses, ", "))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exact match lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var artist, title string
		var res ExactMatchResult
		if err := rows.Scan(&artist, &title, &res.RecordingID, &res.WorkID); err != nil {
			return fmt.Errorf("scan exact match row: %w", err)
		}
		key := ArtistTitlePair{Artist: artist, Title: title}
		if _, exists := out[key]; !exists {
			out[key] = res
		}
	}
	return rows.Err()
}

// RecordingContext is everything the Matcher's candidate scoring step
// needs about a vector-search hit: the Recording's own title, its
// Work, and every credited artist's clean name (artist similarity is
// scored as the max over all WorkArtists, not just the primary one).
type RecordingContext struct {
	RecordingID uuid.UUID
	WorkID      uuid.UUID
	Title       string
	ArtistNames []string

	// PartKind/PartNumber mirror the owning Work's cached
	// normalizer.ExtractPartNumber result, carried here so explain
	// mode's part-number asymmetry check doesn't need a second query.
	PartKind   *string
	PartNumber *int
}

// RecordingContexts loads RecordingContext for every id in
// recordingIDs, keyed by RecordingID. IDs with no matching Recording
// are absent from the result.
func (db *DB) RecordingContexts(ctx context.Context, recordingIDs []uuid.UUID) (map[uuid.UUID]RecordingContext, error) {
	out := make(map[uuid.UUID]RecordingContext)
	if len(recordingIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(recordingIDs))
	for i, id := range recordingIDs {
		ids[i] = id.String()
	}
	placeholders, args := buildInClause(ids)

	query := fmt.Sprintf(`
		SELECT r.id, r.work_id, r.title, w.part_kind, w.part_number, a.name
		FROM recordings r
		JOIN works w ON w.id = r.work_id
		JOIN work_artists wa ON wa.work_id = r.work_id
		JOIN artists a ON a.id = wa.artist_id
		WHERE r.id IN (%s)
	`, placeholders)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recording contexts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, workID uuid.UUID
		var title, artistName string
		var partKind sql.NullString
		var partNumber sql.NullInt64
		if err := rows.Scan(&id, &workID, &title, &partKind, &partNumber, &artistName); err != nil {
			return nil, fmt.Errorf("scan recording context row: %w", err)
		}
		rc, exists := out[id]
		if !exists {
			rc = RecordingContext{RecordingID: id, WorkID: workID, Title: title}
			if partKind.Valid {
				rc.PartKind = &partKind.String
			}
			if partNumber.Valid {
				n := int(partNumber.Int64)
				rc.PartNumber = &n
			}
		}
		rc.ArtistNames = append(rc.ArtistNames, artistName)
		out[id] = rc
	}
	return out, rows.Err()
}
