// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
search_fuzzy.go - Fuzzy Candidate Shortlisting using RapidFuzz Extension

upsert_work must decide whether a newly-ingested title
matches an existing Work by the same primary artist closely enough to
be the same composition. Scanning every Work in Go would be correct
but slow once an artist has hundreds of credits; this file pushes the
first pass — a cheap SQL-side similarity score over the Works already
scoped to that artist — down into DuckDB via the rapidfuzz community
extension, and hands the shortlist back to the caller for the
authoritative Go-side matchutil.Ratio scoring (which additionally
enforces the part-number asymmetry rule rapidfuzz knows nothing
about). When the extension is unavailable the shortlist falls back to
returning every Work for the artist, up to the same cap, unscored —
the caller's Go-side scoring still runs, just without the SQL prefilter.

RapidFuzz Functions Used:
  - rapidfuzz_ratio(): overall character-level similarity (0-100)
  - rapidfuzz_token_set_ratio(): word-set similarity, tolerant of
    reordering ("Live at Wembley" vs "Wembley (Live)")
*/

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// WorkCandidate is a shortlisted Work considered as a fuzzy-dedup
// match target for a newly-ingested title. SQLScore is the DuckDB-side
// score (0-100) used only to rank and cap the shortlist; callers must
// still run matchutil.Ratio against Title for the authoritative
// decision, since SQLScore does not account for part-number agreement.
type WorkCandidate struct {
	ID          string
	Title       string
	PartKind    sql.NullString
	PartNumber  sql.NullInt64
	SQLScore    int
}

// FuzzyCandidateWorks returns Works credited (as primary artist) to
// artistID, ranked by similarity to title and capped at limit (the
// caller passes ThresholdConfig.WorkFuzzyMaxWorks). Falls
// back to an unscored, title-ordered listing when the rapidfuzz
// extension isn't loaded.
func (db *DB) FuzzyCandidateWorks(ctx context.Context, artistID string, title string, limit int) ([]WorkCandidate, error) {
	if limit <= 0 {
		limit = 500
	}

	if db.rapidfuzzAvailable {
		return db.fuzzyCandidateWorksWithRapidFuzz(ctx, artistID, title, limit)
	}
	return db.fuzzyCandidateWorksFallback(ctx, artistID, limit)
}

func (db *DB) fuzzyCandidateWorksWithRapidFuzz(ctx context.Context, artistID string, title string, limit int) ([]WorkCandidate, error) {
	query := `
		SELECT
			id,
			title,
			part_kind,
			part_number,
			GREATEST(
				rapidfuzz_ratio(LOWER(title), LOWER(?)),
				rapidfuzz_token_set_ratio(LOWER(title), LOWER(?))
			)::INTEGER as sql_score
		FROM works
		WHERE primary_artist_id = ?
		ORDER BY sql_score DESC, title ASC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, title, title, artistID, limit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidate works query failed: %w", err)
	}
	defer rows.Close()

	return scanWorkCandidates(rows)
}

func (db *DB) fuzzyCandidateWorksFallback(ctx context.Context, artistID string, limit int) ([]WorkCandidate, error) {
	query := `
		SELECT id, title, part_kind, part_number, 0 as sql_score
		FROM works
		WHERE primary_artist_id = ?
		ORDER BY title ASC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, artistID, limit)
	if err != nil {
		return nil, fmt.Errorf("candidate works fallback query failed: %w", err)
	}
	defer rows.Close()

	return scanWorkCandidates(rows)
}

func scanWorkCandidates(rows *sql.Rows) ([]WorkCandidate, error) {
	var results []WorkCandidate
	for rows.Next() {
		var c WorkCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.PartKind, &c.PartNumber, &c.SQLScore); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return results, nil
}

// FuzzyMatchScore calculates the fuzzy match score between two strings
// using rapidfuzz_ratio. Returns 0-100 similarity score. Falls back to
// an exact-match check (100 or 0) when the extension is unavailable.
func (db *DB) FuzzyMatchScore(ctx context.Context, str1, str2 string) (int, error) {
	if !db.rapidfuzzAvailable {
		if str1 == str2 {
			return 100, nil
		}
		return 0, nil
	}

	var scoreFloat float64
	err := db.conn.QueryRowContext(ctx,
		"SELECT rapidfuzz_ratio(?, ?)",
		str1, str2,
	).Scan(&scoreFloat)

	if err != nil {
		return 0, fmt.Errorf("fuzzy match score query failed: %w", err)
	}

	return int(scoreFloat), nil
}
