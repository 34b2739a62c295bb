// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
reevaluator_queries.go - Bulk Re-matching Support

The Re-evaluator works in units of distinct (raw_artist, raw_title)
pairs, not rows: ListUnresolvedPairs finds the pairs worth re-running
through the Matcher, and UpdateBroadcastLogsByPair applies one pair's
verdict to every row sharing it in a single statement, mirroring the
per-signature bulk update ListBroadcastLogsBySignature already supports
on the read side (audit_crud.go).
*/
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UnresolvedPair is one distinct raw (artist, title) pair eligible for
// re-evaluation.
type UnresolvedPair struct {
	RawArtist string
	RawTitle  string
}

// ListUnresolvedPairs returns every distinct (raw_artist, raw_title)
// pair among BroadcastLog rows with no resolved Work or a review-class
// match reason.
func (db *DB) ListUnresolvedPairs(ctx context.Context) ([]UnresolvedPair, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT raw_artist, raw_title
		FROM broadcast_logs
		WHERE work_id IS NULL OR match_reason LIKE '%Review%'`)
	if err != nil {
		return nil, fmt.Errorf("list unresolved pairs: %w", err)
	}
	defer rows.Close()

	var out []UnresolvedPair
	for rows.Next() {
		var p UnresolvedPair
		if err := rows.Scan(&p.RawArtist, &p.RawTitle); err != nil {
			return nil, fmt.Errorf("scan unresolved pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UnmatchedPairCount is one distinct raw (artist, title) pair with no
// resolved Work, together with how many BroadcastLog rows share it.
type UnmatchedPairCount struct {
	RawArtist string
	RawTitle  string
	Count     int64
}

// ListUnmatchedPairCounts returns every distinct unmatched
// (raw_artist, raw_title) pair and its play count - the source set a
// Discovery Queue rebuild aggregates into queue entries.
func (db *DB) ListUnmatchedPairCounts(ctx context.Context) ([]UnmatchedPairCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT raw_artist, raw_title, COUNT(*)
		FROM broadcast_logs
		WHERE work_id IS NULL
		GROUP BY raw_artist, raw_title`)
	if err != nil {
		return nil, fmt.Errorf("list unmatched pair counts: %w", err)
	}
	defer rows.Close()

	var out []UnmatchedPairCount
	for rows.Next() {
		var p UnmatchedPairCount
		if err := rows.Scan(&p.RawArtist, &p.RawTitle, &p.Count); err != nil {
			return nil, fmt.Errorf("scan unmatched pair count: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateBroadcastLogsByPair applies one re-evaluated verdict to every
// BroadcastLog row sharing (rawArtist, rawTitle) in a single statement,
// returning how many rows changed.
func (db *DB) UpdateBroadcastLogsByPair(ctx context.Context, rawArtist, rawTitle string, workID *uuid.UUID, matchReason string) (int64, error) {
	var affected int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE broadcast_logs SET work_id = ?, match_reason = ? WHERE raw_artist = ? AND raw_title = ?`,
			workID, matchReason, rawArtist, rawTitle)
		if err != nil {
			return fmt.Errorf("update broadcast logs by pair: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	return affected, err
}
