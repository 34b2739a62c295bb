// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airwave/radio-identity/internal/config"
)

// LoadThresholds returns the single persisted threshold_config row, or
// nil if it has never been seeded (fresh database).
func (db *DB) LoadThresholds(ctx context.Context) (*config.ThresholdConfig, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT artist_auto, artist_review, title_auto, title_review,
		        vector_strong, vector_title_guard, title_vector, title_vector_dist,
		        work_fuzzy_max_works, work_fuzzy_threshold
		 FROM threshold_config WHERE id = 1`)

	var t config.ThresholdConfig
	err := row.Scan(&t.ArtistAuto, &t.ArtistReview, &t.TitleAuto, &t.TitleReview,
		&t.VectorStrong, &t.VectorTitleGuard, &t.TitleVector, &t.TitleVectorDist,
		&t.WorkFuzzyMaxWorks, &t.WorkFuzzyThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	t.VectorTitleGuardSet = true
	return &t, nil
}

// SaveThresholds writes t as the singleton threshold_config row,
// creating it on first use. Callers must call t.Normalize() first so
// the review<=auto invariant is enforced before it lands
// in the database (internal/thresholdstore does this write-through).
func (db *DB) SaveThresholds(ctx context.Context, t config.ThresholdConfig) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO threshold_config (
				id, artist_auto, artist_review, title_auto, title_review,
				vector_strong, vector_title_guard, title_vector, title_vector_dist,
				work_fuzzy_max_works, work_fuzzy_threshold, updated_at
			 ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				artist_auto = excluded.artist_auto,
				artist_review = excluded.artist_review,
				title_auto = excluded.title_auto,
				title_review = excluded.title_review,
				vector_strong = excluded.vector_strong,
				vector_title_guard = excluded.vector_title_guard,
				title_vector = excluded.title_vector,
				title_vector_dist = excluded.title_vector_dist,
				work_fuzzy_max_works = excluded.work_fuzzy_max_works,
				work_fuzzy_threshold = excluded.work_fuzzy_threshold,
				updated_at = excluded.updated_at`,
			t.ArtistAuto, t.ArtistReview, t.TitleAuto, t.TitleReview,
			t.VectorStrong, t.VectorTitleGuard, t.TitleVector, t.TitleVectorDist,
			t.WorkFuzzyMaxWorks, t.WorkFuzzyThreshold, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("save thresholds: %w", err)
		}
		return nil
	})
}
