// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package thresholdstore mirrors the Matcher's threshold configuration
between the catalog database and an in-memory snapshot.

Thresholds are persisted row-for-field in the threshold_config table so
an operator's change to them survives a restart, but the Matcher reads
them on every pair it classifies and cannot afford a database round
trip per call. Store resolves that by keeping an atomic.Pointer
snapshot that Current() reads lock-free, and by writing through to the
database before swapping the pointer on every Update - the database
stays the durable source of truth and the pointer is never ahead of it.
*/
package thresholdstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/logging"
)

// backend is the subset of *database.DB that Store needs. Matching it
// structurally (rather than importing internal/database directly) keeps
// this package's dependency surface to what it actually calls and makes
// it trivial to fake in tests.
type backend interface {
	LoadThresholds(ctx context.Context) (*config.ThresholdConfig, error)
	SaveThresholds(ctx context.Context, t config.ThresholdConfig) error
}

// Store holds the live ThresholdConfig snapshot the Matcher reads on
// every classification, backed by a database row an operator can
// update through the verification surface.
type Store struct {
	db  backend
	cur atomic.Pointer[config.ThresholdConfig]
}

// New constructs a Store. Call Load once at startup before the Matcher
// begins reading Current.
func New(db backend) *Store {
	return &Store{db: db}
}

// Load reads the persisted threshold_config row into the in-memory
// snapshot, seeding the row from defaults on first run.
func (s *Store) Load(ctx context.Context, defaults config.ThresholdConfig) error {
	existing, err := s.db.LoadThresholds(ctx)
	if err != nil {
		return fmt.Errorf("load persisted thresholds: %w", err)
	}

	if existing == nil {
		seed := defaults
		if err := seed.Normalize(); err != nil {
			return fmt.Errorf("normalize default thresholds: %w", err)
		}
		if err := s.db.SaveThresholds(ctx, seed); err != nil {
			return fmt.Errorf("seed thresholds: %w", err)
		}
		logging.Info().Msg("threshold_config row absent, seeded from configured defaults")
		s.cur.Store(&seed)
		return nil
	}

	if err := existing.Normalize(); err != nil {
		return fmt.Errorf("normalize persisted thresholds: %w", err)
	}
	s.cur.Store(existing)
	return nil
}

// Current returns the live threshold snapshot. Safe for concurrent use
// without locking; callers must not mutate the returned value.
func (s *Store) Current() config.ThresholdConfig {
	cfg := s.cur.Load()
	if cfg == nil {
		panic("thresholdstore: Current called before Load")
	}
	return *cfg
}

// Update validates and normalizes next, writes it to the database, and
// only then swaps the in-memory snapshot, so a crash between the two
// steps never leaves the snapshot ahead of what a restart would read
// back.
func (s *Store) Update(ctx context.Context, next config.ThresholdConfig) error {
	if err := next.Normalize(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if err := s.db.SaveThresholds(ctx, next); err != nil {
		return fmt.Errorf("persist thresholds: %w", err)
	}
	s.cur.Store(&next)
	logging.Info().
		Float64("artist_auto", next.ArtistAuto).
		Float64("title_auto", next.TitleAuto).
		Float64("vector_strong", next.VectorStrong).
		Msg("thresholds updated")
	return nil
}
