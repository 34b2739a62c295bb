// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package thresholdstore

import (
	"context"
	"errors"
	"testing"

	"github.com/airwave/radio-identity/internal/config"
)

type fakeBackend struct {
	row       *config.ThresholdConfig
	saveErr   error
	saveCalls int
}

func (f *fakeBackend) LoadThresholds(ctx context.Context) (*config.ThresholdConfig, error) {
	if f.row == nil {
		return nil, nil
	}
	cp := *f.row
	return &cp, nil
}

func (f *fakeBackend) SaveThresholds(ctx context.Context, t config.ThresholdConfig) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := t
	f.row = &cp
	return nil
}

func defaultThresholds() config.ThresholdConfig {
	return config.ThresholdConfig{
		ArtistAuto: 0.9, ArtistReview: 0.7,
		TitleAuto: 0.9, TitleReview: 0.75,
		VectorStrong:       0.92,
		TitleVector:        0.6,
		TitleVectorDist:    0.35,
		WorkFuzzyMaxWorks:  500,
		WorkFuzzyThreshold: 0.85,
	}
}

func TestLoadSeedsFromDefaultsOnFreshDatabase(t *testing.T) {
	fb := &fakeBackend{}
	s := New(fb)

	if err := s.Load(context.Background(), defaultThresholds()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fb.saveCalls != 1 {
		t.Fatalf("expected a seed write, saveCalls = %d", fb.saveCalls)
	}
	cur := s.Current()
	if cur.VectorTitleGuard != 0.8*0.75 {
		t.Errorf("VectorTitleGuard = %v, want derived value", cur.VectorTitleGuard)
	}
}

func TestLoadUsesExistingRowWithoutReseeding(t *testing.T) {
	existing := defaultThresholds()
	existing.ArtistAuto = 0.99
	fb := &fakeBackend{row: &existing}
	s := New(fb)

	if err := s.Load(context.Background(), defaultThresholds()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fb.saveCalls != 0 {
		t.Fatalf("expected no write when a row already exists, saveCalls = %d", fb.saveCalls)
	}
	if s.Current().ArtistAuto != 0.99 {
		t.Errorf("ArtistAuto = %v, want persisted value 0.99", s.Current().ArtistAuto)
	}
}

func TestUpdateWritesThroughBeforeSwappingSnapshot(t *testing.T) {
	fb := &fakeBackend{}
	s := New(fb)
	if err := s.Load(context.Background(), defaultThresholds()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	next := defaultThresholds()
	next.ArtistAuto = 0.95
	if err := s.Update(context.Background(), next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if s.Current().ArtistAuto != 0.95 {
		t.Errorf("Current().ArtistAuto = %v, want 0.95", s.Current().ArtistAuto)
	}
	if fb.row.ArtistAuto != 0.95 {
		t.Errorf("persisted ArtistAuto = %v, want 0.95", fb.row.ArtistAuto)
	}
}

func TestUpdateRejectsInvalidThresholdsWithoutTouchingSnapshot(t *testing.T) {
	fb := &fakeBackend{}
	s := New(fb)
	if err := s.Load(context.Background(), defaultThresholds()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	bad := defaultThresholds()
	bad.ArtistReview = bad.ArtistAuto + 0.1
	if err := s.Update(context.Background(), bad); err == nil {
		t.Fatal("expected error for artist_review > artist_auto")
	}
	if s.Current().ArtistReview == bad.ArtistReview {
		t.Error("snapshot must not change on a rejected update")
	}
}

func TestUpdateDoesNotSwapSnapshotWhenSaveFails(t *testing.T) {
	fb := &fakeBackend{saveErr: errors.New("write conflict")}
	s := New(fb)
	fb.saveErr = nil
	if err := s.Load(context.Background(), defaultThresholds()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fb.saveErr = errors.New("write conflict")
	next := defaultThresholds()
	next.ArtistAuto = 0.95
	if err := s.Update(context.Background(), next); err == nil {
		t.Fatal("expected error from failed save")
	}
	if s.Current().ArtistAuto == 0.95 {
		t.Error("snapshot must not change when the database write fails")
	}
}
