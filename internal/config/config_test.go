// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "testing"

func TestThresholdConfigNormalizeDerivesVectorTitleGuard(t *testing.T) {
	th := ThresholdConfig{
		ArtistAuto: 0.9, ArtistReview: 0.7,
		TitleAuto: 0.9, TitleReview: 0.75,
		WorkFuzzyMaxWorks: 500, WorkFuzzyThreshold: 0.85,
	}
	if err := th.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := 0.8 * 0.75
	if th.VectorTitleGuard != want {
		t.Errorf("VectorTitleGuard = %v, want %v", th.VectorTitleGuard, want)
	}
}

func TestThresholdConfigValidateRejectsReviewAboveAuto(t *testing.T) {
	th := ThresholdConfig{
		ArtistAuto: 0.5, ArtistReview: 0.9,
		TitleAuto: 0.9, TitleReview: 0.5,
		WorkFuzzyMaxWorks: 500, WorkFuzzyThreshold: 0.85,
	}
	if err := th.Validate(); err == nil {
		t.Fatal("expected error when artist_review > artist_auto")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Threshold.Normalize(); err != nil {
		t.Fatalf("default threshold config invalid: %v", err)
	}
}
