// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package reevaluator

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/matcher"
	"github.com/airwave/radio-identity/internal/normalizer"
)

type fakeStore struct {
	pairs        []database.UnresolvedPair
	updates      map[string]int64 // "artist|title" -> rows affected
	updateCalls  int
	unmatched    []database.UnmatchedPairCount
	rebuiltSeeds []database.DiscoveryQueueSeed
	rebuildCalls int
	bridgedSigs  map[string]bool
}

func (f *fakeStore) ListUnresolvedPairs(ctx context.Context) ([]database.UnresolvedPair, error) {
	return f.pairs, nil
}

func (f *fakeStore) UpdateBroadcastLogsByPair(ctx context.Context, rawArtist, rawTitle string, workID *uuid.UUID, matchReason string) (int64, error) {
	f.updateCalls++
	return f.updates[rawArtist+"|"+rawTitle], nil
}

func (f *fakeStore) ListUnmatchedPairCounts(ctx context.Context) ([]database.UnmatchedPairCount, error) {
	return f.unmatched, nil
}

func (f *fakeStore) RebuildDiscoveryQueue(ctx context.Context, seeds []database.DiscoveryQueueSeed) (int, error) {
	f.rebuildCalls++
	f.rebuiltSeeds = nil
	for _, seed := range seeds {
		if f.bridgedSigs[seed.Signature] {
			continue
		}
		f.rebuiltSeeds = append(f.rebuiltSeeds, seed)
	}
	return len(f.rebuiltSeeds), nil
}

type fakeResolver struct {
	verdicts map[matcher.InputPair]matcher.Result
}

func (f *fakeResolver) Resolve(ctx context.Context, pairs []matcher.InputPair) (map[matcher.InputPair]matcher.Result, error) {
	out := make(map[matcher.InputPair]matcher.Result, len(pairs))
	for _, p := range pairs {
		out[p] = f.verdicts[p]
	}
	return out, nil
}

func TestRunNoopOnEmptyPairs(t *testing.T) {
	db := &fakeStore{}
	mat := &fakeResolver{}
	r := New(db, mat)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PairsConsidered != 0 || res.PairsChanged != 0 || db.updateCalls != 0 {
		t.Fatalf("expected a no-op pass, got %+v with %d update calls", res, db.updateCalls)
	}
}

// TestRunAppliesResolvedVerdicts: every resolved pair gets one bulk
// update, counted in units of pairs not rows.
func TestRunAppliesResolvedVerdicts(t *testing.T) {
	pair := matcher.InputPair{RawArtist: "Nirvana", RawTitle: "Come As You Are"}
	workID := uuid.New()

	db := &fakeStore{
		pairs:   []database.UnresolvedPair{{RawArtist: pair.RawArtist, RawTitle: pair.RawTitle}},
		updates: map[string]int64{"Nirvana|Come As You Are": 4},
	}
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{
		pair: {WorkID: &workID, Reason: "Exact DB Match"},
	}}

	r := New(db, mat)
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PairsConsidered != 1 || res.PairsChanged != 1 || res.RowsUpdated != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if db.updateCalls != 1 {
		t.Fatalf("expected exactly one bulk update call, got %d", db.updateCalls)
	}
}

// TestRunSkipsUnchangedPairs: a pair whose bulk update affects zero rows
// (nothing actually changed) must not count toward PairsChanged, so a
// re-evaluation pass over an unchanged catalog reports no-op.
func TestRunSkipsUnchangedPairs(t *testing.T) {
	pair := matcher.InputPair{RawArtist: "Nirvana", RawTitle: "Come As You Are"}
	db := &fakeStore{
		pairs:   []database.UnresolvedPair{{RawArtist: pair.RawArtist, RawTitle: pair.RawTitle}},
		updates: map[string]int64{"Nirvana|Come As You Are": 0},
	}
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{
		pair: {Reason: "No Match Found"},
	}}

	r := New(db, mat)
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PairsChanged != 0 || res.RowsUpdated != 0 {
		t.Fatalf("expected no-op pass, got %+v", res)
	}
}

// TestRebuildDiscoveryAggregatesBySignature: distinct raw pairs sharing
// a signature collapse into one queue entry whose count is their sum,
// and a Matcher suggestion rides along without linking anything.
func TestRebuildDiscoveryAggregatesBySignature(t *testing.T) {
	// Same signature: the leading article is stripped by CleanArtist.
	pairA := matcher.InputPair{RawArtist: "The Beatles", RawTitle: "Hey Jude"}
	pairB := matcher.InputPair{RawArtist: "Beatles", RawTitle: "Hey Jude"}
	suggested := uuid.New()

	db := &fakeStore{
		unmatched: []database.UnmatchedPairCount{
			{RawArtist: pairA.RawArtist, RawTitle: pairA.RawTitle, Count: 3},
			{RawArtist: pairB.RawArtist, RawTitle: pairB.RawTitle, Count: 2},
			{RawArtist: "Obscure Artist", RawTitle: "Unknown Song", Count: 1},
		},
	}
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{
		pairA: {WorkID: &suggested, Reason: "Review", Classification: matcher.ClassificationReview},
		pairB: {WorkID: &suggested, Reason: "Review", Classification: matcher.ClassificationReview},
	}}

	r := New(db, mat)
	res, err := r.RebuildDiscovery(context.Background())
	if err != nil {
		t.Fatalf("RebuildDiscovery: %v", err)
	}
	if res.PairsConsidered != 3 {
		t.Fatalf("PairsConsidered = %d, want 3", res.PairsConsidered)
	}
	if res.QueueSize != 2 {
		t.Fatalf("QueueSize = %d, want 2 (two pairs share one signature)", res.QueueSize)
	}

	bySig := make(map[string]database.DiscoveryQueueSeed)
	for _, seed := range db.rebuiltSeeds {
		bySig[seed.Signature] = seed
	}

	shared := bySig[normalizer.GenerateSignature("The Beatles", "Hey Jude")]
	if shared.Count != 5 {
		t.Fatalf("shared-signature count = %d, want 5", shared.Count)
	}
	if shared.SuggestedWorkID == nil || *shared.SuggestedWorkID != suggested {
		t.Fatalf("shared-signature suggestion = %v, want %s", shared.SuggestedWorkID, suggested)
	}

	unknown := bySig[normalizer.GenerateSignature("Obscure Artist", "Unknown Song")]
	if unknown.Count != 1 || unknown.SuggestedWorkID != nil {
		t.Fatalf("unknown-pair seed = %+v, want count 1 and no suggestion", unknown)
	}
}

// TestRebuildDiscoveryEmptyBacklog: no unmatched logs still rewrites the
// queue (clearing stale entries) without consulting the Matcher.
func TestRebuildDiscoveryEmptyBacklog(t *testing.T) {
	db := &fakeStore{}
	mat := &fakeResolver{}
	r := New(db, mat)

	res, err := r.RebuildDiscovery(context.Background())
	if err != nil {
		t.Fatalf("RebuildDiscovery: %v", err)
	}
	if res.PairsConsidered != 0 || res.QueueSize != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if db.rebuildCalls != 1 {
		t.Fatalf("rebuildCalls = %d, want 1 (stale entries must still be cleared)", db.rebuildCalls)
	}
}
