// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package reevaluator implements the Re-evaluator: after a
threshold change, or on explicit operator request, every previously
unmatched or review-classified BroadcastLog pair is re-run through the
Matcher, and every row sharing a resolved pair is updated in one bulk
statement.

The package also owns the Discovery Queue rebuild: the same
distinct-pairs-through-the-Matcher sweep, but instead of writing
verdicts back to BroadcastLog it reconstructs the queue of unmatched
signatures awaiting human verification, carrying the Matcher's best
guess as each entry's suggested Work without hard-linking anything.

There is no event bus to hang an on-threshold-change subscription off;
the composition root wires this the same way the operator's explicit
request is wired -
by calling Run after a successful thresholdstore.Store.Update - rather
than inventing a pub/sub layer this codebase has no other use for.
*/
package reevaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/matcher"
	"github.com/airwave/radio-identity/internal/metrics"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// store is the subset of *database.DB the Re-evaluator calls.
type store interface {
	ListUnresolvedPairs(ctx context.Context) ([]database.UnresolvedPair, error)
	UpdateBroadcastLogsByPair(ctx context.Context, rawArtist, rawTitle string, workID *uuid.UUID, matchReason string) (int64, error)
	ListUnmatchedPairCounts(ctx context.Context) ([]database.UnmatchedPairCount, error)
	RebuildDiscoveryQueue(ctx context.Context, seeds []database.DiscoveryQueueSeed) (int, error)
}

// resolver is the subset of *matcher.Matcher the Re-evaluator calls.
type resolver interface {
	Resolve(ctx context.Context, pairs []matcher.InputPair) (map[matcher.InputPair]matcher.Result, error)
}

// Reevaluator re-runs the Matcher over every currently-unresolved or
// review-classified pair.
type Reevaluator struct {
	db  store
	mat resolver
}

// New constructs a Reevaluator.
func New(db store, mat resolver) *Reevaluator {
	return &Reevaluator{db: db, mat: mat}
}

// Result summarizes one completed re-evaluation pass, reported in units
// of unique pairs, not rows.
type Result struct {
	PairsConsidered int
	PairsChanged    int
	RowsUpdated     int
	Duration        time.Duration
}

// Run re-evaluates every unresolved/review pair and bulk-applies the
// Matcher's verdicts. A catalog and threshold snapshot unchanged since
// the last pass is a no-op: every pair the Matcher re-classifies lands
// on the same reason string it already had, and UpdateBroadcastLogsByPair
// still runs but affects the same rows it already held, so a pass over
// an unchanged catalog with unchanged thresholds is a no-op.
func (r *Reevaluator) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	pairs, err := r.db.ListUnresolvedPairs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reevaluate: list unresolved pairs: %w", err)
	}

	inputs := make([]matcher.InputPair, 0, len(pairs))
	for _, p := range pairs {
		inputs = append(inputs, matcher.InputPair{RawArtist: p.RawArtist, RawTitle: p.RawTitle})
	}

	res := Result{PairsConsidered: len(inputs)}
	if len(inputs) == 0 {
		res.Duration = time.Since(start)
		metrics.RecordReevaluation(res.PairsConsidered, res.RowsUpdated, res.Duration)
		return res, nil
	}

	verdicts, err := r.mat.Resolve(ctx, inputs)
	if err != nil {
		return res, fmt.Errorf("reevaluate: resolve batch: %w", err)
	}

	for pair, verdict := range verdicts {
		rowsAffected, err := r.db.UpdateBroadcastLogsByPair(ctx, pair.RawArtist, pair.RawTitle, verdict.WorkID, verdict.Reason)
		if err != nil {
			logging.WithComponent("reevaluator").Error().
				Str("raw_artist", pair.RawArtist).Str("raw_title", pair.RawTitle).
				Err(err).Msg("bulk update failed")
			continue
		}
		if rowsAffected > 0 {
			res.PairsChanged++
			res.RowsUpdated += int(rowsAffected)
		}
	}

	res.Duration = time.Since(start)
	metrics.RecordReevaluation(res.PairsConsidered, res.RowsUpdated, res.Duration)
	return res, nil
}

// RebuildResult summarizes one Discovery Queue rebuild.
type RebuildResult struct {
	PairsConsidered int
	QueueSize       int
	Duration        time.Duration
}

// RebuildDiscovery reconstructs the Discovery Queue from every
// currently-unmatched BroadcastLog pair: distinct pairs are resolved
// through the Matcher once, aggregated by signature, and written back
// as the queue's new contents in one transaction. Verdicts only feed
// each entry's suggested Work - no log is linked here; linking stays
// with Run and the operator's Link/Promote actions.
func (r *Reevaluator) RebuildDiscovery(ctx context.Context) (RebuildResult, error) {
	start := time.Now()
	pairs, err := r.db.ListUnmatchedPairCounts(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("rebuild discovery: list unmatched pairs: %w", err)
	}

	res := RebuildResult{PairsConsidered: len(pairs)}
	if len(pairs) == 0 {
		size, err := r.db.RebuildDiscoveryQueue(ctx, nil)
		if err != nil {
			return res, fmt.Errorf("rebuild discovery: %w", err)
		}
		res.QueueSize = size
		res.Duration = time.Since(start)
		metrics.DiscoveryQueueDepth.Set(float64(size))
		return res, nil
	}

	inputs := make([]matcher.InputPair, 0, len(pairs))
	for _, p := range pairs {
		inputs = append(inputs, matcher.InputPair{RawArtist: p.RawArtist, RawTitle: p.RawTitle})
	}
	verdicts, err := r.mat.Resolve(ctx, inputs)
	if err != nil {
		return res, fmt.Errorf("rebuild discovery: resolve batch: %w", err)
	}

	// Aggregate by raw signature: distinct raw pairs can share one, and
	// the queue's Link validation recomputes exactly this hash from the
	// stored raw values.
	bySignature := make(map[string]*database.DiscoveryQueueSeed)
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		sig := normalizer.GenerateSignature(p.RawArtist, p.RawTitle)
		seed, ok := bySignature[sig]
		if !ok {
			seed = &database.DiscoveryQueueSeed{Signature: sig, RawArtist: p.RawArtist, RawTitle: p.RawTitle}
			bySignature[sig] = seed
			order = append(order, sig)
		}
		seed.Count += p.Count
		verdict := verdicts[matcher.InputPair{RawArtist: p.RawArtist, RawTitle: p.RawTitle}]
		if seed.SuggestedWorkID == nil && verdict.WorkID != nil {
			seed.SuggestedWorkID = verdict.WorkID
		}
	}

	seeds := make([]database.DiscoveryQueueSeed, 0, len(order))
	for _, sig := range order {
		seeds = append(seeds, *bySignature[sig])
	}

	size, err := r.db.RebuildDiscoveryQueue(ctx, seeds)
	if err != nil {
		return res, fmt.Errorf("rebuild discovery: %w", err)
	}
	res.QueueSize = size
	res.Duration = time.Since(start)
	metrics.DiscoveryQueueDepth.Set(float64(size))

	logging.WithComponent("reevaluator").Info().
		Int("pairs", res.PairsConsidered).
		Int("queue_size", res.QueueSize).
		Dur("duration", res.Duration).
		Msg("discovery queue rebuilt")
	return res, nil
}
