// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package matcher implements the Identity Resolution Core's resolution
pipeline: given a batch of raw (artist, title) pairs
observed in broadcast logs, resolve each to a catalog Work, or flag it
for human review, or give up on it entirely.

The pipeline runs in five strictly ordered stages, each one only
seeing the pairs the previous stage could not resolve:

 1. Deduplicate the batch by signature (normalizer.GenerateSignature).
 2. Sweep the Identity Bridge cache in one bulk query.
 3. Try an exact SQL join on cleaned artist/title text.
 4. Fall back to the VectorIndex's nearest-neighbor search.
 5. Score every returned candidate and classify it against the
    configured thresholds, first rule wins.

Every original input pair sharing a resolved signature receives the
same result, so a caller handing in the same raw string a thousand
times pays for exactly one trip through stages 2-5.
*/
package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/matchutil"
	"github.com/airwave/radio-identity/internal/metrics"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
	"github.com/airwave/radio-identity/internal/vectorindex"
)

// vectorSearchK is the top-k used for the vector search stage.
const vectorSearchK = 10

// InputPair is one raw (artist, title) observation from a broadcast
// log, as submitted to Resolve.
type InputPair struct {
	RawArtist string
	RawTitle  string
}

// Classification is the disposition the classification rules assign a
// resolved pair.
type Classification string

const (
	ClassificationAuto   Classification = "auto"
	ClassificationReview Classification = "review"
	ClassificationReject Classification = "reject"
)

// Result is what Resolve returns for one InputPair: the Work it
// resolved to (nil if none), the free-text reason recorded on the
// BroadcastLog row, and the disposition that reason implies.
type Result struct {
	WorkID         *uuid.UUID
	Reason         string
	Classification Classification
}

// bridgeAndCatalog is the subset of *database.DB the Matcher calls.
// Matching it structurally keeps this package honest about its actual
// dependency surface and lets tests substitute a fake.
type bridgeAndCatalog interface {
	FindActiveBridgesBySignatures(ctx context.Context, signatures []string) (map[string]*models.IdentityBridge, error)
	ExactMatchRecordings(ctx context.Context, pairs []database.ArtistTitlePair) (map[database.ArtistTitlePair]database.ExactMatchResult, error)
	RecordingContexts(ctx context.Context, recordingIDs []uuid.UUID) (map[uuid.UUID]database.RecordingContext, error)
	ResolveAlias(ctx context.Context, rawName string) (*models.ArtistAlias, error)
}

// searcher is the subset of *vectorindex.Index the Matcher calls.
type searcher interface {
	SearchBatch(ctx context.Context, queries []vectorindex.Query, k int) ([][]vectorindex.Candidate, error)
}

// thresholds supplies the live classification thresholds. Satisfied by
// *thresholdstore.Store; accepting the interface (rather than a
// concrete snapshot) means the Matcher always reads whatever an
// operator most recently set, not what was true when it was
// constructed.
type thresholds interface {
	Current() config.ThresholdConfig
}

// Matcher resolves batches of raw broadcast-log pairs to catalog
// Works. It holds no state of its own beyond its collaborators; all
// per-batch state lives in the call to Resolve.
type Matcher struct {
	db     bridgeAndCatalog
	index  searcher
	thresh thresholds
}

// New builds a Matcher over the given catalog database, vector index,
// and live threshold snapshot.
func New(db bridgeAndCatalog, index searcher, thresh thresholds) *Matcher {
	return &Matcher{db: db, index: index, thresh: thresh}
}

// resolved is the per-signature working state threaded through the
// pipeline's stages.
type resolved struct {
	signature    string
	effArtist    string // alias-resolved, pre-clean
	aliasUsed    bool
	normArtist   string
	normTitle    string
	members      []InputPair
	result       *Result // set once a stage resolves this signature
	candidates   []vectorindex.Candidate
}

// Resolve runs the full pipeline over pairs and returns a Result for
// every distinct InputPair (by value).
func (m *Matcher) Resolve(ctx context.Context, pairs []InputPair) (map[InputPair]Result, error) {
	bySignature, order, err := m.run(ctx, pairs)
	if err != nil {
		return nil, err
	}

	out := make(map[InputPair]Result, len(pairs))
	for _, sig := range order {
		r := bySignature[sig]
		metrics.RecordMatcherResolution(string(r.result.Classification))
		for _, p := range r.members {
			out[p] = *r.result
		}
	}
	return out, nil
}

// run drives every stage of the pipeline and returns the resolved
// per-signature working state, shared by Resolve and ExplainPair so
// explain mode sees the same intermediate candidates the batch path
// classified from.
func (m *Matcher) run(ctx context.Context, pairs []InputPair) (map[string]*resolved, []string, error) {
	bySignature, order, err := m.dedupe(ctx, pairs)
	if err != nil {
		return nil, nil, fmt.Errorf("dedupe batch: %w", err)
	}

	if err := m.sweepBridges(ctx, bySignature, order); err != nil {
		return nil, nil, fmt.Errorf("bridge sweep: %w", err)
	}
	bridgeHits := len(order) - len(residualSignatures(bySignature, order))

	if err := m.exactMatch(ctx, bySignature, order); err != nil {
		return nil, nil, fmt.Errorf("exact match: %w", err)
	}
	vectorQueries := len(residualSignatures(bySignature, order))

	if err := m.vectorMatch(ctx, bySignature, order); err != nil {
		return nil, nil, fmt.Errorf("vector match: %w", err)
	}

	if err := m.classifyResidual(ctx, bySignature, order); err != nil {
		return nil, nil, fmt.Errorf("classify residual: %w", err)
	}

	metrics.RecordMatcherBatch(len(order), bridgeHits, vectorQueries)
	return bySignature, order, nil
}

// dedupe groups pairs by identity signature, resolving each pair's
// ArtistAlias once per unique raw artist along the way - aliases are
// consulted before any matching step sees the string.
func (m *Matcher) dedupe(ctx context.Context, pairs []InputPair) (map[string]*resolved, []string, error) {
	bySignature := make(map[string]*resolved)
	order := make([]string, 0, len(pairs))
	aliasCache := make(map[string]struct {
		artist string
		used   bool
	})

	for _, p := range pairs {
		eff, used := p.RawArtist, false
		if cached, ok := aliasCache[p.RawArtist]; ok {
			eff, used = cached.artist, cached.used
		} else {
			resolvedArtist, aliasUsed, err := m.resolveAlias(ctx, p.RawArtist)
			if err != nil {
				return nil, nil, err
			}
			eff, used = resolvedArtist, aliasUsed
			aliasCache[p.RawArtist] = struct {
				artist string
				used   bool
			}{eff, used}
		}

		sig := normalizer.GenerateSignature(eff, p.RawTitle)
		r, exists := bySignature[sig]
		if !exists {
			r = &resolved{
				signature:  sig,
				effArtist:  eff,
				aliasUsed:  used,
				normArtist: normalizer.CleanArtist(eff),
				normTitle:  normalizer.Clean(p.RawTitle),
			}
			bySignature[sig] = r
			order = append(order, sig)
		}
		r.members = append(r.members, p)
	}
	return bySignature, order, nil
}

// resolveAlias looks up rawArtist in the ArtistAlias table, returning
// the effective artist string to sign and match against.
func (m *Matcher) resolveAlias(ctx context.Context, rawArtist string) (effective string, used bool, err error) {
	alias, err := m.db.ResolveAlias(ctx, rawArtist)
	if err != nil {
		return "", false, err
	}
	if alias == nil {
		return rawArtist, false, nil
	}
	if alias.IsNull {
		return "", true, nil
	}
	if alias.ResolvedName != nil {
		return *alias.ResolvedName, true, nil
	}
	return rawArtist, false, nil
}

// sweepBridges resolves every signature with an active Identity
// Bridge.
func (m *Matcher) sweepBridges(ctx context.Context, bySignature map[string]*resolved, order []string) error {
	residual := make([]string, 0, len(order))
	for _, sig := range order {
		if bySignature[sig].result == nil {
			residual = append(residual, sig)
		}
	}
	if len(residual) == 0 {
		return nil
	}

	bridges, err := m.db.FindActiveBridgesBySignatures(ctx, residual)
	if err != nil {
		return err
	}
	for sig, b := range bridges {
		workID := b.WorkID
		bySignature[sig].result = &Result{
			WorkID:         &workID,
			Reason:         models.ReasonIdentityBridge.String(),
			Classification: ClassificationAuto,
		}
	}
	return nil
}

// exactMatch resolves every still-residual signature with an exact
// cleaned-text hit in Recording<->Work<->Artist.
func (m *Matcher) exactMatch(ctx context.Context, bySignature map[string]*resolved, order []string) error {
	residual := residualSignatures(bySignature, order)
	if len(residual) == 0 {
		return nil
	}

	queries := make([]database.ArtistTitlePair, len(residual))
	for i, sig := range residual {
		r := bySignature[sig]
		queries[i] = database.ArtistTitlePair{Artist: r.normArtist, Title: r.normTitle}
	}

	hits, err := m.db.ExactMatchRecordings(ctx, queries)
	if err != nil {
		return err
	}

	for i, sig := range residual {
		r := bySignature[sig]
		hit, ok := hits[queries[i]]
		if !ok {
			continue
		}
		workID := hit.WorkID
		r.result = &Result{
			WorkID:         &workID,
			Reason:         models.ReasonExactDBMatch.String(),
			Classification: ClassificationAuto,
		}
	}
	return nil
}

// residualSignatures returns the signatures not yet resolved, in batch
// order.
func residualSignatures(bySignature map[string]*resolved, order []string) []string {
	residual := make([]string, 0, len(order))
	for _, sig := range order {
		if bySignature[sig].result == nil {
			residual = append(residual, sig)
		}
	}
	return residual
}

// vectorMatch runs the nearest-neighbor search for every still-
// residual signature and stashes the raw candidates for scoring.
func (m *Matcher) vectorMatch(ctx context.Context, bySignature map[string]*resolved, order []string) error {
	residual := residualSignatures(bySignature, order)
	if len(residual) == 0 {
		return nil
	}

	queries := make([]vectorindex.Query, len(residual))
	for i, sig := range residual {
		r := bySignature[sig]
		queries[i] = vectorindex.Query{CleanArtist: r.normArtist, CleanTitle: r.normTitle}
	}

	results, err := m.index.SearchBatch(ctx, queries, vectorSearchK)
	if err != nil {
		return err
	}
	if len(results) != len(residual) {
		return fmt.Errorf("vector search returned %d result sets for %d queries", len(results), len(residual))
	}

	for i, sig := range residual {
		bySignature[sig].candidates = results[i]
	}
	return nil
}

// classifyResidual scores and classifies every residual signature's
// candidates against the live thresholds.
func (m *Matcher) classifyResidual(ctx context.Context, bySignature map[string]*resolved, order []string) error {
	residual := residualSignatures(bySignature, order)
	if len(residual) == 0 {
		return nil
	}

	recordingIDs := uniqueCandidateIDs(bySignature, residual)
	contexts, err := m.db.RecordingContexts(ctx, recordingIDs)
	if err != nil {
		return err
	}

	th := m.thresh.Current()
	for _, sig := range residual {
		r := bySignature[sig]
		r.result = classifyCandidates(r.candidates, contexts, r.normArtist, r.normTitle, th)
		if r.result.Classification == ClassificationReview || r.result.Classification == ClassificationReject {
			logging.Debug().
				Str("signature", sig).
				Str("reason", r.result.Reason).
				Msg("matcher: pair requires review or produced no match")
		}
	}
	return nil
}

func uniqueCandidateIDs(bySignature map[string]*resolved, residual []string) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, sig := range residual {
		for _, c := range bySignature[sig].candidates {
			if _, ok := seen[c.RecordingID]; ok {
				continue
			}
			seen[c.RecordingID] = struct{}{}
			ids = append(ids, c.RecordingID)
		}
	}
	return ids
}

// classifyCandidates scans candidates in ascending distance order
// (vectorindex.Candidate's documented order) and returns the result of
// the first rule any candidate satisfies, or a No Match Found result
// if none do.
func classifyCandidates(candidates []vectorindex.Candidate, contexts map[uuid.UUID]database.RecordingContext, queryArtist, queryTitle string, th config.ThresholdConfig) *Result {
	sorted := make([]vectorindex.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	for _, c := range sorted {
		ctxRec, ok := contexts[c.RecordingID]
		if !ok {
			continue
		}
		score := scoreCandidate(ctxRec, c.Distance, queryArtist, queryTitle)
		reason, cls, matched := classify(score, th)
		if !matched {
			continue
		}
		workID := ctxRec.WorkID
		return &Result{WorkID: &workID, Reason: reason, Classification: cls}
	}
	return &Result{WorkID: nil, Reason: models.ReasonNoMatch.String(), Classification: ClassificationReject}
}

// candidateScore is the per-candidate scoring vector the
// classification table branches on.
type candidateScore struct {
	ArtistSim  float64
	TitleSim   float64
	VectorDist float64
}

// scoreCandidate computes artist_sim (the max similarity over every
// credited artist, not only the primary one) and title_sim.
func scoreCandidate(rec database.RecordingContext, vectorDist float64, queryArtist, queryTitle string) candidateScore {
	var artistSim float64
	for _, name := range rec.ArtistNames {
		if sim := matchutil.Ratio(name, queryArtist); sim > artistSim {
			artistSim = sim
		}
	}
	return candidateScore{
		ArtistSim:  artistSim,
		TitleSim:   matchutil.Ratio(rec.Title, queryTitle),
		VectorDist: vectorDist,
	}
}
