// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/vectorindex"
)

// explainCandidateLimit caps how many scored candidates ExplainPair
// surfaces.
const explainCandidateLimit = 5

// ExplainCandidate is one scored candidate surfaced by explain mode,
// in the same ascending-distance order the classifier scanned.
type ExplainCandidate struct {
	RecordingID uuid.UUID
	WorkID      uuid.UUID
	ArtistSim   float64
	TitleSim    float64
	VectorDist  float64
	Warnings    []QualityWarning
}

// ExplainResult is ExplainPair's return value: the same Result the
// batch path would have produced, plus the reasoning behind it.
type ExplainResult struct {
	Result

	Candidates []ExplainCandidate
	EdgeCases  []string

	// MeanSimilarity/StdDevSimilarity summarize the combined
	// (artist_sim+title_sim)/2 of every scored candidate, not only the
	// ones surfaced in Candidates.
	MeanSimilarity   float64
	StdDevSimilarity float64
}

// ExplainPair resolves a single pair the same way Resolve would, but
// additionally returns the candidates considered and why the winner
// (or lack of one) was chosen.
func (m *Matcher) ExplainPair(ctx context.Context, pair InputPair) (*ExplainResult, error) {
	bySignature, order, err := m.run(ctx, []InputPair{pair})
	if err != nil {
		return nil, fmt.Errorf("explain pair: %w", err)
	}
	if len(order) != 1 {
		return nil, fmt.Errorf("explain pair: expected exactly one signature, got %d", len(order))
	}
	r := bySignature[order[0]]

	result := ExplainResult{Result: *r.result}
	if len(r.candidates) == 0 {
		return &result, nil
	}

	recordingIDs := make([]uuid.UUID, len(r.candidates))
	for i, c := range r.candidates {
		recordingIDs[i] = c.RecordingID
	}
	contexts, err := m.db.RecordingContexts(ctx, recordingIDs)
	if err != nil {
		return nil, fmt.Errorf("explain pair: recording contexts: %w", err)
	}

	sorted := make([]vectorindex.Candidate, len(r.candidates))
	copy(sorted, r.candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	th := m.thresh.Current()
	combined := make([]float64, 0, len(sorted))
	for i, c := range sorted {
		ctxRec, ok := contexts[c.RecordingID]
		if !ok {
			continue
		}
		score := scoreCandidate(ctxRec, c.Distance, r.normArtist, r.normTitle)
		combined = append(combined, (score.ArtistSim+score.TitleSim)/2)

		if i == 0 {
			result.EdgeCases = edgeCases(score, th, r.result.Classification)
		}

		if len(result.Candidates) >= explainCandidateLimit {
			continue
		}
		result.Candidates = append(result.Candidates, ExplainCandidate{
			RecordingID: ctxRec.RecordingID,
			WorkID:      ctxRec.WorkID,
			ArtistSim:   score.ArtistSim,
			TitleSim:    score.TitleSim,
			VectorDist:  score.VectorDist,
			Warnings:    detectWarnings(pair.RawArtist, r.normTitle, r.aliasUsed, ctxRec),
		})
	}

	if len(combined) > 0 {
		data := stats.Float64Data(combined)
		if mean, err := data.Mean(); err == nil {
			result.MeanSimilarity = mean
		}
		if stddev, err := data.StandardDeviation(); err == nil {
			result.StdDevSimilarity = stddev
		}
	}

	return &result, nil
}

// edgeCases flags near-miss classifications: a review/reject result
// whose score sits within 5% of the threshold that would have
// promoted it, so an operator reviewing the Discovery Queue can see it
// was a close call rather than a clear non-match.
func edgeCases(score candidateScore, th config.ThresholdConfig, cls Classification) []string {
	var out []string

	if cls != ClassificationAuto &&
		score.ArtistSim >= th.ArtistAuto*0.95 && score.TitleSim >= th.TitleAuto*0.95 {
		out = append(out, "within_5pct_of_auto")
	}

	if cls == ClassificationReject &&
		score.ArtistSim >= th.ArtistReview*0.95 && score.TitleSim >= th.TitleReview*0.95 {
		out = append(out, "within_5pct_of_review")
	}

	return out
}
