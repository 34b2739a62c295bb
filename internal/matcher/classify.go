// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package matcher

import (
	"fmt"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/models"
)

// classify applies the classification table to
// one candidate's score, in rule-priority order. The second return
// value is false if the candidate satisfies none of the rules.
func classify(score candidateScore, th config.ThresholdConfig) (reason string, cls Classification, matched bool) {
	switch {
	case score.ArtistSim == 1 && score.TitleSim == 1:
		return models.ReasonExactTextMatch.String(), ClassificationAuto, true

	case score.ArtistSim > th.ArtistAuto && score.TitleSim > th.TitleAuto:
		return fmt.Sprintf("%s (A:%.2f, T:%.2f, V:%.2f)", models.ReasonHighConfidence, score.ArtistSim, score.TitleSim, score.VectorDist),
			ClassificationAuto, true

	case score.VectorDist < th.VectorStrong && score.TitleSim >= th.VectorTitleGuard:
		return fmt.Sprintf("Vector Similarity (Very High: %.3f)", score.VectorDist), ClassificationAuto, true

	case score.TitleSim > th.TitleVector && score.VectorDist < th.TitleVectorDist:
		return models.ReasonTitleVector.String(), ClassificationReview, true

	case score.ArtistSim >= th.ArtistReview && score.TitleSim >= th.TitleReview:
		return models.ReasonReview.String(), ClassificationReview, true

	default:
		return "", "", false
	}
}
