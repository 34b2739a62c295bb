// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package matcher

import (
	"regexp"

	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// QualityWarning is a closed enum of the explain-mode quality signals
//; the original free-text warning
// strings are replaced with a typed set per the REDESIGN FLAGS guidance
// on closed enums.
type QualityWarning int

const (
	// WarningFeaturingSuffix notes the raw artist carried a "feat./ft./
	// featuring" tail that CleanArtist stripped before matching.
	WarningFeaturingSuffix QualityWarning = iota
	// WarningTitleLengthDivergence notes the candidate and query clean
	// titles differ in length by more than 3x, a common symptom of a
	// title matching only a substring of the other (e.g. a medley).
	WarningTitleLengthDivergence
	// WarningPartNumberAsymmetry notes the candidate Work's cached part
	// number ("Part N"/"Movement N"/roman numeral) disagrees with the
	// query title's, or only one side has one at all.
	WarningPartNumberAsymmetry
	// WarningArtistAliasUsed notes the query artist was substituted via
	// an ArtistAlias entry before matching.
	WarningArtistAliasUsed
)

func (w QualityWarning) String() string {
	switch w {
	case WarningFeaturingSuffix:
		return "artist contains featuring suffix"
	case WarningTitleLengthDivergence:
		return "title length differs > 3x"
	case WarningPartNumberAsymmetry:
		return "part number asymmetry between query and candidate"
	case WarningArtistAliasUsed:
		return "artist resolved via alias"
	default:
		return "unknown"
	}
}

var featuringTail = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+\S`)

// detectWarnings computes the quality warnings for one candidate, per
// "artist contains featuring suffix" and "title length differs > 3x"
// style hints for explain mode.
func detectWarnings(rawArtist, queryTitle string, aliasUsed bool, rec database.RecordingContext) []QualityWarning {
	var warnings []QualityWarning

	if featuringTail.MatchString(rawArtist) {
		warnings = append(warnings, WarningFeaturingSuffix)
	}

	if aliasUsed {
		warnings = append(warnings, WarningArtistAliasUsed)
	}

	if qLen, cLen := len(queryTitle), len(rec.Title); qLen > 0 && cLen > 0 {
		longer, shorter := float64(qLen), float64(cLen)
		if shorter > longer {
			longer, shorter = shorter, longer
		}
		if longer > shorter*3 {
			warnings = append(warnings, WarningTitleLengthDivergence)
		}
	}

	_, queryNum, queryHasPart := normalizer.ExtractPartNumber(queryTitle)
	candHasPart := rec.PartNumber != nil
	switch {
	case queryHasPart != candHasPart:
		warnings = append(warnings, WarningPartNumberAsymmetry)
	case queryHasPart && candHasPart && queryNum != *rec.PartNumber:
		warnings = append(warnings, WarningPartNumberAsymmetry)
	}

	return warnings
}
