// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

// VersionType is the closed set of recording-version tags the Normalizer
// can extract from a raw title. It is the canonical serialization stored
// on Recording.version_type.
type VersionType string

// Recognized version tags.
const (
	VersionOriginal   VersionType = "Original"
	VersionLive       VersionType = "Live"
	VersionRemix      VersionType = "Remix"
	VersionAcoustic   VersionType = "Acoustic"
	VersionRadio      VersionType = "Radio"
	VersionRemastered VersionType = "Remastered"
	VersionDeluxe     VersionType = "Deluxe"
	VersionBonus      VersionType = "Bonus"
	VersionVirtual    VersionType = "Virtual"
)

// versionSpec pairs a detector regex (applied to the bracketed/parenthesized
// span) with the canonical tag it maps to. Order matters: more specific
// patterns (named remixes, radio edit) are tried before generic ones.
type versionSpec struct {
	pattern *regexp.Regexp
	tag     VersionType
}

var versionSpan = regexp.MustCompile(`[\(\[][^\(\)\[\]]*[\)\]]`)

var versionSpecs = []versionSpec{
	{regexp.MustCompile(`(?i)radio\s*edit`), VersionRadio},
	{regexp.MustCompile(`(?i)\bremix\b`), VersionRemix},
	{regexp.MustCompile(`(?i)\blive\b`), VersionLive},
	{regexp.MustCompile(`(?i)\bacoustic\b`), VersionAcoustic},
	{regexp.MustCompile(`(?i)\bremaster(?:ed)?\b|\b(19|20)\d{2}\s*remaster`), VersionRemastered},
	{regexp.MustCompile(`(?i)\bdeluxe\b`), VersionDeluxe},
	{regexp.MustCompile(`(?i)\bbonus\b`), VersionBonus},
	{regexp.MustCompile(`(?i)\bvirtual\b`), VersionVirtual},
}

// ExtractVersionType detects a bracketed/parenthesized version descriptor
// in a raw title and returns the title with the matched span removed plus
// the canonical tag. Returns VersionOriginal with the title unchanged (only
// whitespace-collapsed) when no tag matches.
//
// Part numbers and "The ..." subtitles are explicitly not extracted here:
// they distinguish one Work from another rather than one Recording of the
// same Work from another.
func ExtractVersionType(title string) (cleanTitle string, version VersionType) {
	loc := versionSpan.FindStringIndex(title)
	if loc == nil {
		return strings.TrimSpace(multiSpace.ReplaceAllString(title, " ")), VersionOriginal
	}

	span := title[loc[0]:loc[1]]
	tag := VersionOriginal
	for _, spec := range versionSpecs {
		if spec.pattern.MatchString(span) {
			tag = spec.tag
			break
		}
	}

	if tag == VersionOriginal {
		// Span present but unrecognized (e.g. a part number or subtitle) —
		// leave it in place and report no version tag.
		return strings.TrimSpace(multiSpace.ReplaceAllString(title, " ")), VersionOriginal
	}

	remainder := title[:loc[0]] + title[loc[1]:]
	remainder = multiSpace.ReplaceAllString(remainder, " ")
	return strings.TrimSpace(remainder), tag
}

// PartKind distinguishes the notation style a part number was extracted
// from, purely for diagnostic/explain purposes; part identity for Work
// separation is the numeric value, not the notation.
type PartKind string

const (
	PartKindPart     PartKind = "part"
	PartKindMovement PartKind = "movement"
	PartKindNumber   PartKind = "number"
	PartKindRoman    PartKind = "roman"
)

var (
	partWordRe  = regexp.MustCompile(`(?i)\b(?:part|pt\.?)\s*(\d+)\b`)
	movementRe  = regexp.MustCompile(`(?i)\b(?:movement|mvt\.?)\s*(\d+)\b`)
	numberRe    = regexp.MustCompile(`(?i)\b(?:no\.?|number)\s*(\d+)\b`)
	romanTokens = regexp.MustCompile(`\b[IVXivx]+\b`)
)

var romanValues = map[string]int{
	"ii": 2, "iii": 3, "iv": 4, "v": 5, "vi": 6, "vii": 7, "viii": 8, "ix": 9, "x": 10,
}

// ExtractPartNumber recognizes "Part N", "Pt. N", "Movement N"/"Mvt. N",
// "No. N"/"Number N", and Roman numerals II-X (and a standalone "I" only
// when it is not the first word, to avoid mistaking the English pronoun
// "I" for a part marker, e.g. "I Want to Hold Your Hand").
func ExtractPartNumber(title string) (kind PartKind, n int, ok bool) {
	if m := partWordRe.FindStringSubmatch(title); m != nil {
		v, _ := strconv.Atoi(m[1])
		return PartKindPart, v, true
	}
	if m := movementRe.FindStringSubmatch(title); m != nil {
		v, _ := strconv.Atoi(m[1])
		return PartKindMovement, v, true
	}
	if m := numberRe.FindStringSubmatch(title); m != nil {
		v, _ := strconv.Atoi(m[1])
		return PartKindNumber, v, true
	}

	words := strings.Fields(title)
	matches := romanTokens.FindAllStringIndex(title, -1)
	for _, loc := range matches {
		token := strings.ToLower(title[loc[0]:loc[1]])
		if token == "i" {
			// "I" is only a part marker when it is not the first word of
			// the title (otherwise it is indistinguishable from the
			// English pronoun, e.g. "I Want to Hold Your Hand").
			isFirstWord := len(words) > 0 && loc[0] == strings.Index(title, words[0])
			if isFirstWord {
				continue
			}
			return PartKindRoman, 1, true
		}
		if v, known := romanValues[token]; known {
			return PartKindRoman, v, true
		}
	}
	return "", 0, false
}
