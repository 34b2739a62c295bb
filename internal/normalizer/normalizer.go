// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package normalizer implements the pure, deterministic text-cleaning and
// signature-generation functions the rest of the identity resolution
// pipeline pivots on. Every function here is side-effect free: the same
// input always produces the same output, in this process or any other.
//
// Changing any function in this package is a re-signing event for every
// signature previously computed by generate_signature, since artist/title
// cleaning feeds directly into the MD5 hash that keys the Identity Bridge
// and Discovery Queue. Treat edits here as schema migrations.
package normalizer

import (
	"crypto/md5" //nolint:gosec // signature is an identity key, not a security hash
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes Unicode combining marks after NFKD decomposition,
// e.g. "café" -> "cafe".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	// remasterParen matches "(Remastered 2015)", "(Remaster)", "(2015 Remaster)".
	remasterParen = regexp.MustCompile(`(?i)\(\s*(?:\d{4}\s*)?remaster(?:ed)?\s*(?:\d{4}\s*)?\)`)
	// remasterDash matches "- Remaster", "- 2015 Remaster", "- Remastered 2015".
	remasterDash = regexp.MustCompile(`(?i)\s*-\s*(?:\d{4}\s*)?remaster(?:ed)?\s*(?:\d{4}\s*)?$`)
	// smartQuotes maps curly quotes/apostrophes to nothing (removed, not replaced with ASCII ').
	smartQuotes = strings.NewReplacer(
		"‘", "", "’", "", "“", "", "”", "", "`", "", "'", "",
	)
	ampersand   = regexp.MustCompile(`\s*[&+]\s*`)
	slashChar   = regexp.MustCompile(`/`)
	nonWord     = regexp.MustCompile(`[^\w ]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
	numericComa = regexp.MustCompile(`(\d),(\d)`)

	// featureSuffix matches a discrete "feat./ft./featuring/with <rest>" tail.
	featureSuffix = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring|with)\s+.+$`)

	leadingArticle = regexp.MustCompile(`(?i)^(the|a|an)\s+`)

	// collabMarkerTrailing strips a trailing collaboration marker word/phrase
	// left over after clean() (e.g. "artist duet", "artist vs").
	collabMarkerTrailing = regexp.MustCompile(`(?i)\s+(?:duet|vs\.?)$`)
)

// knownUnsplitArtists lists raw artist strings that must never be split
// even though they contain a splitter token (e.g. an ampersand or slash
// that is part of the act's actual name). Matching is case-insensitive
// against the raw (uncleaned) string.
var knownUnsplitArtists = map[string]bool{
	"ac/dc":        true,
	"p!nk":         true,
	"earth, wind & fire": true,
	"florence + the machine": true,
	"hall & oates":   true,
	"simon & garfunkel": true,
}

// clean is the canonical text cleaner shared by artist and title cleaning:
// Unicode NFKD + mark-stripping, lowercasing, remaster-parenthetical
// removal, punctuation normalization, and whitespace collapsing.
func clean(text string) string {
	if text == "" {
		return ""
	}

	out, _, err := transform.String(stripMarks, text)
	if err != nil {
		out = text
	}
	out = strings.ToLower(out)

	out = remasterParen.ReplaceAllString(out, "")
	out = remasterDash.ReplaceAllString(out, "")

	out = smartQuotes.Replace(out)
	out = ampersand.ReplaceAllString(out, " and ")
	out = slashChar.ReplaceAllString(out, " ")

	// Protect digit-group commas ("10,000") before nonWord strips commas
	// used as separators elsewhere.
	for numericComa.MatchString(out) {
		out = numericComa.ReplaceAllString(out, "$1$2")
	}

	out = nonWord.ReplaceAllString(out, " ")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Clean applies the canonical text cleaner to a title or generic string.
func Clean(text string) string {
	return clean(text)
}

// CleanArtist applies Clean plus artist-specific normalization: strips a
// leading English article, removes a trailing collaboration marker, and
// strips the feature-suffix tail when it is a discrete word boundary
// match on the raw input (so "Whiteford" is never mistaken for "with").
func CleanArtist(text string) string {
	if text == "" {
		return ""
	}

	// Feature-suffix stripping must run before NFKD/lowercasing removes
	// punctuation that would otherwise blur the word boundary, but the
	// regex itself is already anchored on whole words via \s+ and case
	// insensitivity, so operating on the raw string is safe and matches
	// spec: "applies only when the marker is a discrete word".
	stripped := featureSuffix.ReplaceAllString(text, "")

	out := clean(stripped)
	out = leadingArticle.ReplaceAllString(out, "")
	out = collabMarkerTrailing.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	return out
}

// splitPattern matches the discrete tokens split_artists breaks a raw artist
// string on. Ordered so multi-word tokens are matched before their
// single-word substrings.
var splitPattern = regexp.MustCompile(`(?i)\s*(?:,|/|&|\bfeaturing\b|\bfeat\.?\b|\bft\.?\b|\bwith\b|\band\b|\bduet\b|\bvs\.?\b)\s*`)

// SplitArtists splits a raw collaboration string into individual
// CleanArtist-normalized names, deduplicated in first-seen order. Strings
// on the known-exception list (e.g. "AC/DC") are returned unsplit.
func SplitArtists(text string) []string {
	if text == "" {
		return nil
	}

	if knownUnsplitArtists[strings.ToLower(strings.TrimSpace(text))] {
		return []string{CleanArtist(text)}
	}

	// Protect digit-group commas ("10,000") the same way clean() does,
	// before splitPattern's bare "," alternative gets a chance to treat
	// one as a collaboration separator.
	guarded := text
	for numericComa.MatchString(guarded) {
		guarded = numericComa.ReplaceAllString(guarded, "$1$2")
	}

	parts := splitPattern.Split(guarded, -1)
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		cp := CleanArtist(p)
		if cp == "" || seen[cp] {
			continue
		}
		seen[cp] = true
		out = append(out, cp)
	}
	return out
}

// GenerateSignature computes the stable 32-hex-character identity key
// joining a raw broadcast log line to any learned Identity Bridge or
// Discovery Queue entry: MD5(clean_artist(raw_artist) | clean(raw_title)).
func GenerateSignature(rawArtist, rawTitle string) string {
	payload := CleanArtist(rawArtist) + "|" + clean(rawTitle)
	sum := md5.Sum([]byte(payload)) //nolint:gosec // identity key, not a security boundary
	return hex.EncodeToString(sum[:])
}
