// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExceptionList holds operator-curated collaboration strings that
// should never generate a ProposedSplit, on top
// of normalizer's small hardcoded knownUnsplitArtists table. An
// operator managing a specific station's library knows collaborations
// the normalizer's built-in list was never meant to cover; this file
// is how they teach the Scanner about them without a code change.
type ExceptionList struct {
	entries map[string]struct{}
}

// exceptionFile is the on-disk shape of the YAML exceptions file:
//
//	known_collaborations:
//	  - "artist a & artist b"
//	  - "artist c feat. artist d"
type exceptionFile struct {
	KnownCollaborations []string `yaml:"known_collaborations"`
}

// LoadExceptions reads an ExceptionList from path. A missing path is
// not an error - it simply means no operator-curated exceptions exist
// yet - but a malformed file is.
func LoadExceptions(path string) (*ExceptionList, error) {
	if path == "" {
		return &ExceptionList{entries: map[string]struct{}{}}, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ExceptionList{entries: map[string]struct{}{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	var parsed exceptionFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse exceptions %s: %w", path, err)
	}

	entries := make(map[string]struct{}, len(parsed.KnownCollaborations))
	for _, e := range parsed.KnownCollaborations {
		entries[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &ExceptionList{entries: entries}, nil
}

// Contains reports whether rawArtist (pre-normalization, as it reads in
// the source file) is an operator-curated known collaboration.
func (e *ExceptionList) Contains(rawArtist string) bool {
	if e == nil {
		return false
	}
	_, ok := e.entries[strings.ToLower(strings.TrimSpace(rawArtist))]
	return ok
}
