// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
metadata.go - Per-File Metadata Extraction

Extraction is filename-only: the "{Artist} - {Title}" fallback that
normally covers the no-tags case is the only case. Tag-based extraction
is a MetadataExtractor implementation a future change can slot in
without touching the scan pipeline itself.
*/
package scanner

import (
	"path/filepath"
	"strings"
)

// LibraryMetadata is what Scanner needs about one file to upsert the
// catalog hierarchy.
type LibraryMetadata struct {
	RawArtist   string
	RawTitle    string
	AlbumArtist string
	AlbumTitle  string
	Format      string
}

// MetadataExtractor extracts LibraryMetadata from a file path. The
// default filenameExtractor never returns an error; a future
// tag-reading implementation would return one for unreadable/corrupt
// files, surfaced to the caller as catalogerr.ErrMetadataCorrupt.
type MetadataExtractor interface {
	Extract(path string) (LibraryMetadata, error)
}

// filenameExtractor parses "{Artist} - {Title}" out of the filename as
// the sole extraction strategy.
type filenameExtractor struct{}

// NewFilenameExtractor returns the default MetadataExtractor.
func NewFilenameExtractor() MetadataExtractor {
	return filenameExtractor{}
}

func (filenameExtractor) Extract(path string) (LibraryMetadata, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	artist, title := splitArtistTitle(stem)
	return LibraryMetadata{
		RawArtist: artist,
		RawTitle:  title,
		Format:    strings.TrimPrefix(strings.ToLower(ext), "."),
	}, nil
}

// splitArtistTitle parses "{Artist} - {Title}" from a filename stem. A
// stem with no " - " separator becomes the title alone, artist empty.
func splitArtistTitle(stem string) (artist, title string) {
	if idx := strings.Index(stem, " - "); idx >= 0 {
		return strings.TrimSpace(stem[:idx]), strings.TrimSpace(stem[idx+3:])
	}
	return "", strings.TrimSpace(stem)
}

// isAudioFile reports whether path has a recognized audio extension.
func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".flac", ".m4a", ".ogg", ".wav", ".aac", ".wma", ".opus":
		return true
	default:
		return false
	}
}

// normalizePath forces forward slashes, so the
// same file has one canonical path regardless of the host OS.
func normalizePath(path string) string {
	return filepath.ToSlash(path)
}
