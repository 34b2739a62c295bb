// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtistRole distinguishes a credited artist's role on a multi-artist Work.
type ArtistRole string

const (
	RolePrimary  ArtistRole = "primary"
	RoleFeatured ArtistRole = "featured"
)

// Artist is a performer or act. Name is stored normalized (Normalizer's
// CleanArtist output) and is unique; an Artist is never deleted while any
// Work references it.
type Artist struct {
	ID            uuid.UUID
	Name          string
	MusicBrainzID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Work is the abstract composition a broadcast event resolves to. Title is
// stored normalized. Uniqueness is logically per (Title, PrimaryArtistID);
// multi-artist credit is modeled via WorkArtist, not by a list here.
type Work struct {
	ID              uuid.UUID
	Title           string
	PrimaryArtistID *uuid.UUID
	IsInstrumental  bool
	// PartKind/PartNumber cache normalizer.ExtractPartNumber(Title) so
	// upsert_work's fuzzy-dedup asymmetry check doesn't
	// re-parse the title against every candidate.
	PartKind   *string
	PartNumber *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WorkArtist is the bridge relation modeling multi-artist Works.
type WorkArtist struct {
	WorkID   uuid.UUID
	ArtistID uuid.UUID
	Role     ArtistRole
}

// Recording is a concrete rendition of a Work: a specific live take,
// remix, or remaster. IsVerified is set true only by operator promotion
// (VerificationService), never by the automated Matcher.
type Recording struct {
	ID          uuid.UUID
	WorkID      uuid.UUID
	Title       string
	VersionType string
	Duration    *time.Duration
	ISRC        *string
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LibraryFile is a physical audio file on disk, attached to exactly one
// Recording. Path is normalized to forward slashes and is unique.
type LibraryFile struct {
	ID          uuid.UUID
	RecordingID uuid.UUID
	Path        string
	FileHash    *string
	Size        int64
	ModTime     time.Time
	Format      string
	Bitrate     *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Station is a radio station whose broadcast logs are ingested.
type Station struct {
	ID         uuid.UUID
	Callsign   string
	FormatCode *string
	CreatedAt  time.Time
}

// BroadcastLog is a single play event. WorkID is nil until resolved by the
// Matcher or a verification action; MatchReason records how.
type BroadcastLog struct {
	ID          uuid.UUID
	StationID   uuid.UUID
	PlayedAt    time.Time
	RawArtist   string
	RawTitle    string
	WorkID      *uuid.UUID
	MatchReason *string
	CreatedAt   time.Time
}
