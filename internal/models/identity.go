// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityBridge caches a learned mapping from a raw-log signature to a
// catalog Work. At most one bridge row is active (IsRevoked=false) for a
// given signature at any time.
type IdentityBridge struct {
	ID               uuid.UUID
	LogSignature     string
	ReferenceArtist  string
	ReferenceTitle   string
	WorkID           uuid.UUID
	Confidence       float64
	IsRevoked        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DiscoveryQueueEntry aggregates unmatched signatures pending human
// verification. For any signature, either an active Bridge or a Queue
// entry exists, never both.
type DiscoveryQueueEntry struct {
	Signature        string
	RawArtist        string
	RawTitle         string
	Count            int64
	SuggestedWorkID  *uuid.UUID
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
}

// AuditAction is the closed set of operator/system actions that produce a
// VerificationAudit row.
type AuditAction string

const (
	ActionLink         AuditAction = "link"
	ActionPromote      AuditAction = "promote"
	ActionDismiss      AuditAction = "dismiss"
	ActionManualBridge AuditAction = "manual_bridge"
	ActionBulkLink     AuditAction = "bulk_link"
	ActionBulkPromote  AuditAction = "bulk_promote"
	ActionUndo         AuditAction = "undo"
)

// VerificationAudit is an append-only record of one verification action.
// IsUndone flips from false to true at most once, via a follow-up ActionUndo
// row referencing a different ID.
type VerificationAudit struct {
	ID          uuid.UUID
	ActionType  AuditAction
	Signature   string
	RawArtist   string
	RawTitle    string
	WorkID      *uuid.UUID
	LogIDs      []uuid.UUID
	BridgeID    *uuid.UUID
	IsUndone    bool
	UndoneAt    *time.Time
	PerformedBy *string
	CreatedAt   time.Time
}

// StationPreference ranks a preferred Recording for a Work on a specific
// station, ahead of format- and work-level defaults.
type StationPreference struct {
	StationID             uuid.UUID
	WorkID                uuid.UUID
	PreferredRecordingID  uuid.UUID
	Priority              int
}

// FormatPreference ranks a preferred Recording for a Work for an entire
// station format (e.g. "classic_rock").
type FormatPreference struct {
	FormatCode            string
	WorkID                uuid.UUID
	PreferredRecordingID  uuid.UUID
	Priority              int
	ExcludeTags           []string
}

// WorkDefaultRecording is the fallback Recording for a Work when no
// station- or format-level preference applies.
type WorkDefaultRecording struct {
	WorkID             uuid.UUID
	DefaultRecordingID uuid.UUID
}

// SplitStatus is the disposition of a ProposedSplit.
type SplitStatus string

const (
	SplitPending  SplitStatus = "pending"
	SplitApproved SplitStatus = "approved"
	SplitRejected SplitStatus = "rejected"
)

// ProposedSplit surfaces an ambiguous raw collaboration artist string
// (e.g. "Artist A / Artist B" with no album-artist hint) for a human to
// decide whether it names one act or several.
type ProposedSplit struct {
	ID               uuid.UUID
	RawArtist        string
	ProposedArtists  []string
	Status           SplitStatus
	Confidence       float64
	CreatedAt        time.Time
}

// ArtistAlias maps a raw artist string observed in metadata or logs to its
// canonical resolved name, consulted before matching.
type ArtistAlias struct {
	RawName      string
	ResolvedName *string
	IsVerified   bool
	IsNull       bool
}
