// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package verification implements the operator-facing verification
actions: Link, Promote, Dismiss, and Undo over a signature in the
Discovery Queue, plus ResolveAlias for the ArtistAlias canonicalization
step that runs before matching.

The package is a thin orchestration layer: signature validation and
catalog-hierarchy construction happen here, using internal/normalizer's
pure functions exactly as the Matcher (internal/matcher) does; the
atomic bridge/log/queue/audit mutation itself lives in
internal/database's verification_actions.go.
*/
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/metrics"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// store is the subset of *database.DB the service needs, matched
// structurally so tests can fake it without a real DuckDB connection.
type store interface {
	GetDiscoveryQueueEntry(ctx context.Context, signature string) (*models.DiscoveryQueueEntry, error)
	LinkAction(ctx context.Context, req database.LinkRequest) (*models.VerificationAudit, error)
	PromoteAction(ctx context.Context, req database.PromoteRequest) (*models.VerificationAudit, error)
	DismissAction(ctx context.Context, signature, rawArtist, rawTitle string, performedBy *string) (*models.VerificationAudit, error)
	UndoAction(ctx context.Context, auditID uuid.UUID, performedBy *string) (*models.VerificationAudit, error)
	FindAuditByID(ctx context.Context, id uuid.UUID) (*models.VerificationAudit, error)
	ListDiscoveryQueue(ctx context.Context, limit int) ([]models.DiscoveryQueueEntry, error)

	UpsertArtist(ctx context.Context, cleanName string) (*models.Artist, error)
	UpsertWork(ctx context.Context, cleanTitle string, primaryArtistID *uuid.UUID, respectParts bool, threshold float64, maxWorks int) (*models.Work, error)
	LinkWorkArtists(ctx context.Context, workID uuid.UUID, artistIDs []uuid.UUID, primaryID *uuid.UUID) error
	UpsertRecording(ctx context.Context, workID uuid.UUID, title, versionType string, duration *time.Duration, isrc *string) (*models.Recording, error)

	ResolveAlias(ctx context.Context, rawName string) (*models.ArtistAlias, error)
	UpsertArtistAlias(ctx context.Context, rawName string, resolvedName *string, isNull bool) error
	VerifyArtistAlias(ctx context.Context, rawName string) error
}

// Service runs the verification actions over a store (a *database.DB
// in production).
type Service struct {
	db         store
	thresholds config.ThresholdConfig
	auditLog   *logging.AuditLogger
}

// New constructs a Service. thresholds governs the fuzzy-dedup pass
// Promote's catalog upserts run through - the same values the Matcher
// reads from internal/thresholdstore.
func New(db store, thresholds config.ThresholdConfig) *Service {
	return &Service{db: db, thresholds: thresholds, auditLog: logging.NewAuditLogger()}
}

func validateSignature(rawArtist, rawTitle, signature string) error {
	if normalizer.GenerateSignature(rawArtist, rawTitle) != signature {
		return fmt.Errorf("recomputed signature does not match %q: %w", signature, catalogerr.ErrSignatureMismatch)
	}
	return nil
}

// Link resolves a queued signature to an existing Work. performedBy is
// an optional operator identifier carried onto the audit row.
func (s *Service) Link(ctx context.Context, signature string, workID uuid.UUID, performedBy *string) (*models.VerificationAudit, error) {
	entry, err := s.db.GetDiscoveryQueueEntry(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("link: look up queue entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("link: signature %q: %w", signature, catalogerr.ErrNotFound)
	}
	if err := validateSignature(entry.RawArtist, entry.RawTitle, signature); err != nil {
		return nil, err
	}

	audit, err := s.db.LinkAction(ctx, database.LinkRequest{
		Signature:   signature,
		RawArtist:   entry.RawArtist,
		RawTitle:    entry.RawTitle,
		WorkID:      workID,
		Confidence:  1.0,
		PerformedBy: performedBy,
	})
	metrics.RecordVerificationAction("link", err)
	if err != nil {
		s.auditLog.LogFailure("link", signature, performedBy, err)
		return nil, fmt.Errorf("link: %w", err)
	}
	s.auditLog.LogLink(signature, workID.String(), performedBy)
	return audit, nil
}

// PromoteResult is what a caller needs to know after Promote: the audit
// row plus the catalog IDs it resolved or created.
type PromoteResult struct {
	Audit       *models.VerificationAudit
	WorkID      uuid.UUID
	RecordingID uuid.UUID
}

// Promote resolves a queued signature into the catalog hierarchy -
// upserting Artist/Work/Recording from the queue's normalized values -
// then bridges and detaches logs exactly as Link does. Collaboration
// artist strings are split via normalizer.SplitArtists; the first is
// primary, the rest featured.
func (s *Service) Promote(ctx context.Context, signature string, performedBy *string) (*PromoteResult, error) {
	entry, err := s.db.GetDiscoveryQueueEntry(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("promote: look up queue entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("promote: signature %q: %w", signature, catalogerr.ErrNotFound)
	}
	if err := validateSignature(entry.RawArtist, entry.RawTitle, signature); err != nil {
		return nil, err
	}

	artistNames := normalizer.SplitArtists(entry.RawArtist)
	if len(artistNames) == 0 {
		return nil, fmt.Errorf("promote: signature %q: raw artist %q normalizes to nothing", signature, entry.RawArtist)
	}

	artistIDs := make([]uuid.UUID, 0, len(artistNames))
	for _, name := range artistNames {
		artist, err := s.db.UpsertArtist(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("promote: upsert artist %q: %w", name, err)
		}
		artistIDs = append(artistIDs, artist.ID)
	}
	primaryID := artistIDs[0]

	cleanTitle, versionType := normalizer.ExtractVersionType(normalizer.Clean(entry.RawTitle))
	work, err := s.db.UpsertWork(ctx, cleanTitle, &primaryID, true, s.thresholds.WorkFuzzyThreshold, s.thresholds.WorkFuzzyMaxWorks)
	if err != nil {
		return nil, fmt.Errorf("promote: upsert work: %w", err)
	}
	if err := s.db.LinkWorkArtists(ctx, work.ID, artistIDs, &primaryID); err != nil {
		return nil, fmt.Errorf("promote: link work artists: %w", err)
	}

	recording, err := s.db.UpsertRecording(ctx, work.ID, cleanTitle, string(versionType), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("promote: upsert recording: %w", err)
	}

	audit, err := s.db.PromoteAction(ctx, database.PromoteRequest{
		LinkRequest: database.LinkRequest{
			Signature:   signature,
			RawArtist:   entry.RawArtist,
			RawTitle:    entry.RawTitle,
			WorkID:      work.ID,
			Confidence:  1.0,
			PerformedBy: performedBy,
		},
		RecordingID: recording.ID,
	})
	metrics.RecordVerificationAction("promote", err)
	if err != nil {
		s.auditLog.LogFailure("promote", signature, performedBy, err)
		return nil, fmt.Errorf("promote: %w", err)
	}

	s.auditLog.LogPromote(signature, work.ID.String(), recording.ID.String(), performedBy)
	return &PromoteResult{Audit: audit, WorkID: work.ID, RecordingID: recording.ID}, nil
}

// Dismiss removes a queued signature from further consideration without
// creating a bridge.
func (s *Service) Dismiss(ctx context.Context, signature string, performedBy *string) (*models.VerificationAudit, error) {
	entry, err := s.db.GetDiscoveryQueueEntry(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("dismiss: look up queue entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("dismiss: signature %q: %w", signature, catalogerr.ErrNotFound)
	}

	audit, err := s.db.DismissAction(ctx, signature, entry.RawArtist, entry.RawTitle, performedBy)
	metrics.RecordVerificationAction("dismiss", err)
	if err != nil {
		s.auditLog.LogFailure("dismiss", signature, performedBy, err)
		return nil, fmt.Errorf("dismiss: %w", err)
	}
	s.auditLog.LogDismiss(signature, performedBy)
	return audit, nil
}

// Undo reverses a previous Link/Promote/Dismiss action. Calling Undo
// on an already-undone audit is a no-op that returns the original row
// unchanged.
func (s *Service) Undo(ctx context.Context, auditID uuid.UUID, performedBy *string) (*models.VerificationAudit, error) {
	audit, err := s.db.UndoAction(ctx, auditID, performedBy)
	metrics.RecordVerificationAction("undo", err)
	if err != nil {
		s.auditLog.LogFailure("undo", auditID.String(), performedBy, err)
		return nil, fmt.Errorf("undo: %w", err)
	}
	s.auditLog.LogUndo(auditID.String(), string(audit.ActionType), performedBy)
	return audit, nil
}

// ListQueue returns the Discovery Queue ordered for the operator review
// surface, highest play count first.
func (s *Service) ListQueue(ctx context.Context, limit int) ([]models.DiscoveryQueueEntry, error) {
	return s.db.ListDiscoveryQueue(ctx, limit)
}

// ResolveAlias maps a raw artist string to a canonical name before
// matching consults it. verify=true marks the alias operator-confirmed,
// so the Matcher's dedupe step (internal/matcher) treats it as trusted
// rather than provisional.
func (s *Service) ResolveAlias(ctx context.Context, rawName string, resolvedName *string, isNull, verify bool) error {
	if err := s.db.UpsertArtistAlias(ctx, rawName, resolvedName, isNull); err != nil {
		return fmt.Errorf("resolve alias: %w", err)
	}
	if verify {
		if err := s.db.VerifyArtistAlias(ctx, rawName); err != nil {
			return fmt.Errorf("resolve alias: verify: %w", err)
		}
	}
	return nil
}
