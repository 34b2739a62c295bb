// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/models"
)

// linkRequest is the body of POST /queue/link.
type linkRequest struct {
	Signature   string  `json:"signature" validate:"required,signature"`
	WorkID      string  `json:"work_id" validate:"required,uuid"`
	PerformedBy *string `json:"performed_by"`
}

// promoteRequest is the body of POST /queue/promote.
type promoteRequest struct {
	Signature   string  `json:"signature" validate:"required,signature"`
	PerformedBy *string `json:"performed_by"`
}

// dismissRequest is the body of POST /queue/dismiss.
type dismissRequest struct {
	Signature   string  `json:"signature" validate:"required,signature"`
	PerformedBy *string `json:"performed_by"`
}

// undoRequest is the body of POST /queue/undo.
type undoRequest struct {
	AuditID     string  `json:"audit_id" validate:"required,uuid"`
	PerformedBy *string `json:"performed_by"`
}

// createBridgeRequest is the body of POST /bridges.
type createBridgeRequest struct {
	Signature       string  `json:"signature" validate:"required,signature"`
	ReferenceArtist string  `json:"reference_artist" validate:"required"`
	ReferenceTitle  string  `json:"reference_title" validate:"required"`
	WorkID          string  `json:"work_id" validate:"required,uuid"`
	Confidence      float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// thresholdUpdateRequest is the body of PUT /thresholds. It mirrors
// config.ThresholdConfig field-for-field rather than embedding it
// directly so validator tags can require each field independently of
// koanf's zero-value defaulting.
type thresholdUpdateRequest struct {
	ArtistAuto         float64 `json:"artist_auto" validate:"required,gt=0,lte=1"`
	ArtistReview       float64 `json:"artist_review" validate:"required,gt=0,lte=1"`
	TitleAuto          float64 `json:"title_auto" validate:"required,gt=0,lte=1"`
	TitleReview        float64 `json:"title_review" validate:"required,gt=0,lte=1"`
	VectorStrong       float64 `json:"vector_strong" validate:"required,gt=0,lte=1"`
	VectorTitleGuard   float64 `json:"vector_title_guard"`
	TitleVector        float64 `json:"title_vector"`
	TitleVectorDist    float64 `json:"title_vector_dist"`
	WorkFuzzyMaxWorks  int     `json:"work_fuzzy_max_works" validate:"required,gt=0"`
	WorkFuzzyThreshold float64 `json:"work_fuzzy_threshold" validate:"required,gt=0,lte=1"`
}

func (r thresholdUpdateRequest) toConfig() config.ThresholdConfig {
	return config.ThresholdConfig{
		ArtistAuto:          r.ArtistAuto,
		ArtistReview:        r.ArtistReview,
		TitleAuto:           r.TitleAuto,
		TitleReview:         r.TitleReview,
		VectorStrong:        r.VectorStrong,
		VectorTitleGuard:    r.VectorTitleGuard,
		TitleVector:         r.TitleVector,
		TitleVectorDist:     r.TitleVectorDist,
		VectorTitleGuardSet: r.VectorTitleGuard != 0,
		WorkFuzzyMaxWorks:   r.WorkFuzzyMaxWorks,
		WorkFuzzyThreshold:  r.WorkFuzzyThreshold,
	}
}

// resolveRecordingRequest is the body of POST /recordings/resolve,
// exposing RecordingResolver to operator tooling that
// wants to preview what a station/format context would play.
type resolveRecordingRequest struct {
	WorkID     string  `json:"work_id" validate:"required,uuid"`
	StationID  *string `json:"station_id" validate:"omitempty,uuid"`
	FormatCode *string `json:"format_code"`
}

// auditResponse shapes a models.VerificationAudit row for JSON.
type auditResponse struct {
	ID          uuid.UUID  `json:"id"`
	ActionType  string     `json:"action_type"`
	Signature   string     `json:"signature"`
	RawArtist   string     `json:"raw_artist"`
	RawTitle    string     `json:"raw_title"`
	WorkID      *uuid.UUID `json:"work_id,omitempty"`
	LogIDs      []uuid.UUID `json:"log_ids,omitempty"`
	BridgeID    *uuid.UUID `json:"bridge_id,omitempty"`
	IsUndone    bool       `json:"is_undone"`
	UndoneAt    *time.Time `json:"undone_at,omitempty"`
	PerformedBy *string    `json:"performed_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAuditResponse(a *models.VerificationAudit) auditResponse {
	return auditResponse{
		ID:          a.ID,
		ActionType:  string(a.ActionType),
		Signature:   a.Signature,
		RawArtist:   a.RawArtist,
		RawTitle:    a.RawTitle,
		WorkID:      a.WorkID,
		LogIDs:      a.LogIDs,
		BridgeID:    a.BridgeID,
		IsUndone:    a.IsUndone,
		UndoneAt:    a.UndoneAt,
		PerformedBy: a.PerformedBy,
		CreatedAt:   a.CreatedAt,
	}
}

// errorResponse is the JSON envelope every non-2xx response uses.
type errorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
