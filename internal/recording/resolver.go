// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package recording implements RecordingResolver: given a
Work and an optional Station/format context, pick the one Recording a
player should use.

The ladder is a fixed precedence order, each rung consulted only if the
previous produced no recording with an available file. "Available"
means at least one LibraryFile row exists for the recording; the
resolver tolerates staleness against the filesystem, which
internal/scanner reconciles separately.
*/
package recording

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/models"
)

// store is the subset of *database.DB the resolver needs.
type store interface {
	ListStationPreferences(ctx context.Context, stationID, workID uuid.UUID) ([]models.StationPreference, error)
	ListFormatPreferences(ctx context.Context, formatCode string, workID uuid.UUID) ([]models.FormatPreference, error)
	FindWorkDefaultRecording(ctx context.Context, workID uuid.UUID) (*models.WorkDefaultRecording, error)
	FindStationByID(ctx context.Context, id uuid.UUID) (*models.Station, error)
	FindRecordingByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	HasLibraryFile(ctx context.Context, recordingID uuid.UUID) (bool, error)
	RecordingsForWork(ctx context.Context, workID uuid.UUID) ([]models.Recording, error)
}

// Resolver walks the recording-selection priority ladder over a store
// (a *database.DB in production).
type Resolver struct {
	db store
}

// New constructs a Resolver.
func New(db store) *Resolver {
	return &Resolver{db: db}
}

// Request names the context a playout chooses a Recording in. StationID
// and FormatCode are both optional; supplying neither skips straight to
// the Work-level rungs of the ladder.
type Request struct {
	WorkID     uuid.UUID
	StationID  *uuid.UUID
	FormatCode *string
}

// Resolve walks the priority ladder and returns the first Recording
// with an available file, or the Work's first Recording (which may have
// no file) if nothing on the ladder qualifies.
// Returns catalogerr.ErrNotFound if the Work has no Recording at all.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*models.Recording, error) {
	if req.StationID != nil {
		rec, err := r.fromStationPreference(ctx, *req.StationID, req.WorkID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	effectiveFormat, err := r.effectiveFormatCode(ctx, req)
	if err != nil {
		return nil, err
	}
	if effectiveFormat != nil {
		rec, err := r.fromFormatPreference(ctx, *effectiveFormat, req.WorkID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	rec, err := r.fromWorkDefault(ctx, req.WorkID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	return r.fromAnyRecording(ctx, req.WorkID)
}

func (r *Resolver) effectiveFormatCode(ctx context.Context, req Request) (*string, error) {
	if req.FormatCode != nil {
		return req.FormatCode, nil
	}
	if req.StationID == nil {
		return nil, nil
	}
	station, err := r.db.FindStationByID(ctx, *req.StationID)
	if err != nil {
		return nil, fmt.Errorf("resolve recording: look up station: %w", err)
	}
	if station == nil {
		return nil, nil
	}
	return station.FormatCode, nil
}

func (r *Resolver) fromStationPreference(ctx context.Context, stationID, workID uuid.UUID) (*models.Recording, error) {
	prefs, err := r.db.ListStationPreferences(ctx, stationID, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve recording: list station preferences: %w", err)
	}
	for _, p := range prefs {
		if rec, err := r.availableOrNil(ctx, p.PreferredRecordingID); err != nil {
			return nil, err
		} else if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *Resolver) fromFormatPreference(ctx context.Context, formatCode string, workID uuid.UUID) (*models.Recording, error) {
	prefs, err := r.db.ListFormatPreferences(ctx, formatCode, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve recording: list format preferences: %w", err)
	}
	for _, p := range prefs {
		if rec, err := r.availableOrNil(ctx, p.PreferredRecordingID); err != nil {
			return nil, err
		} else if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *Resolver) fromWorkDefault(ctx context.Context, workID uuid.UUID) (*models.Recording, error) {
	def, err := r.db.FindWorkDefaultRecording(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve recording: find work default: %w", err)
	}
	if def == nil {
		return nil, nil
	}
	return r.availableOrNil(ctx, def.DefaultRecordingID)
}

// fromAnyRecording is the ladder's last two rungs combined: any
// Recording of the Work with a file (verified preferred, since
// RecordingsForWork already orders is_verified DESC), falling back to
// the Work's first Recording outright if none has a file.
func (r *Resolver) fromAnyRecording(ctx context.Context, workID uuid.UUID) (*models.Recording, error) {
	recs, err := r.db.RecordingsForWork(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve recording: list recordings for work: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("resolve recording: work %s has no recordings: %w", workID, catalogerr.ErrNotFound)
	}

	for i := range recs {
		has, err := r.db.HasLibraryFile(ctx, recs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("resolve recording: check library file: %w", err)
		}
		if has {
			return &recs[i], nil
		}
	}
	return &recs[0], nil
}

// availableOrNil returns the full Recording if it has at least one
// LibraryFile, nil otherwise.
func (r *Resolver) availableOrNil(ctx context.Context, recordingID uuid.UUID) (*models.Recording, error) {
	has, err := r.db.HasLibraryFile(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("check library file: %w", err)
	}
	if !has {
		return nil, nil
	}
	return r.db.FindRecordingByID(ctx, recordingID)
}
