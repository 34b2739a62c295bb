// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/models"
)

type fakeStore struct {
	stationPrefs map[uuid.UUID][]models.StationPreference
	formatPrefs  map[string][]models.FormatPreference
	defaults     map[uuid.UUID]*models.WorkDefaultRecording
	stations     map[uuid.UUID]*models.Station
	recordings   map[uuid.UUID]*models.Recording
	hasFile      map[uuid.UUID]bool
	byWork       map[uuid.UUID][]models.Recording
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stationPrefs: make(map[uuid.UUID][]models.StationPreference),
		formatPrefs:  make(map[string][]models.FormatPreference),
		defaults:     make(map[uuid.UUID]*models.WorkDefaultRecording),
		stations:     make(map[uuid.UUID]*models.Station),
		recordings:   make(map[uuid.UUID]*models.Recording),
		hasFile:      make(map[uuid.UUID]bool),
		byWork:       make(map[uuid.UUID][]models.Recording),
	}
}

func (f *fakeStore) ListStationPreferences(ctx context.Context, stationID, workID uuid.UUID) ([]models.StationPreference, error) {
	return f.stationPrefs[stationID], nil
}

func (f *fakeStore) ListFormatPreferences(ctx context.Context, formatCode string, workID uuid.UUID) ([]models.FormatPreference, error) {
	return f.formatPrefs[formatCode], nil
}

func (f *fakeStore) FindWorkDefaultRecording(ctx context.Context, workID uuid.UUID) (*models.WorkDefaultRecording, error) {
	return f.defaults[workID], nil
}

func (f *fakeStore) FindStationByID(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	return f.stations[id], nil
}

func (f *fakeStore) FindRecordingByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return f.recordings[id], nil
}

func (f *fakeStore) HasLibraryFile(ctx context.Context, recordingID uuid.UUID) (bool, error) {
	return f.hasFile[recordingID], nil
}

func (f *fakeStore) RecordingsForWork(ctx context.Context, workID uuid.UUID) ([]models.Recording, error) {
	return f.byWork[workID], nil
}

func TestResolveStationPreferenceWins(t *testing.T) {
	db := newFakeStore()
	workID, stationID := uuid.New(), uuid.New()
	rec := &models.Recording{ID: uuid.New(), WorkID: workID}
	db.recordings[rec.ID] = rec
	db.hasFile[rec.ID] = true
	db.stationPrefs[stationID] = []models.StationPreference{{StationID: stationID, WorkID: workID, PreferredRecordingID: rec.ID, Priority: 0}}

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID, StationID: &stationID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got recording %s, want %s", got.ID, rec.ID)
	}
}

// TestResolveSkipsUnavailableStationPreference: a station preference
// whose recording has no file must fall through to the next rung,
// never be returned itself.
func TestResolveSkipsUnavailableStationPreference(t *testing.T) {
	db := newFakeStore()
	workID, stationID := uuid.New(), uuid.New()
	unavailable := uuid.New()
	fallback := &models.Recording{ID: uuid.New(), WorkID: workID}
	db.recordings[fallback.ID] = fallback
	db.hasFile[fallback.ID] = true
	db.stationPrefs[stationID] = []models.StationPreference{
		{StationID: stationID, WorkID: workID, PreferredRecordingID: unavailable, Priority: 0},
	}
	db.defaults[workID] = &models.WorkDefaultRecording{WorkID: workID, DefaultRecordingID: fallback.ID}

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID, StationID: &stationID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != fallback.ID {
		t.Fatalf("got %s, want fallback %s", got.ID, fallback.ID)
	}
}

func TestResolveFormatPreferenceFromStation(t *testing.T) {
	db := newFakeStore()
	workID, stationID := uuid.New(), uuid.New()
	format := "classic_rock"
	db.stations[stationID] = &models.Station{ID: stationID, FormatCode: &format}
	rec := &models.Recording{ID: uuid.New(), WorkID: workID}
	db.recordings[rec.ID] = rec
	db.hasFile[rec.ID] = true
	db.formatPrefs[format] = []models.FormatPreference{{FormatCode: format, WorkID: workID, PreferredRecordingID: rec.ID}}

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID, StationID: &stationID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got %s, want %s", got.ID, rec.ID)
	}
}

func TestResolveWorkDefault(t *testing.T) {
	db := newFakeStore()
	workID := uuid.New()
	rec := &models.Recording{ID: uuid.New(), WorkID: workID}
	db.recordings[rec.ID] = rec
	db.hasFile[rec.ID] = true
	db.defaults[workID] = &models.WorkDefaultRecording{WorkID: workID, DefaultRecordingID: rec.ID}

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got %s, want %s", got.ID, rec.ID)
	}
}

func TestResolveAnyAvailablePrefersVerified(t *testing.T) {
	db := newFakeStore()
	workID := uuid.New()
	unverified := models.Recording{ID: uuid.New(), WorkID: workID, IsVerified: false}
	verified := models.Recording{ID: uuid.New(), WorkID: workID, IsVerified: true}
	db.hasFile[unverified.ID] = true
	db.hasFile[verified.ID] = true
	// RecordingsForWork is documented to order is_verified DESC already.
	db.byWork[workID] = []models.Recording{verified, unverified}

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != verified.ID {
		t.Fatalf("got %s, want verified %s", got.ID, verified.ID)
	}
}

func TestResolveFallsBackToFirstRecordingWithNoFile(t *testing.T) {
	db := newFakeStore()
	workID := uuid.New()
	onlyRec := models.Recording{ID: uuid.New(), WorkID: workID}
	db.byWork[workID] = []models.Recording{onlyRec}
	db.hasFile[onlyRec.ID] = false

	r := New(db)
	got, err := r.Resolve(context.Background(), Request{WorkID: workID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != onlyRec.ID {
		t.Fatalf("got %s, want %s", got.ID, onlyRec.ID)
	}
}

func TestResolveNoRecordingsReturnsNotFound(t *testing.T) {
	db := newFakeStore()
	r := New(db)
	_, err := r.Resolve(context.Background(), Request{WorkID: uuid.New()})
	if !errors.Is(err, catalogerr.ErrNotFound) {
		t.Fatalf("expected NotFound-classified error, got %v", err)
	}
}
