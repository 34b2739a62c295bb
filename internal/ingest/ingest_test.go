// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/matcher"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

type fakeStore struct {
	stations map[string]*models.Station
	logs     []*models.BroadcastLog
	queue    map[string]*models.DiscoveryQueueEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stations: make(map[string]*models.Station),
		queue:    make(map[string]*models.DiscoveryQueueEntry),
	}
}

func (f *fakeStore) UpsertStation(ctx context.Context, callsign string, formatCode *string) (*models.Station, error) {
	if s, ok := f.stations[callsign]; ok {
		return s, nil
	}
	s := &models.Station{ID: uuid.New(), Callsign: callsign, FormatCode: formatCode}
	f.stations[callsign] = s
	return s, nil
}

func (f *fakeStore) InsertBroadcastLog(ctx context.Context, log *models.BroadcastLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeStore) BumpDiscoveryQueue(ctx context.Context, signature, rawArtist, rawTitle string, suggestedWorkID *uuid.UUID, delta int64) (*models.DiscoveryQueueEntry, error) {
	e, ok := f.queue[signature]
	if !ok {
		e = &models.DiscoveryQueueEntry{Signature: signature, RawArtist: rawArtist, RawTitle: rawTitle}
		f.queue[signature] = e
	}
	e.Count += delta
	if e.SuggestedWorkID == nil {
		e.SuggestedWorkID = suggestedWorkID
	}
	return e, nil
}

type fakeResolver struct {
	verdicts map[matcher.InputPair]matcher.Result
}

func (f *fakeResolver) Resolve(ctx context.Context, pairs []matcher.InputPair) (map[matcher.InputPair]matcher.Result, error) {
	out := make(map[matcher.InputPair]matcher.Result, len(pairs))
	for _, p := range pairs {
		out[p] = f.verdicts[p]
	}
	return out, nil
}

func TestRunDropsEmptyArtistOrTitle(t *testing.T) {
	csvData := `Station,Date,Time,Artist,Title
WXYZ,2026-01-02,03:04:05,Nirvana,Come As You Are
WXYZ,2026-01-02,03:05:00,,Missing Artist
WXYZ,2026-01-02,03:06:00,Missing Title,
`
	db := newFakeStore()
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{}}
	ing := New(db, mat)

	res, err := ing.Run(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RowsRead != 3 || res.RowsDropped != 2 || res.RowsIngested != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(db.logs) != 1 {
		t.Fatalf("expected one inserted log, got %d", len(db.logs))
	}
}

func TestRunAppliesMatcherVerdict(t *testing.T) {
	csvData := `Station,Played,Artist,Title
WXYZ,2026-01-02T03:04:05,Nirvana,Come As You Are
`
	workID := uuid.New()
	pair := matcher.InputPair{RawArtist: "Nirvana", RawTitle: "Come As You Are"}
	db := newFakeStore()
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{
		pair: {WorkID: &workID, Reason: "Exact DB Match"},
	}}
	ing := New(db, mat)

	res, err := ing.Run(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RowsIngested != 1 {
		t.Fatalf("RowsIngested = %d, want 1", res.RowsIngested)
	}
	if db.logs[0].WorkID == nil || *db.logs[0].WorkID != workID {
		t.Fatalf("inserted log work_id = %v, want %s", db.logs[0].WorkID, workID)
	}
	if db.logs[0].MatchReason == nil || *db.logs[0].MatchReason != "Exact DB Match" {
		t.Fatalf("inserted log match_reason = %v", db.logs[0].MatchReason)
	}
}

func TestRunDropsUnparseableDate(t *testing.T) {
	csvData := `Station,Date,Time,Artist,Title
WXYZ,not-a-date,nope,Nirvana,Come As You Are
`
	db := newFakeStore()
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{}}
	ing := New(db, mat)

	res, err := ing.Run(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RowsDropped != 1 || res.RowsIngested != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunQueuesUnresolvedSignatures(t *testing.T) {
	csvData := `Station,Played,Artist,Title
WXYZ,2026-01-02T03:04:05,Obscure Artist,Unknown Song
WXYZ,2026-01-02T04:10:00,Obscure Artist,Unknown Song
WXYZ,2026-01-02T05:00:00,Maybe Band,Almost Familiar
WXYZ,2026-01-02T06:00:00,Nirvana,Come As You Are
`
	matchedWork := uuid.New()
	suggestedWork := uuid.New()
	db := newFakeStore()
	mat := &fakeResolver{verdicts: map[matcher.InputPair]matcher.Result{
		{RawArtist: "Obscure Artist", RawTitle: "Unknown Song"}: {
			Reason: "No Match Found", Classification: matcher.ClassificationReject,
		},
		{RawArtist: "Maybe Band", RawTitle: "Almost Familiar"}: {
			WorkID: &suggestedWork, Reason: "Review", Classification: matcher.ClassificationReview,
		},
		{RawArtist: "Nirvana", RawTitle: "Come As You Are"}: {
			WorkID: &matchedWork, Reason: "Exact DB Match", Classification: matcher.ClassificationAuto,
		},
	}}
	ing := New(db, mat)

	res, err := ing.Run(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SignaturesQueued != 2 {
		t.Fatalf("SignaturesQueued = %d, want 2", res.SignaturesQueued)
	}

	rejectSig := normalizer.GenerateSignature("Obscure Artist", "Unknown Song")
	rejected, ok := db.queue[rejectSig]
	if !ok {
		t.Fatalf("rejected pair not queued under %s", rejectSig)
	}
	if rejected.Count != 2 {
		t.Fatalf("rejected count = %d, want 2 (both plays aggregate into one bump)", rejected.Count)
	}
	if rejected.SuggestedWorkID != nil {
		t.Fatalf("rejected pair should carry no suggestion, got %v", rejected.SuggestedWorkID)
	}

	reviewSig := normalizer.GenerateSignature("Maybe Band", "Almost Familiar")
	review, ok := db.queue[reviewSig]
	if !ok {
		t.Fatalf("review pair not queued under %s", reviewSig)
	}
	if review.Count != 1 {
		t.Fatalf("review count = %d, want 1", review.Count)
	}
	if review.SuggestedWorkID == nil || *review.SuggestedWorkID != suggestedWork {
		t.Fatalf("review suggestion = %v, want %s", review.SuggestedWorkID, suggestedWork)
	}

	if autoSig := normalizer.GenerateSignature("Nirvana", "Come As You Are"); db.queue[autoSig] != nil {
		t.Fatalf("auto-matched pair must not be queued")
	}
}
