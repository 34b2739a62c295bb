// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
	"github.com/airwave/radio-identity/internal/vectorindex"
)

// fakeStore is an in-memory stand-in for *database.DB, scoped to the
// methods the Scanner calls through its store interface.
type fakeStore struct {
	files       map[uuid.UUID]models.LibraryFile
	content     map[uuid.UUID]string
	artists     map[string]*models.Artist
	works       map[string]*models.Work
	recordings  map[uuid.UUID]*models.Recording
	splits      []models.ProposedSplit
	touched     []uuid.UUID
	statUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:      make(map[uuid.UUID]models.LibraryFile),
		content:    make(map[uuid.UUID]string),
		artists:    make(map[string]*models.Artist),
		works:      make(map[string]*models.Work),
		recordings: make(map[uuid.UUID]*models.Recording),
	}
}

func (f *fakeStore) ListLibraryFiles(ctx context.Context) ([]models.LibraryFile, error) {
	out := make([]models.LibraryFile, 0, len(f.files))
	for _, lf := range f.files {
		out = append(out, lf)
	}
	return out, nil
}

func (f *fakeStore) ListLibraryFileContentIndex(ctx context.Context) ([]database.ContentIndexEntry, error) {
	out := make([]database.ContentIndexEntry, 0, len(f.files))
	for id, lf := range f.files {
		pid, ok := f.content[id]
		if !ok {
			continue
		}
		out = append(out, database.ContentIndexEntry{ID: id, RecordingID: lf.RecordingID, Path: lf.Path, Size: lf.Size, ModTime: lf.ModTime, ContentPID: pid})
	}
	return out, nil
}

func (f *fakeStore) TouchLibraryFiles(ctx context.Context, ids []uuid.UUID) error {
	f.touched = append(f.touched, ids...)
	return nil
}

func (f *fakeStore) UpdateLibraryFileStat(ctx context.Context, id uuid.UUID, size int64, mtime time.Time) error {
	f.statUpdates++
	lf := f.files[id]
	lf.Size = size
	lf.ModTime = mtime
	f.files[id] = lf
	return nil
}

func (f *fakeStore) ReattachLibraryFile(ctx context.Context, id, recordingID uuid.UUID, size int64, mtime time.Time, format string) error {
	lf := f.files[id]
	lf.RecordingID = recordingID
	lf.Size = size
	lf.ModTime = mtime
	lf.Format = format
	f.files[id] = lf
	return nil
}

func (f *fakeStore) RetargetLibraryFile(ctx context.Context, id uuid.UUID, newPath string, size int64, mtime time.Time) error {
	lf := f.files[id]
	lf.Path = newPath
	lf.Size = size
	lf.ModTime = mtime
	f.files[id] = lf
	return nil
}

func (f *fakeStore) UpsertArtist(ctx context.Context, cleanName string) (*models.Artist, error) {
	if a, ok := f.artists[cleanName]; ok {
		return a, nil
	}
	a := &models.Artist{ID: uuid.New(), Name: cleanName}
	f.artists[cleanName] = a
	return a, nil
}

func (f *fakeStore) UpsertWork(ctx context.Context, cleanTitle string, primaryArtistID *uuid.UUID, respectParts bool, threshold float64, maxWorks int) (*models.Work, error) {
	key := cleanTitle
	if primaryArtistID != nil {
		key = primaryArtistID.String() + "|" + cleanTitle
	}
	if w, ok := f.works[key]; ok {
		return w, nil
	}
	w := &models.Work{ID: uuid.New(), Title: cleanTitle, PrimaryArtistID: primaryArtistID}
	f.works[key] = w
	return w, nil
}

func (f *fakeStore) LinkWorkArtists(ctx context.Context, workID uuid.UUID, artistIDs []uuid.UUID, primaryID *uuid.UUID) error {
	return nil
}

func (f *fakeStore) UpsertRecording(ctx context.Context, workID uuid.UUID, title, versionType string, duration *time.Duration, isrc *string) (*models.Recording, error) {
	for _, r := range f.recordings {
		if r.WorkID == workID && r.Title == title && r.VersionType == versionType {
			return r, nil
		}
	}
	r := &models.Recording{ID: uuid.New(), WorkID: workID, Title: title, VersionType: versionType}
	f.recordings[r.ID] = r
	return r, nil
}

func (f *fakeStore) AttachLibraryFile(ctx context.Context, recordingID uuid.UUID, path string, size int64, mtime time.Time, format string, hash *string, bitrate *int) (*models.LibraryFile, error) {
	lf := models.LibraryFile{ID: uuid.New(), RecordingID: recordingID, Path: path, Size: size, ModTime: mtime, Format: format}
	f.files[lf.ID] = lf
	return &lf, nil
}

func (f *fakeStore) UpsertProposedSplit(ctx context.Context, rawArtist string, proposedArtists []string, confidence float64) (*models.ProposedSplit, error) {
	ps := models.ProposedSplit{ID: uuid.New(), RawArtist: rawArtist, ProposedArtists: proposedArtists, Confidence: confidence}
	f.splits = append(f.splits, ps)
	return &ps, nil
}

type fakeVector struct {
	tracks []vectorindex.Track
}

func (v *fakeVector) Add(ctx context.Context, tracks []vectorindex.Track) error {
	v.tracks = append(v.tracks, tracks...)
	return nil
}

func testScannerConfig(root string) config.ScannerConfig {
	return config.ScannerConfig{
		RootPath:           root,
		MaxConcurrentFiles: 4,
		CommitInterval:     1,
		TouchBatchSize:     10,
		VectorBatchSize:    10,
		CancelPollFiles:    10,
	}
}

func TestScanCreatesNewFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Nirvana - Come As You Are.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	db := newFakeStore()
	vec := &fakeVector{}
	s := New(db, vec, testScannerConfig(root), nil)

	res, err := s.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("Created = %d, want 1", res.Created)
	}
	if len(db.files) != 1 {
		t.Fatalf("expected one library file, got %d", len(db.files))
	}
	if len(vec.tracks) != 1 {
		t.Fatalf("expected one vector track enqueued, got %d", len(vec.tracks))
	}
}

// TestScanStatFirstSkip verifies that an unchanged (path, size, mtime)
// triggers no metadata re-extraction and no new Recording/Work rows.
func TestScanStatFirstSkip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Nirvana - Come As You Are.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	db := newFakeStore()
	vec := &fakeVector{}
	s := New(db, vec, testScannerConfig(root), nil)

	if _, err := s.Scan(context.Background(), nil); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	worksAfterFirst := len(db.works)
	recordingsAfterFirst := len(db.recordings)

	// Second scan of the exact same, untouched file: must be a pure
	// touch with no catalog writes.
	res, err := s.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.Touched != 1 || res.Created != 0 {
		t.Fatalf("second scan result = %+v, want Touched=1 Created=0", res)
	}
	if len(db.works) != worksAfterFirst || len(db.recordings) != recordingsAfterFirst {
		t.Fatalf("stat-first skip must not create Work/Recording rows: works %d->%d recordings %d->%d",
			worksAfterFirst, len(db.works), recordingsAfterFirst, len(db.recordings))
	}
	if len(db.touched) != 1 {
		t.Fatalf("expected one touched id, got %d", len(db.touched))
	}
}

// TestScanMoveDetection: a file renamed
// between scans (same size, same content-derived artist/title) must be
// retargeted in place, not recreated.
func TestScanMoveDetection(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "a", "Beatles - Hey Jude.mp3")
	if err := os.MkdirAll(filepath.Dir(oldPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(oldPath, []byte("abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}

	db := newFakeStore()
	vec := &fakeVector{}
	s := New(db, vec, testScannerConfig(root), nil)
	if _, err := s.Scan(context.Background(), nil); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	var origID uuid.UUID
	for id := range db.files {
		origID = id
	}
	pid := normalizer.GenerateSignature("Beatles", "Hey Jude")
	db.content[origID] = pid

	newDir := filepath.Join(root, "b")
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		t.Fatal(err)
	}
	newPath := filepath.Join(newDir, "Beatles - Hey Jude.mp3")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	// Same content bytes, so same size; give it a distinct mtime too.
	if err := os.Chtimes(newPath, time.Now(), time.Now().Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	res, err := s.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.Moved != 1 || res.Created != 0 {
		t.Fatalf("second scan result = %+v, want Moved=1 Created=0", res)
	}
	if len(db.files) != 1 {
		t.Fatalf("expected exactly one library file row after move, got %d", len(db.files))
	}
	for _, lf := range db.files {
		if lf.Path != normalizePath(newPath) {
			t.Fatalf("library file path = %q, want %q", lf.Path, normalizePath(newPath))
		}
	}
}

func TestFlagAmbiguousCollaboration(t *testing.T) {
	root := t.TempDir()
	db := newFakeStore()
	vec := &fakeVector{}
	s := New(db, vec, testScannerConfig(root), nil)

	meta := LibraryMetadata{RawArtist: "Artist A/Artist B", RawTitle: "Song"}
	s.flagAmbiguousCollaboration(context.Background(), meta)
	if len(db.splits) != 1 {
		t.Fatalf("expected one proposed split, got %d", len(db.splits))
	}
	if len(db.splits[0].ProposedArtists) != 2 {
		t.Fatalf("expected two proposed artists, got %v", db.splits[0].ProposedArtists)
	}
}

func TestFlagAmbiguousCollaborationSkipsExceptions(t *testing.T) {
	root := t.TempDir()
	db := newFakeStore()
	vec := &fakeVector{}
	exc := &ExceptionList{entries: map[string]struct{}{"ac/dc": {}}}
	s := New(db, vec, testScannerConfig(root), exc)

	s.flagAmbiguousCollaboration(context.Background(), LibraryMetadata{RawArtist: "AC/DC", RawTitle: "Thunderstruck"})
	if len(db.splits) != 0 {
		t.Fatalf("expected AC/DC to be exempt from splitting, got %d splits", len(db.splits))
	}
}

func TestFlagAmbiguousCollaborationSkipsWithAlbumArtist(t *testing.T) {
	root := t.TempDir()
	db := newFakeStore()
	vec := &fakeVector{}
	s := New(db, vec, testScannerConfig(root), nil)

	s.flagAmbiguousCollaboration(context.Background(), LibraryMetadata{RawArtist: "A/B", RawTitle: "Song", AlbumArtist: "A"})
	if len(db.splits) != 0 {
		t.Fatalf("expected no split when album_artist disambiguates, got %d", len(db.splits))
	}
}
