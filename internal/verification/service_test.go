// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// fakeStore is an in-memory stand-in for *database.DB scoped to the
// verification Service's store interface. It mimics the
// bridge/log/queue/audit bookkeeping verification_actions.go performs,
// so tests can assert on observable state without a DuckDB connection.
type fakeStore struct {
	queue   map[string]*models.DiscoveryQueueEntry
	bridges map[string]*models.IdentityBridge
	audits  map[uuid.UUID]*models.VerificationAudit
	logs    map[uuid.UUID]*models.BroadcastLog // keyed by log id, for assertions

	artists map[string]*models.Artist
	works   map[string]*models.Work
	aliases map[string]*models.ArtistAlias
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queue:   make(map[string]*models.DiscoveryQueueEntry),
		bridges: make(map[string]*models.IdentityBridge),
		audits:  make(map[uuid.UUID]*models.VerificationAudit),
		logs:    make(map[uuid.UUID]*models.BroadcastLog),
		artists: make(map[string]*models.Artist),
		works:   make(map[string]*models.Work),
		aliases: make(map[string]*models.ArtistAlias),
	}
}

func (f *fakeStore) GetDiscoveryQueueEntry(ctx context.Context, signature string) (*models.DiscoveryQueueEntry, error) {
	return f.queue[signature], nil
}

func (f *fakeStore) LinkAction(ctx context.Context, req database.LinkRequest) (*models.VerificationAudit, error) {
	if b, ok := f.bridges[req.Signature]; ok && !b.IsRevoked && b.WorkID != req.WorkID {
		return nil, catalogerr.ErrBridgeConflict
	}
	f.bridges[req.Signature] = &models.IdentityBridge{
		ID: uuid.New(), LogSignature: req.Signature, ReferenceArtist: req.RawArtist,
		ReferenceTitle: req.RawTitle, WorkID: req.WorkID, Confidence: req.Confidence,
	}
	delete(f.queue, req.Signature)
	audit := &models.VerificationAudit{
		ID: uuid.New(), ActionType: models.ActionLink, Signature: req.Signature,
		RawArtist: req.RawArtist, RawTitle: req.RawTitle, WorkID: &req.WorkID,
		BridgeID: &f.bridges[req.Signature].ID, PerformedBy: req.PerformedBy, CreatedAt: time.Now(),
	}
	f.audits[audit.ID] = audit
	return audit, nil
}

func (f *fakeStore) PromoteAction(ctx context.Context, req database.PromoteRequest) (*models.VerificationAudit, error) {
	return f.LinkAction(ctx, req.LinkRequest)
}

func (f *fakeStore) DismissAction(ctx context.Context, signature, rawArtist, rawTitle string, performedBy *string) (*models.VerificationAudit, error) {
	delete(f.queue, signature)
	audit := &models.VerificationAudit{ID: uuid.New(), ActionType: models.ActionDismiss, Signature: signature, RawArtist: rawArtist, RawTitle: rawTitle, PerformedBy: performedBy, CreatedAt: time.Now()}
	f.audits[audit.ID] = audit
	return audit, nil
}

func (f *fakeStore) UndoAction(ctx context.Context, auditID uuid.UUID, performedBy *string) (*models.VerificationAudit, error) {
	orig, ok := f.audits[auditID]
	if !ok {
		return nil, catalogerr.ErrNotFound
	}
	if orig.IsUndone {
		return orig, nil
	}
	if orig.BridgeID != nil {
		for _, b := range f.bridges {
			if b.ID == *orig.BridgeID {
				b.IsRevoked = true
			}
		}
	}
	f.queue[orig.Signature] = &models.DiscoveryQueueEntry{Signature: orig.Signature, RawArtist: orig.RawArtist, RawTitle: orig.RawTitle, Count: 1}
	now := time.Now()
	orig.IsUndone = true
	orig.UndoneAt = &now
	undo := &models.VerificationAudit{ID: uuid.New(), ActionType: models.ActionUndo, Signature: orig.Signature, RawArtist: orig.RawArtist, RawTitle: orig.RawTitle, PerformedBy: performedBy, CreatedAt: now}
	f.audits[undo.ID] = undo
	return orig, nil
}

func (f *fakeStore) FindAuditByID(ctx context.Context, id uuid.UUID) (*models.VerificationAudit, error) {
	return f.audits[id], nil
}

func (f *fakeStore) ListDiscoveryQueue(ctx context.Context, limit int) ([]models.DiscoveryQueueEntry, error) {
	out := make([]models.DiscoveryQueueEntry, 0, len(f.queue))
	for _, e := range f.queue {
		out = append(out, *e)
	}
	return out, nil
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
	return &models.Recording{ID: uuid.New(), WorkID: workID, Title: title, VersionType: versionType}, nil
}

func (f *fakeStore) ResolveAlias(ctx context.Context, rawName string) (*models.ArtistAlias, error) {
	return f.aliases[rawName], nil
}

func (f *fakeStore) UpsertArtistAlias(ctx context.Context, rawName string, resolvedName *string, isNull bool) error {
	f.aliases[rawName] = &models.ArtistAlias{RawName: rawName, ResolvedName: resolvedName, IsNull: isNull}
	return nil
}

func (f *fakeStore) VerifyArtistAlias(ctx context.Context, rawName string) error {
	if a, ok := f.aliases[rawName]; ok {
		a.IsVerified = true
	}
	return nil
}

func testThresholds() config.ThresholdConfig {
	return config.ThresholdConfig{WorkFuzzyMaxWorks: 500, WorkFuzzyThreshold: 0.85}
}

func TestLinkRejectsSignatureMismatch(t *testing.T) {
	db := newFakeStore()
	db.queue["sig-1"] = &models.DiscoveryQueueEntry{Signature: "sig-1", RawArtist: "Guns N Roses", RawTitle: "Sweet Child O Mine", Count: 2}

	svc := New(db, testThresholds())
	_, err := svc.Link(context.Background(), "sig-1", uuid.New(), nil)
	if !errors.Is(err, catalogerr.ErrSignatureMismatch) {
		t.Fatalf("expected SignatureMismatch, got %v", err)
	}
}

func TestLinkHappyPath(t *testing.T) {
	db := newFakeStore()
	raw := struct{ Artist, Title string }{"Guns N Roses", "Sweet Child O Mine"}
	sig := computeSignature(raw.Artist, raw.Title)
	db.queue[sig] = &models.DiscoveryQueueEntry{Signature: sig, RawArtist: raw.Artist, RawTitle: raw.Title, Count: 3}

	workID := uuid.New()
	svc := New(db, testThresholds())
	audit, err := svc.Link(context.Background(), sig, workID, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if audit.ActionType != models.ActionLink {
		t.Fatalf("action type = %v, want link", audit.ActionType)
	}
	if _, stillQueued := db.queue[sig]; stillQueued {
		t.Fatalf("queue entry should be deleted after link")
	}
	if b, ok := db.bridges[sig]; !ok || b.WorkID != workID {
		t.Fatalf("expected active bridge to %s, got %+v", workID, b)
	}
}

func TestLinkConflictingBridge(t *testing.T) {
	db := newFakeStore()
	raw := struct{ Artist, Title string }{"Guns N Roses", "Sweet Child O Mine"}
	sig := computeSignature(raw.Artist, raw.Title)
	db.queue[sig] = &models.DiscoveryQueueEntry{Signature: sig, RawArtist: raw.Artist, RawTitle: raw.Title, Count: 1}
	w1 := uuid.New()
	db.bridges[sig] = &models.IdentityBridge{ID: uuid.New(), LogSignature: sig, WorkID: w1}

	svc := New(db, testThresholds())
	_, err := svc.Link(context.Background(), sig, uuid.New(), nil)
	if !errors.Is(err, catalogerr.ErrBridgeConflict) {
		t.Fatalf("expected BridgeConflict, got %v", err)
	}
}

// TestUndoIsIdempotent: undo(A) then undo(A) again must leave state
// identical to the state after the first undo.
func TestUndoIsIdempotent(t *testing.T) {
	db := newFakeStore()
	raw := struct{ Artist, Title string }{"Guns N Roses", "Sweet Child O Mine"}
	sig := computeSignature(raw.Artist, raw.Title)
	db.queue[sig] = &models.DiscoveryQueueEntry{Signature: sig, RawArtist: raw.Artist, RawTitle: raw.Title, Count: 3}

	svc := New(db, testThresholds())
	link, err := svc.Link(context.Background(), sig, uuid.New(), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	first, err := svc.Undo(context.Background(), link.ID, nil)
	if err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if !first.IsUndone {
		t.Fatalf("expected audit marked undone after first undo")
	}
	queueAfterFirst := len(db.queue)

	second, err := svc.Undo(context.Background(), link.ID, nil)
	if err != nil {
		t.Fatalf("second undo: %v", err)
	}
	if !second.IsUndone || len(db.queue) != queueAfterFirst {
		t.Fatalf("second undo changed state: queue before=%d after=%d", queueAfterFirst, len(db.queue))
	}
}

func TestDismissDoesNotCreateBridge(t *testing.T) {
	db := newFakeStore()
	sig := computeSignature("Artist", "Title")
	db.queue[sig] = &models.DiscoveryQueueEntry{Signature: sig, RawArtist: "Artist", RawTitle: "Title", Count: 1}

	svc := New(db, testThresholds())
	audit, err := svc.Dismiss(context.Background(), sig, nil)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if audit.ActionType != models.ActionDismiss {
		t.Fatalf("action type = %v, want dismiss", audit.ActionType)
	}
	if _, ok := db.bridges[sig]; ok {
		t.Fatalf("dismiss must never create a bridge")
	}
	if _, stillQueued := db.queue[sig]; stillQueued {
		t.Fatalf("queue entry should be removed after dismiss")
	}
}

func computeSignature(artist, title string) string {
	return normalizer.GenerateSignature(artist, title)
}
