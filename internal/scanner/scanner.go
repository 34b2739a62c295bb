// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package scanner walks a root directory, upserts the
Artist/Work/Recording hierarchy for every audio file found, and
reconciles LibraryFile rows against the filesystem.

Concurrency is a bounded worker pool: a semaphore-gated fan-out over
discovered paths with shared counters behind a single mutex, expressed
with golang.org/x/sync's semaphore and errgroup rather than a hand
rolled channel-and-WaitGroup pair; errgroup.Group folds in the
cancel-on-first-error propagation a hand-rolled pool would need.

Scan is cancelled by cancelling its ctx - the same context every
blocking call in this codebase already threads through - rather than
via a separate flag type.
*/
package scanner

import (
	"context"
	"crypto/md5" //nolint:gosec // move-detection key, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/metrics"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
	"github.com/airwave/radio-identity/internal/vectorindex"
)

// store is the subset of *database.DB the Scanner writes through.
type store interface {
	ListLibraryFiles(ctx context.Context) ([]models.LibraryFile, error)
	ListLibraryFileContentIndex(ctx context.Context) ([]database.ContentIndexEntry, error)
	TouchLibraryFiles(ctx context.Context, ids []uuid.UUID) error
	UpdateLibraryFileStat(ctx context.Context, id uuid.UUID, size int64, mtime time.Time) error
	ReattachLibraryFile(ctx context.Context, id, recordingID uuid.UUID, size int64, mtime time.Time, format string) error
	RetargetLibraryFile(ctx context.Context, id uuid.UUID, newPath string, size int64, mtime time.Time) error
	UpsertArtist(ctx context.Context, cleanName string) (*models.Artist, error)
	UpsertWork(ctx context.Context, cleanTitle string, primaryArtistID *uuid.UUID, respectParts bool, threshold float64, maxWorks int) (*models.Work, error)
	LinkWorkArtists(ctx context.Context, workID uuid.UUID, artistIDs []uuid.UUID, primaryID *uuid.UUID) error
	UpsertRecording(ctx context.Context, workID uuid.UUID, title, versionType string, duration *time.Duration, isrc *string) (*models.Recording, error)
	AttachLibraryFile(ctx context.Context, recordingID uuid.UUID, path string, size int64, mtime time.Time, format string, hash *string, bitrate *int) (*models.LibraryFile, error)
	UpsertProposedSplit(ctx context.Context, rawArtist string, proposedArtists []string, confidence float64) (*models.ProposedSplit, error)
}

// vectorWriter is the subset of *vectorindex.Index the Scanner writes
// through.
type vectorWriter interface {
	Add(ctx context.Context, tracks []vectorindex.Track) error
}

// cancelChecker reports whether a scan in progress has been asked to
// stop. In production (ScannerService) it reports whether the service's
// context has been cancelled; tests can supply a func that never
// returns true.
type cancelChecker func() bool

// Scanner walks a filesystem root and reconciles it against the
// catalog store.
type Scanner struct {
	db      store
	index   vectorWriter
	cfg     config.ScannerConfig
	exc     *ExceptionList
	meta    MetadataExtractor
	scanLog *logging.ScanLogger
}

// New builds a Scanner. exc may be nil, treated as an empty exception
// list.
func New(db store, index vectorWriter, cfg config.ScannerConfig, exc *ExceptionList) *Scanner {
	if cfg.MaxConcurrentFiles <= 0 {
		cfg.MaxConcurrentFiles = 10
	}
	if cfg.CommitInterval <= 0 {
		cfg.CommitInterval = 500
	}
	if cfg.VectorBatchSize <= 0 {
		cfg.VectorBatchSize = 500
	}
	if cfg.CancelPollFiles <= 0 {
		cfg.CancelPollFiles = 200
	}
	return &Scanner{db: db, index: index, cfg: cfg, exc: exc, meta: NewFilenameExtractor(), scanLog: logging.NewScanLogger()}
}

// Result summarizes one completed (or cancelled) scan.
type Result struct {
	Created        int
	Touched        int
	Moved          int
	Updated        int
	Errors         int
	ProposedSplits int
	Cancelled      bool
	Duration       time.Duration
}

// pathEntry is one known LibraryFile, keyed by its normalized path.
type pathEntry struct {
	ID          uuid.UUID
	RecordingID uuid.UUID
	Size        int64
	ModTime     time.Time
	Format      string
}

// missingEntry is a pathEntry not yet seen in the current scan, with
// its content-PID precomputed for move-detection comparison.
type missingEntry struct {
	pathEntry
	path       string
	contentPID string
}

// scanState holds every piece of shared, mutably-updated state a scan
// touches, behind a single mutex - one lock eliminates lost updates and
// duplicate move-pops.
type scanState struct {
	mu sync.Mutex

	index   map[string]pathEntry    // known path -> entry, mutated as moves/creates land
	missing map[string]missingEntry // not-yet-seen known paths, keyed by original path

	touchIDs      []uuid.UUID
	vectorBuffer  []vectorindex.Track
	filesSeen     int
	dirtyCreated  int
	dirtyMoved    int
	result        Result
}

// Scan walks cfg.RootPath and reconciles it against the catalog store.
// It returns a Result even on early cancellation; callers distinguish a
// cooperative stop from a hard failure via Result.Cancelled versus a
// non-nil error.
func (s *Scanner) Scan(ctx context.Context, cancelled cancelChecker) (Result, error) {
	start := time.Now()
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	st, err := s.buildState(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("scan: build index: %w", err)
	}

	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentFiles))
	g, gctx := errgroup.WithContext(ctx)

	var stopWalk bool
	walkErr := filepath.WalkDir(s.cfg.RootPath, func(path string, d fs.DirEntry, err error) error {
		if stopWalk {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			if cancelled() {
				stopWalk = true
				return filepath.SkipAll
			}
			return nil
		}
		if !isAudioFile(path) {
			return nil
		}

		st.mu.Lock()
		st.filesSeen++
		pollDue := st.filesSeen%s.cfg.CancelPollFiles == 0
		st.mu.Unlock()
		if pollDue && cancelled() {
			stopWalk = true
			return filepath.SkipAll
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			s.processFile(gctx, st, path)
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	st.mu.Lock()
	res := st.result
	res.Cancelled = stopWalk
	st.mu.Unlock()

	if err := s.flushPending(ctx, st); err != nil {
		return res, fmt.Errorf("scan: final flush: %w", err)
	}
	if res.Cancelled {
		metrics.ScanCancelled.Inc()
	}

	res.Duration = time.Since(start)
	metrics.RecordScanDuration(res.Duration)
	s.scanLog.LogScanCompleted(ctx, res.Created, res.Touched, res.Moved, res.Updated, res.Errors, res.Duration.Milliseconds())

	if walkErr != nil && !errors.Is(walkErr, filepath.SkipAll) {
		return res, fmt.Errorf("scan: walk %s: %w", s.cfg.RootPath, walkErr)
	}
	if waitErr != nil {
		return res, fmt.Errorf("scan: %w", waitErr)
	}
	return res, nil
}

// buildState loads the stat-first-skip index and the move-detection
// candidate list once, at the start of a scan.
func (s *Scanner) buildState(ctx context.Context) (*scanState, error) {
	files, err := s.db.ListLibraryFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list library files: %w", err)
	}
	content, err := s.db.ListLibraryFileContentIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("list content index: %w", err)
	}
	pidByFile := make(map[uuid.UUID]string, len(content))
	for _, c := range content {
		pidByFile[c.ID] = c.ContentPID
	}

	st := &scanState{
		index:   make(map[string]pathEntry, len(files)),
		missing: make(map[string]missingEntry, len(files)),
	}
	for _, f := range files {
		norm := normalizePath(f.Path)
		entry := pathEntry{ID: f.ID, RecordingID: f.RecordingID, Size: f.Size, ModTime: f.ModTime, Format: f.Format}
		st.index[norm] = entry
		if pid, ok := pidByFile[f.ID]; ok {
			st.missing[norm] = missingEntry{pathEntry: entry, path: norm, contentPID: pid}
		}
	}
	return st, nil
}

// processFile runs the per-file pipeline for
// one discovered path. Errors are recorded against the result rather
// than propagated, so one unreadable file never aborts the scan.
func (s *Scanner) processFile(ctx context.Context, st *scanState, path string) {
	norm := normalizePath(path)
	info, err := os.Stat(path)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		s.scanLog.LogFileError(ctx, path, err)
		return
	}

	st.mu.Lock()
	existing, known := st.index[norm]
	if known {
		delete(st.missing, norm)
	}
	st.mu.Unlock()

	switch {
	case known && existing.Size != info.Size():
		if err := s.db.UpdateLibraryFileStat(ctx, existing.ID, info.Size(), info.ModTime()); err != nil {
			s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
			return
		}
		s.updateIndexEntry(st, norm, pathEntry{ID: existing.ID, RecordingID: existing.RecordingID, Size: info.Size(), ModTime: info.ModTime(), Format: existing.Format})
		s.recordOutcome(st, "updated", func(r *Result) { r.Updated++ })

	case known && !existing.ModTime.IsZero() && truncForStorage(existing.ModTime).Equal(truncForStorage(info.ModTime())):
		st.mu.Lock()
		st.touchIDs = append(st.touchIDs, existing.ID)
		shouldFlush := len(st.touchIDs) >= s.cfg.TouchBatchSize && s.cfg.TouchBatchSize > 0
		st.mu.Unlock()
		if shouldFlush {
			s.flushTouches(ctx, st)
		}
		s.recordOutcome(st, "touched", func(r *Result) { r.Touched++ })

	case known && existing.ModTime.IsZero():
		if err := s.db.UpdateLibraryFileStat(ctx, existing.ID, existing.Size, info.ModTime()); err != nil {
			s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
			return
		}
		s.updateIndexEntry(st, norm, pathEntry{ID: existing.ID, RecordingID: existing.RecordingID, Size: existing.Size, ModTime: info.ModTime(), Format: existing.Format})
		s.recordOutcome(st, "touched", func(r *Result) { r.Touched++ })

	case known:
		// size matches, mtime differs: tags may have changed, re-extract.
		s.reextract(ctx, st, norm, existing, info)

	default:
		s.handleNewPath(ctx, st, norm, info)
	}

	s.maybeCommit(ctx, st)
}

// reextract re-derives the catalog hierarchy for a file whose mtime
// advanced at an unchanged path and unchanged size.
func (s *Scanner) reextract(ctx context.Context, st *scanState, norm string, existing pathEntry, info os.FileInfo) {
	meta, err := s.meta.Extract(norm)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	recordingID, err := s.upsertHierarchy(ctx, meta)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	if err := s.db.ReattachLibraryFile(ctx, existing.ID, recordingID, info.Size(), info.ModTime(), meta.Format); err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	s.updateIndexEntry(st, norm, pathEntry{ID: existing.ID, RecordingID: recordingID, Size: info.Size(), ModTime: info.ModTime(), Format: meta.Format})
	s.enqueueVector(ctx, st, recordingID, meta)
	s.scanLog.LogFileReattached(ctx, norm, recordingID.String())
	s.recordOutcome(st, "updated", func(r *Result) { r.Updated++ })
}

// handleNewPath processes a path with no matching index entry: either a
// move of a known-but-not-yet-seen file, or a brand new one.
func (s *Scanner) handleNewPath(ctx context.Context, st *scanState, norm string, info os.FileInfo) {
	meta, err := s.meta.Extract(norm)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	pid := contentPID(meta)

	if cand, ok := s.findMoveCandidate(st, info.Size(), pid); ok {
		if err := s.db.RetargetLibraryFile(ctx, cand.ID, norm, info.Size(), info.ModTime()); err != nil {
			s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
			return
		}
		s.finalizeMove(st, cand, norm, info)
		s.scanLog.LogFileMoved(ctx, cand.path, norm)
		s.recordOutcome(st, "moved", func(r *Result) { r.Moved++ })
		return
	}

	recordingID, err := s.upsertHierarchy(ctx, meta)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	lf, err := s.db.AttachLibraryFile(ctx, recordingID, norm, info.Size(), info.ModTime(), meta.Format, nil, nil)
	if err != nil {
		s.recordOutcome(st, "error", func(r *Result) { r.Errors++ })
		return
	}
	s.updateIndexEntry(st, norm, pathEntry{ID: lf.ID, RecordingID: recordingID, Size: info.Size(), ModTime: info.ModTime(), Format: meta.Format})
	s.enqueueVector(ctx, st, recordingID, meta)
	s.flagAmbiguousCollaboration(ctx, meta)
	s.scanLog.LogFileCreated(ctx, norm, recordingID.String())
	s.recordOutcome(st, "created", func(r *Result) { r.Created++ })
}

// upsertHierarchy upserts Artist/Work/Recording for one file's metadata
//, splitting collaboration artist strings exactly
// as the Matcher's promote path does (internal/verification).
func (s *Scanner) upsertHierarchy(ctx context.Context, meta LibraryMetadata) (uuid.UUID, error) {
	cleanTitle, version := normalizer.ExtractVersionType(normalizer.Clean(meta.RawTitle))

	names := normalizer.SplitArtists(meta.RawArtist)
	if len(names) == 0 {
		names = []string{normalizer.CleanArtist(meta.RawArtist)}
	}

	artistIDs := make([]uuid.UUID, 0, len(names))
	for _, n := range names {
		a, err := s.db.UpsertArtist(ctx, n)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("upsert artist %q: %w", n, err)
		}
		artistIDs = append(artistIDs, a.ID)
	}
	primaryID := artistIDs[0]

	work, err := s.db.UpsertWork(ctx, cleanTitle, &primaryID, true, 0, 0)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("upsert work %q: %w", cleanTitle, err)
	}
	if len(artistIDs) > 1 {
		if err := s.db.LinkWorkArtists(ctx, work.ID, artistIDs, &primaryID); err != nil {
			return uuid.UUID{}, fmt.Errorf("link work artists: %w", err)
		}
	}

	rec, err := s.db.UpsertRecording(ctx, work.ID, cleanTitle, string(version), nil, nil)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("upsert recording: %w", err)
	}
	return rec.ID, nil
}

// flagAmbiguousCollaboration: a raw
// artist string containing "/" with no album_artist to disambiguate it,
// and not on the operator's known-exception list, becomes a
// ProposedSplit for manual review rather than a silent guess.
func (s *Scanner) flagAmbiguousCollaboration(ctx context.Context, meta LibraryMetadata) {
	if !strings.Contains(meta.RawArtist, "/") || meta.AlbumArtist != "" {
		return
	}
	if s.exc.Contains(meta.RawArtist) {
		return
	}
	parts := strings.Split(meta.RawArtist, "/")
	proposed := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := normalizer.CleanArtist(p); c != "" {
			proposed = append(proposed, c)
		}
	}
	if len(proposed) < 2 {
		return
	}
	if _, err := s.db.UpsertProposedSplit(ctx, meta.RawArtist, proposed, 0.5); err != nil {
		logging.WithComponent("scanner").Warn().Str("raw_artist", meta.RawArtist).Err(err).Msg("propose split failed")
		return
	}
	s.scanLog.LogProposedSplit(ctx, meta.RawArtist, proposed, 0.5)
	metrics.ScanProposedSplits.Inc()
}

// findMoveCandidate looks up a missing entry matching size and
// content-PID, removing it from the missing set
// so a second new path can never pop the same candidate twice.
func (s *Scanner) findMoveCandidate(st *scanState, size int64, pid string) (missingEntry, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for path, cand := range st.missing {
		if cand.Size == size && cand.contentPID == pid {
			delete(st.missing, path)
			delete(st.index, path)
			return cand, true
		}
	}
	return missingEntry{}, false
}

func (s *Scanner) finalizeMove(st *scanState, cand missingEntry, newPath string, info os.FileInfo) {
	s.updateIndexEntry(st, newPath, pathEntry{ID: cand.ID, RecordingID: cand.RecordingID, Size: info.Size(), ModTime: info.ModTime(), Format: cand.Format})
	st.mu.Lock()
	st.dirtyMoved++
	st.mu.Unlock()
}

func (s *Scanner) updateIndexEntry(st *scanState, norm string, entry pathEntry) {
	st.mu.Lock()
	st.index[norm] = entry
	st.mu.Unlock()
}

func (s *Scanner) enqueueVector(ctx context.Context, st *scanState, recordingID uuid.UUID, meta LibraryMetadata) {
	track := vectorindex.Track{
		RecordingID: recordingID,
		CleanArtist: normalizer.CleanArtist(meta.RawArtist),
		CleanTitle:  normalizer.Clean(meta.RawTitle),
	}
	st.mu.Lock()
	st.vectorBuffer = append(st.vectorBuffer, track)
	st.dirtyCreated++
	due := len(st.vectorBuffer) >= s.cfg.VectorBatchSize
	st.mu.Unlock()

	if due {
		s.flushVectors(ctx, st)
	}
}

func (s *Scanner) recordOutcome(st *scanState, outcome string, apply func(*Result)) {
	metrics.RecordScanOutcome(outcome)
	st.mu.Lock()
	apply(&st.result)
	st.mu.Unlock()
}

// maybeCommit implements the coordinated-commit rule: a commit fires
// only at explicit multiples of
// commit_interval, and only when something changed since the last one.
func (s *Scanner) maybeCommit(ctx context.Context, st *scanState) {
	st.mu.Lock()
	due := st.filesSeen%s.cfg.CommitInterval == 0
	dirty := st.dirtyCreated > 0 || st.dirtyMoved > 0 || len(st.touchIDs) > 0 || len(st.vectorBuffer) > 0
	st.mu.Unlock()
	if !due {
		return
	}
	if !dirty {
		metrics.ScanCommitsSkipped.Inc()
		return
	}
	s.flushTouches(ctx, st)
	s.flushVectors(ctx, st)
	st.mu.Lock()
	st.dirtyCreated = 0
	st.dirtyMoved = 0
	st.mu.Unlock()
}

// flushPending drains every buffer at scan end, whether the scan ran to
// completion or was cancelled mid-walk.
func (s *Scanner) flushPending(ctx context.Context, st *scanState) error {
	s.flushTouches(ctx, st)
	s.flushVectors(ctx, st)
	return nil
}

func (s *Scanner) flushTouches(ctx context.Context, st *scanState) {
	st.mu.Lock()
	ids := st.touchIDs
	st.touchIDs = nil
	st.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	if err := s.db.TouchLibraryFiles(ctx, ids); err != nil {
		logging.WithComponent("scanner").Error().Err(err).Int("count", len(ids)).Msg("batch touch failed")
	}
}

func (s *Scanner) flushVectors(ctx context.Context, st *scanState) {
	st.mu.Lock()
	tracks := st.vectorBuffer
	st.vectorBuffer = nil
	st.mu.Unlock()
	if len(tracks) == 0 {
		return
	}
	if err := s.index.Add(ctx, tracks); err != nil {
		logging.WithComponent("scanner").Error().Err(err).Int("count", len(tracks)).Msg("vector index add failed")
	}
}

// contentPID computes the move-detection key,
// md5(clean_artist | clean_title), falling back to the raw
// filename when both are empty (no usable metadata at all).
func contentPID(meta LibraryMetadata) string {
	artist := normalizer.CleanArtist(meta.RawArtist)
	title := normalizer.Clean(meta.RawTitle)
	if artist == "" && title == "" {
		sum := md5.Sum([]byte(meta.RawTitle)) //nolint:gosec // identity key, not a security boundary
		return hex.EncodeToString(sum[:])
	}
	return normalizer.GenerateSignature(meta.RawArtist, meta.RawTitle)
}

// truncForStorage mirrors the precision DuckDB's TIMESTAMPTZ actually
// stores (microseconds); comparing a freshly-stat'd mtime against one
// round-tripped through the database needs the same truncation on both
// sides or every file looks changed every scan.
func truncForStorage(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
