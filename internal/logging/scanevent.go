// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ScanLogger provides specialized logging for the library Scanner's
// per-file decisions: a file is created, touched, moved,
// reattached, or flagged for an ambiguous collaboration split. Consumers
// that only care about aggregate counts can keep using a plain
// WithComponent("scanner") logger; ScanLogger exists for call sites that
// want one structured event per file decision, the way a scan report
// would.
type ScanLogger struct {
	logger zerolog.Logger
}

// NewScanLogger creates a logger configured for file-scan decisions.
func NewScanLogger() *ScanLogger {
	return &ScanLogger{logger: With().Str("component", "scanner").Logger()}
}

// NewScanLoggerWithLogger creates a ScanLogger over a caller-supplied
// zerolog.Logger, for tests that want to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewScanLoggerWithLogger(logger zerolog.Logger) *ScanLogger {
	return &ScanLogger{logger: logger.With().Str("component", "scanner").Logger()}
}

func (s *ScanLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := s.logger.With()
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}
	return logCtx.Logger()
}

// LogFileCreated logs a brand-new LibraryFile attached to a freshly
// upserted Recording.
func (s *ScanLogger) LogFileCreated(ctx context.Context, path string, recordingID string) {
	l := s.loggerWithContext(ctx)
	l.Info().
		Str("path", path).
		Str("recording_id", recordingID).
		Msg("library file created")
}

// LogFileTouched logs that an unchanged (path, size, mtime) triple only
// needed its last-seen marker bumped (the stat-first skip).
func (s *ScanLogger) LogFileTouched(ctx context.Context, count int) {
	l := s.loggerWithContext(ctx)
	l.Debug().
		Int("count", count).
		Msg("library files touched")
}

// LogFileMoved logs a retargeted LibraryFile row: same content-PID and
// size as a previously known file, new path.
func (s *ScanLogger) LogFileMoved(ctx context.Context, oldPath, newPath string) {
	l := s.loggerWithContext(ctx)
	l.Info().
		Str("old_path", oldPath).
		Str("new_path", newPath).
		Msg("library file moved")
}

// LogFileReattached logs a LibraryFile row whose on-disk stat changed
// but whose path and content-PID did not: the file
// was edited or re-encoded in place.
func (s *ScanLogger) LogFileReattached(ctx context.Context, path, recordingID string) {
	l := s.loggerWithContext(ctx)
	l.Info().
		Str("path", path).
		Str("recording_id", recordingID).
		Msg("library file reattached")
}

// LogFileError logs a per-file failure (stat, metadata extraction, or
// catalog upsert) that the scan skips past rather than aborting on.
func (s *ScanLogger) LogFileError(ctx context.Context, path string, err error) {
	l := s.loggerWithContext(ctx)
	l.Warn().
		Str("path", path).
		Err(err).
		Msg("scan skipped file after error")
}

// LogProposedSplit logs a raw artist string flagged as an ambiguous
// collaboration and queued for operator review instead of
// being auto-split.
func (s *ScanLogger) LogProposedSplit(ctx context.Context, rawArtist string, proposedArtists []string, confidence float64) {
	l := s.loggerWithContext(ctx)
	l.Info().
		Str("raw_artist", rawArtist).
		Strs("proposed_artists", proposedArtists).
		Float64("confidence", confidence).
		Msg("ambiguous collaboration proposed for split")
}

// LogScanCompleted logs the aggregate outcome of one scan pass.
func (s *ScanLogger) LogScanCompleted(ctx context.Context, created, touched, moved, updated, errored int, durationMs int64) {
	l := s.loggerWithContext(ctx)
	l.Info().
		Int("created", created).
		Int("touched", touched).
		Int("moved", moved).
		Int("updated", updated).
		Int("errors", errored).
		Int64("duration_ms", durationMs).
		Msg("scan completed")
}
