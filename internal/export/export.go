// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package export implements the two read-only export formats over the
BroadcastLog history: a CSV dump for spreadsheet analysis and an M3U
playlist for playout.

Both formats share the same chronological source query
(internal/database's ListBroadcastLogsForExport); this package only
shapes that result set into the two wire formats.
*/
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/database"
)

// store is the subset of *database.DB export needs.
type store interface {
	ListBroadcastLogsForExport(ctx context.Context, filter database.ExportFilter) ([]database.ExportRow, error)
	FirstLibraryFileForRecording(ctx context.Context, recordingID uuid.UUID) (*database.ExportLibraryFile, error)
}

// Filter narrows an export to a played_at window. A zero value
// exports the entire BroadcastLog history.
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

func (f Filter) toDBFilter() database.ExportFilter {
	return database.ExportFilter{StartDate: f.StartDate, EndDate: f.EndDate}
}

// Exporter builds CSV and M3U exports over a store (a *database.DB in
// production).
type Exporter struct {
	db store
}

// New constructs an Exporter.
func New(db store) *Exporter {
	return &Exporter{db: db}
}

func timestampedFilename(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}
