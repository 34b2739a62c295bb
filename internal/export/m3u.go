// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"fmt"
	"io"
	"time"
)

// M3UResult reports how an M3U export disposed of every candidate log
// row; the HTTP layer surfaces the counts as response headers.
type M3UResult struct {
	Included int
	Skipped  int
	Filename string
}

// WriteM3U writes an M3U playlist over every BroadcastLog matching
// filter, in chronological order. A log with no linked Work, no
// resolved Recording, or no LibraryFile is skipped rather than
// aborting the export.
func (e *Exporter) WriteM3U(ctx context.Context, w io.Writer, filter Filter, now time.Time) (M3UResult, error) {
	rows, err := e.db.ListBroadcastLogsForExport(ctx, filter.toDBFilter())
	if err != nil {
		return M3UResult{}, fmt.Errorf("export m3u: %w", err)
	}

	res := M3UResult{Filename: timestampedFilename("airwave_playlist", "m3u", now)}
	if _, err := io.WriteString(w, "#EXTM3U\n"); err != nil {
		return res, fmt.Errorf("export m3u: write header: %w", err)
	}

	for _, r := range rows {
		if r.WorkID == nil || r.RecordingID == nil {
			res.Skipped++
			continue
		}
		lf, err := e.db.FirstLibraryFileForRecording(ctx, *r.RecordingID)
		if err != nil {
			return res, fmt.Errorf("export m3u: %w", err)
		}
		if lf == nil {
			res.Skipped++
			continue
		}

		durationSeconds := int64(-1)
		if lf.DurationMs != nil {
			durationSeconds = *lf.DurationMs / 1000
		}

		artist := deref(r.MatchedArtist)
		if artist == "" {
			artist = r.RawArtist
		}
		title := deref(r.MatchedTitle)
		if title == "" {
			title = r.RawTitle
		}

		if _, err := fmt.Fprintf(w, "#EXTINF:%d,%s - %s\n%s\n", durationSeconds, artist, title, lf.Path); err != nil {
			return res, fmt.Errorf("export m3u: write entry: %w", err)
		}
		res.Included++
	}
	return res, nil
}
