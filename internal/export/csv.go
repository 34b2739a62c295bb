// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/airwave/radio-identity/internal/models"
)

var csvHeader = []string{
	"Date", "Time", "Station", "Raw Artist", "Raw Title",
	"Matched Artist", "Matched Title", "Match Type", "Match Confidence",
}

// CSVResult reports how many rows a CSV export wrote.
type CSVResult struct {
	Rows int
}

// WriteCSV writes the broadcast-history export columns to w: Date, Time,
// Station, Raw Artist, Raw Title, Matched Artist, Matched Title, Match
// Type, Match Confidence. "Match Confidence" is the stored match_reason
// string verbatim - the Matcher embeds its score breakdown directly in
// that string (e.g. "High Confidence Match (A:0.92, T:0.95, V:0.03)"),
// so there is no separate numeric column to carry.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, filter Filter) (CSVResult, error) {
	rows, err := e.db.ListBroadcastLogsForExport(ctx, filter.toDBFilter())
	if err != nil {
		return CSVResult{}, fmt.Errorf("export csv: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return CSVResult{}, fmt.Errorf("export csv: write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.PlayedAt.Format("2006-01-02"),
			r.PlayedAt.Format("15:04:05"),
			r.Station,
			r.RawArtist,
			r.RawTitle,
			deref(r.MatchedArtist),
			deref(r.MatchedTitle),
			matchType(r.MatchReason),
			deref(r.MatchReason),
		}
		if err := cw.Write(record); err != nil {
			return CSVResult{}, fmt.Errorf("export csv: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return CSVResult{}, fmt.Errorf("export csv: flush: %w", err)
	}
	return CSVResult{Rows: len(rows)}, nil
}

func matchType(reason *string) string {
	if reason == nil {
		return ""
	}
	return models.ParseMatchReason(*reason).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
