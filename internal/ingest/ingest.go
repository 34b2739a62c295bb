// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package ingest implements the CSV -> BroadcastLog ingest path: parse a
station's play log, drop unusable rows, resolve every remaining
(artist, title) pair through the Matcher in one batch, and persist the
result.

Rows the Matcher could not auto-resolve feed the Discovery Queue: each
Review/Reject signature is bumped by its play count so an operator sees
it on the verification surface immediately after ingest.

Per-row failures are isolated: a malformed date or an empty
artist/title drops that row and increments a count, the rest of the
file still ingests.
*/
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/matcher"
	"github.com/airwave/radio-identity/internal/metrics"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// store is the subset of *database.DB the Ingester writes through.
type store interface {
	UpsertStation(ctx context.Context, callsign string, formatCode *string) (*models.Station, error)
	InsertBroadcastLog(ctx context.Context, log *models.BroadcastLog) error
	BumpDiscoveryQueue(ctx context.Context, signature, rawArtist, rawTitle string, suggestedWorkID *uuid.UUID, delta int64) (*models.DiscoveryQueueEntry, error)
}

// resolver is the subset of *matcher.Matcher the Ingester calls.
type resolver interface {
	Resolve(ctx context.Context, pairs []matcher.InputPair) (map[matcher.InputPair]matcher.Result, error)
}

// Ingester drives the CSV ingest path over a store and resolver (a
// *database.DB and *matcher.Matcher in production).
type Ingester struct {
	db  store
	mat resolver
}

// New constructs an Ingester.
func New(db store, mat resolver) *Ingester {
	return &Ingester{db: db, mat: mat}
}

// Result summarizes one completed ingest run.
type Result struct {
	RowsRead         int
	RowsIngested     int
	RowsDropped      int
	SignaturesQueued int
}

// Run parses r as a CSV play log, resolves every surviving row's
// (artist, title) pair through the Matcher in one batch, and persists
// each as a BroadcastLog row.
func (ing *Ingester) Run(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()
	rows, dropped, err := parseRows(r)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}
	res := Result{RowsRead: len(rows) + dropped, RowsDropped: dropped}
	if len(rows) == 0 {
		return res, nil
	}

	pairs := make([]matcher.InputPair, len(rows))
	for i, rw := range rows {
		pairs[i] = matcher.InputPair{RawArtist: rw.rawArtist, RawTitle: rw.rawTitle}
	}
	verdicts, err := ing.mat.Resolve(ctx, pairs)
	if err != nil {
		return res, fmt.Errorf("ingest: resolve batch: %w", err)
	}

	stationIDs := make(map[string]uuid.UUID)
	bumps := make(map[string]*queueBump)
	bumpOrder := make([]string, 0, 8)
	var matched, unmatched, review int
	for _, rw := range rows {
		stationID, ok := stationIDs[rw.station]
		if !ok {
			station, err := ing.db.UpsertStation(ctx, rw.station, nil)
			if err != nil {
				logging.WithComponent("ingest").Error().Str("station", rw.station).Err(err).Msg("upsert station failed")
				res.RowsDropped++
				continue
			}
			stationID = station.ID
			stationIDs[rw.station] = stationID
		}

		verdict := verdicts[matcher.InputPair{RawArtist: rw.rawArtist, RawTitle: rw.rawTitle}]
		var reason *string
		if verdict.Reason != "" {
			r := verdict.Reason
			reason = &r
		}

		log := &models.BroadcastLog{
			ID:          uuid.New(),
			StationID:   stationID,
			PlayedAt:    rw.playedAt,
			RawArtist:   rw.rawArtist,
			RawTitle:    rw.rawTitle,
			WorkID:      verdict.WorkID,
			MatchReason: reason,
			CreatedAt:   time.Now(),
		}
		if err := ing.db.InsertBroadcastLog(ctx, log); err != nil {
			logging.WithComponent("ingest").Error().Err(err).Msg("insert broadcast log failed")
			res.RowsDropped++
			continue
		}
		res.RowsIngested++
		switch {
		case verdict.Classification == matcher.ClassificationReview:
			review++
		case verdict.WorkID != nil:
			matched++
		default:
			unmatched++
		}

		if verdict.Classification == matcher.ClassificationReview || verdict.Classification == matcher.ClassificationReject {
			sig := normalizer.GenerateSignature(rw.rawArtist, rw.rawTitle)
			b, ok := bumps[sig]
			if !ok {
				b = &queueBump{rawArtist: rw.rawArtist, rawTitle: rw.rawTitle}
				bumps[sig] = b
				bumpOrder = append(bumpOrder, sig)
			}
			b.count++
			if b.suggested == nil && verdict.WorkID != nil {
				b.suggested = verdict.WorkID
			}
		}
	}

	res.SignaturesQueued = ing.flushQueueBumps(ctx, bumps, bumpOrder)
	metrics.RecordIngestBatch(matched, unmatched, review, res.RowsDropped, time.Since(start))

	return res, nil
}

// queueBump accumulates one signature's Discovery Queue delta across a
// batch, so a pair played fifty times costs one queue write.
type queueBump struct {
	rawArtist string
	rawTitle  string
	count     int64
	suggested *uuid.UUID
}

// flushQueueBumps writes the batch's accumulated Review/Reject
// signatures to the Discovery Queue. A signature that acquired an
// active Identity Bridge since the batch was classified is skipped -
// the mutual-exclusivity invariant wins over the stale verdict - and
// any other failure is logged and isolated to its signature.
func (ing *Ingester) flushQueueBumps(ctx context.Context, bumps map[string]*queueBump, order []string) int {
	queued := 0
	for _, sig := range order {
		b := bumps[sig]
		if _, err := ing.db.BumpDiscoveryQueue(ctx, sig, b.rawArtist, b.rawTitle, b.suggested, b.count); err != nil {
			if errors.Is(err, catalogerr.ErrBridgeConflict) {
				logging.WithComponent("ingest").Debug().Str("signature", sig).Msg("signature bridged since classification, not queued")
				continue
			}
			logging.WithComponent("ingest").Warn().Str("signature", sig).Err(err).Msg("discovery queue bump failed")
			continue
		}
		queued++
	}
	return queued
}

// dateLayouts are tried in order against a combined/Played column or a
// standalone Date column: ISO-8601, YYYY-MM-DD HH:MM:SS[.fff], and the
// combined Date Time forms.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateTime tries every known layout against s, returning the
// first one that parses.
func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time format %q", s)
}

// columnIndex finds a header column by any of its accepted names,
// case-insensitively.
func columnIndex(header []string, names ...string) int {
	for i, h := range header {
		trimmed := strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if trimmed == n {
				return i
			}
		}
	}
	return -1
}

// row is one parsed CSV record, before any catalog lookups.
type row struct {
	station   string
	playedAt  time.Time
	rawArtist string
	rawTitle  string
}

// parseRows reads every data row from r, applying the flexible column
// and date rules above. A row that fails to parse is dropped and counted,
// not returned as an error - the rest of the file still ingests.
func parseRows(r io.Reader) ([]row, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	stationIdx := columnIndex(header, "station")
	playedIdx := columnIndex(header, "played", "datetime", "timestamp")
	dateIdx := columnIndex(header, "date")
	timeIdx := columnIndex(header, "time")
	artistIdx := columnIndex(header, "artist")
	titleIdx := columnIndex(header, "title")

	var out []row
	dropped := 0

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			logging.WithComponent("ingest").Warn().Err(err).Msg("skipping malformed csv row")
			continue
		}

		station := field(rec, stationIdx)
		artist := strings.TrimSpace(field(rec, artistIdx))
		title := strings.TrimSpace(field(rec, titleIdx))
		if artist == "" || title == "" {
			dropped++
			continue
		}

		playedAt, err := resolvePlayedAt(rec, playedIdx, dateIdx, timeIdx)
		if err != nil {
			dropped++
			logging.WithComponent("ingest").Warn().Str("artist", artist).Str("title", title).Err(err).Msg("skipping row with unparseable date")
			continue
		}

		out = append(out, row{station: station, playedAt: playedAt, rawArtist: artist, rawTitle: title})
	}

	return out, dropped, nil
}

func resolvePlayedAt(rec []string, playedIdx, dateIdx, timeIdx int) (time.Time, error) {
	if playedIdx >= 0 {
		return parseDateTime(field(rec, playedIdx))
	}
	if dateIdx >= 0 && timeIdx >= 0 {
		return parseDateTime(strings.TrimSpace(field(rec, dateIdx)) + " " + strings.TrimSpace(field(rec, timeIdx)))
	}
	if dateIdx >= 0 {
		return parseDateTime(field(rec, dateIdx))
	}
	return time.Time{}, fmt.Errorf("no Played or Date/Time column present")
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}
