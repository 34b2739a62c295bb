// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/scanner"
)

// scannerRunner is the subset of *scanner.Scanner the service calls.
type scannerRunner interface {
	Scan(ctx context.Context, cancelled func() bool) (scanner.Result, error)
}

// ScannerService runs the filesystem Scanner on a fixed interval. A
// scan already in flight when the
// context is canceled is allowed to finish its current batch: Scan
// itself is cooperative-cancellation aware (internal/scanner's own
// cancel-checker callback), so Serve only needs to signal, not abandon,
// an in-progress pass.
type ScannerService struct {
	scanner  scannerRunner
	interval time.Duration
}

// NewScannerService creates a ScannerService ticking every interval.
func NewScannerService(s scannerRunner, interval time.Duration) *ScannerService {
	return &ScannerService{scanner: s, interval: interval}
}

// Serve implements suture.Service.
func (s *ScannerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cancelled := func() bool { return ctx.Err() != nil }

	for {
		select {
		case <-ticker.C:
			result, err := s.scanner.Scan(ctx, cancelled)
			if err != nil {
				logging.WithComponent("scanner-service").Error().Err(err).Msg("scan pass failed")
				return fmt.Errorf("scan pass: %w", err)
			}
			logging.WithComponent("scanner-service").Info().
				Int("created", result.Created).
				Int("touched", result.Touched).
				Int("moved", result.Moved).
				Int("updated", result.Updated).
				Int("errors", result.Errors).
				Bool("cancelled", result.Cancelled).
				Dur("duration", result.Duration).
				Msg("scan pass complete")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *ScannerService) String() string {
	return "scanner"
}
