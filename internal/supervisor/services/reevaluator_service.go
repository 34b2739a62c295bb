// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/reevaluator"
)

// reevaluatorRunner is the subset of *reevaluator.Reevaluator the
// service calls.
type reevaluatorRunner interface {
	Run(ctx context.Context) (reevaluator.Result, error)
}

// ReevaluatorService runs the Re-evaluator on its own periodic ticker
// and also whenever Trigger is
// called - internal/api's SetThresholds handler calls Trigger right
// after a threshold update so an operator sees a pass run immediately
// rather than waiting out the ticker. Rapid
// successive Trigger calls coalesce into a single pending pass: the
// channel is buffered to 1 and a full buffer silently drops the
// duplicate trigger, since a pass already queued will pick up every
// change made before it runs.
type ReevaluatorService struct {
	reeval   reevaluatorRunner
	interval time.Duration
	trigger  chan struct{}
}

// NewReevaluatorService creates a ReevaluatorService ticking every
// interval, additionally runnable on demand via Trigger.
func NewReevaluatorService(r reevaluatorRunner, interval time.Duration) *ReevaluatorService {
	return &ReevaluatorService{
		reeval:   r,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate re-evaluation pass. Non-blocking: if a
// trigger is already pending, this is a no-op.
func (s *ReevaluatorService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Serve implements suture.Service.
func (s *ReevaluatorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.runPass(ctx); err != nil {
				return err
			}
		case <-s.trigger:
			if err := s.runPass(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *ReevaluatorService) runPass(ctx context.Context) error {
	result, err := s.reeval.Run(ctx)
	if err != nil {
		logging.WithComponent("reevaluator-service").Error().Err(err).Msg("reevaluation pass failed")
		return fmt.Errorf("reevaluation pass: %w", err)
	}
	logging.WithComponent("reevaluator-service").Info().
		Int("pairs_considered", result.PairsConsidered).
		Int("pairs_changed", result.PairsChanged).
		Int("rows_updated", result.RowsUpdated).
		Dur("duration", result.Duration).
		Msg("reevaluation pass complete")
	return nil
}

// String implements fmt.Stringer for suture's log messages.
func (s *ReevaluatorService) String() string {
	return "reevaluator"
}
