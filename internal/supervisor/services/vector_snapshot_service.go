// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"time"

	"github.com/airwave/radio-identity/internal/logging"
)

// snapshotter is the subset of *vectorindex.Index the service calls.
type snapshotter interface {
	Save() error
}

// VectorSnapshotService persists the in-memory vector index to disk on
// a fixed interval. A failed snapshot is logged and retried at the next
// tick rather than returned - losing a snapshot only costs re-embedding
// on the next scan, which is not worth a supervisor restart.
type VectorSnapshotService struct {
	index    snapshotter
	interval time.Duration
}

// NewVectorSnapshotService creates a VectorSnapshotService ticking every
// interval.
func NewVectorSnapshotService(index snapshotter, interval time.Duration) *VectorSnapshotService {
	return &VectorSnapshotService{index: index, interval: interval}
}

// Serve implements suture.Service. A final snapshot is attempted on
// shutdown so embeddings added since the last tick survive a clean
// exit.
func (s *VectorSnapshotService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.index.Save(); err != nil {
				logging.WithComponent("vector-snapshot").Error().Err(err).Msg("vector index snapshot failed")
				continue
			}
			logging.WithComponent("vector-snapshot").Debug().Msg("vector index snapshot written")
		case <-ctx.Done():
			if err := s.index.Save(); err != nil {
				logging.WithComponent("vector-snapshot").Error().Err(err).Msg("final vector index snapshot failed")
			}
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *VectorSnapshotService) String() string {
	return "vector-snapshot"
}
