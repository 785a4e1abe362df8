// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package services

import (
	"context"
	"time"

	"github.com/tomtom215/backhaul/internal/logging"
)

// Sweeper removes stale staging leftovers. Satisfied by *restore.Stager.
type Sweeper interface {
	SweepStale(olderThan time.Duration) (int, error)
}

// StagingSweeperService runs a Sweeper on an interval.
type StagingSweeperService struct {
	sweeper   Sweeper
	interval  time.Duration
	olderThan time.Duration
}

// NewStagingSweeperService sweeps every interval, removing entries older than olderThan.
func NewStagingSweeperService(sweeper Sweeper, interval, olderThan time.Duration) *StagingSweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	if olderThan <= 0 {
		olderThan = 6 * time.Hour
	}
	return &StagingSweeperService{sweeper: sweeper, interval: interval, olderThan: olderThan}
}

// Serve sweeps once immediately and then on every tick until ctx is canceled.
// Sweep errors are logged and do not stop the service.
func (s *StagingSweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *StagingSweeperService) sweep() {
	removed, err := s.sweeper.SweepStale(s.olderThan)
	if err != nil {
		logging.Warn().Err(err).Msg("Staging sweep failed")
		return
	}
	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Removed stale staging entries")
	}
}

// String names the service in supervisor logs.
func (s *StagingSweeperService) String() string {
	return "staging-sweeper"
}
