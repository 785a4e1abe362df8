// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls     atomic.Int32
	olderThan atomic.Int64
	err       error
}

func (s *countingSweeper) SweepStale(olderThan time.Duration) (int, error) {
	s.calls.Add(1)
	s.olderThan.Store(int64(olderThan))
	return 1, s.err
}

func TestStagingSweeperService_Serve(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("permission denied")}
	svc := NewStagingSweeperService(sweeper, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if sweeper.calls.Load() < 3 {
		t.Errorf("sweeps = %d, want >= 3 (errors must not stop the service)", sweeper.calls.Load())
	}
	if time.Duration(sweeper.olderThan.Load()) != time.Minute {
		t.Errorf("olderThan = %v", time.Duration(sweeper.olderThan.Load()))
	}
}

func TestNewStagingSweeperService_Defaults(t *testing.T) {
	svc := NewStagingSweeperService(&countingSweeper{}, 0, 0)
	if svc.interval != time.Hour || svc.olderThan != 6*time.Hour {
		t.Errorf("interval=%v olderThan=%v", svc.interval, svc.olderThan)
	}
	if svc.String() != "staging-sweeper" {
		t.Errorf("String() = %q", svc.String())
	}
}
