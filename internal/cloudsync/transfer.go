// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package cloudsync

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// minStallCheck is the shortest interval between progress checks.
const minStallCheck = time.Millisecond

// stallWatch cancels a transfer once no bytes have moved for idle.
type stallWatch struct {
	idle time.Duration
	base time.Time

	// last is the time of the most recent progress, as an offset from base.
	last atomic.Int64
}

// watchStall derives a context that is canceled with ErrTransferStalled
// when the returned watch sees no progress for idle. stop must be called.
func watchStall(ctx context.Context, idle time.Duration) (context.Context, *stallWatch, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	w := &stallWatch{idle: idle, base: time.Now()}

	interval := idle / 4
	if interval < minStallCheck {
		interval = minStallCheck
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if w.sinceProgress() >= idle {
					cancel(ErrTransferStalled)
					return
				}
			}
		}
	}()

	return ctx, w, func() {
		close(done)
		cancel(nil)
	}
}

func (w *stallWatch) touch() {
	w.last.Store(int64(time.Since(w.base)))
}

func (w *stallWatch) sinceProgress() time.Duration {
	return time.Since(w.base) - time.Duration(w.last.Load())
}

// Reader reports every successful read of r as progress. The result keeps
// r's Seek method, which S3 needs to sign and retry request bodies.
func (w *stallWatch) Reader(r io.Reader) io.Reader {
	pr := &progressReader{r: r, w: w}
	if s, ok := r.(io.Seeker); ok {
		return &progressReadSeeker{progressReader: pr, s: s}
	}
	return pr
}

type progressReader struct {
	r io.Reader
	w *stallWatch
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.w.touch()
	}
	return n, err
}

type progressReadSeeker struct {
	*progressReader
	s io.Seeker
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	return p.s.Seek(offset, whence)
}
