// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/backhaul/internal/events"
)

// errStreamClosed makes the supervisor restart the bridge.
var errStreamClosed = errors.New("event stream closed")

// EventSource yields decoded envelopes until ctx ends.
type EventSource interface {
	Stream(ctx context.Context) (<-chan events.Envelope, error)
}

// Bridge forwards bus events to websocket clients.
type Bridge struct {
	source EventSource
	hub    *Hub
}

// NewBridge creates a bridge from source to hub.
func NewBridge(source EventSource, hub *Hub) *Bridge {
	return &Bridge{source: source, hub: hub}
}

// String names the service in supervisor logs.
func (b *Bridge) String() string {
	return "websocket-bridge"
}

// Serve copies envelopes into the hub until ctx is canceled.
func (b *Bridge) Serve(ctx context.Context) error {
	stream, err := b.source.Stream(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errStreamClosed
			}
			b.hub.BroadcastEvent(env)
		}
	}
}
