// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/backhaul/internal/events"
)

// startHub runs a hub until the test ends.
func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func attach(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hub.Attach(ctx, client); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return client
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestHub_BroadcastEventReachesAllClients(t *testing.T) {
	hub, _, _ := startHub(t)
	a := attach(t, hub)
	b := attach(t, hub)

	hub.BroadcastEvent(events.Envelope{ID: "e1", Topic: events.TopicRestoreCompleted})

	for _, c := range []*Client{a, b} {
		msg, ok := receive(t, c)
		if !ok {
			t.Fatal("send channel closed")
		}
		env, isEnv := msg.Data.(events.Envelope)
		if msg.Type != MessageTypeEvent || !isEnv || env.ID != "e1" {
			t.Errorf("message = %+v", msg)
		}
	}
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub, _, _ := startHub(t)
	slow := attach(t, hub)

	for i := 0; i < cap(slow.send)+1; i++ {
		hub.BroadcastEvent(events.Envelope{Topic: events.TopicCloudSynced})
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("slow client was not removed")
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _, _ := startHub(t)
	c := attach(t, hub)

	hub.unregister <- c
	if _, ok := receive(t, c); ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHub_ServeStopsOnCancel(t *testing.T) {
	hub, cancel, done := startHub(t)
	c := attach(t, hub)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	if _, ok := receive(t, c); ok {
		t.Error("clients should be closed on shutdown")
	}
}

func TestHub_AttachWithoutRunningHub(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := hub.Attach(ctx, NewClient(hub, nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Attach() error = %v", err)
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("reason = %s", got)
	}

	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("reason = %s", got)
	}
}
