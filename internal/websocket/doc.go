// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

/*
Package websocket streams lifecycle events to connected browser clients.

Key Components:

  - Hub: registers clients and fans messages out to them
  - Client: one connection with a read pump and a write pump
  - Bridge: copies envelopes from the event bus into the hub

Both Hub and Bridge implement suture.Service (Serve(ctx) error) and run
under the supervisor tree.

Message Types:

  - event: a bus envelope (restore.completed, cloud.synced, ...)
  - ping / pong: application level keepalive initiated by the client

Usage:

	hub := websocket.NewHub()
	bridge := websocket.NewBridge(bus, hub)
	sup.Add(hub)
	sup.Add(bridge)

	// in the HTTP handler after upgrading
	client := websocket.NewClient(hub, conn)
	if err := hub.Attach(r.Context(), client); err == nil {
	    client.Start()
	}
*/
package websocket
