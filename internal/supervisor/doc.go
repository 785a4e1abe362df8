// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package supervisor runs the long-lived services of the server under a
// suture supervisor tree.
//
// # Tree
//
//	backhaul
//	├── data-layer        staging sweeper
//	├── messaging-layer   websocket hub, event bridge
//	└── api-layer         HTTP server
//
// A failing service is restarted with backoff by its layer supervisor
// without affecting the other layers. Supervisor events are logged through
// sutureslog on the slog adapter of internal/logging.
//
// # Usage
//
//	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
//	tree.AddDataService(services.NewStagingSweeperService(stager, time.Hour, 6*time.Hour))
//	tree.AddMessagingService(hub)
//	tree.AddMessagingService(websocket.NewBridge(bus, hub))
//	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
//	err = tree.Serve(ctx)
package supervisor
