// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package testinfra provides container-backed infrastructure for integration
// tests. Everything here is behind the integration build tag.
//
// # Postgres Container
//
// PostgresContainer starts a disposable PostgreSQL server. Its Runner
// executes restore commands inside the container, so the database restorer
// can be exercised without a psql binary on the host:
//
//	func TestRestoreDump(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    restorer, _ := restore.NewDatabaseRestorer(pg.RestoreOptions(), pg.Runner())
//	    err = restorer.Restore(ctx, "testdata/dump.sql")
//	}
//
// # CI Considerations
//
// These tests require Docker. They are skipped when the daemon is not
// reachable. The first run pulls the image.
package testinfra
