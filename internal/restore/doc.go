// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package restore imports uploaded backup artifacts and restores them into
// the subsystems they belong to.
//
// # Overview
//
// An upload flows through four components:
//
//	Stager          - persists the upload atomically under a unique staged name
//	Classify        - decides the artifact kind from the filename suffix
//	BundleExtractor - unpacks full bundles and dispatches each member
//	Restorers       - one strategy per kind (database, settings, metrics)
//
// The Orchestrator ties them together and returns a RestoreOutcome.
//
// # Artifact Kinds
//
// Classification is a case-sensitive match on the literal filename suffix:
//
//	.tar.gz -> KindFull      (bundle of the kinds below)
//	.sql    -> KindDatabase  (replayed by the engine's client: mysql or psql)
//	.json   -> KindSettings  (flattened and applied to the runtime config store)
//	.csv    -> KindMetrics   (ingested into the analytics store)
//
// Anything else fails with ErrUnsupportedFormat.
//
// # Bundles
//
// A full bundle is extracted to "<staged path>_extracted", which is removed
// on every exit path. Top-level members are matched by name:
//
//	database_backup*.sql   -> database restorer
//	settings_backup*.json  -> settings restorer
//	stats_backup*.csv      -> metrics restorer
//
// What happens with members that match nothing, and with a member whose
// restore fails, is governed by PartialBundlePolicy. The default policy is
// "skip-unrecognized, fail-fast-on-recognized-failure". Bundle restores are
// not transactional: members restored before a failure stay restored, and
// the BundleReport records exactly which ones those were.
//
// # Errors
//
//	ErrUnsupportedFormat  - suffix not in the allow-list (terminal)
//	ErrStagingUnavailable - staging directory cannot be created or written
//	ErrRestoreFailed      - a restorer failed; see *RestoreError for subsystem and cause
//
// Failed artifacts are left in the staging directory for inspection.
package restore
