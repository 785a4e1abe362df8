// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

/*
Package api provides the HTTP layer of Backhaul.

Routes (chi):

	GET    /health                          liveness and dependency checks
	GET    /metrics                         Prometheus exposition
	POST   /api/v1/auth/token               exchange admin credentials for a JWT

	POST   /api/v1/backups/upload           stage and restore one artifact
	GET    /api/v1/backups                  list staged artifacts
	GET    /api/v1/backups/download/{id}    stream a staged artifact
	GET    /api/v1/backups/settings         backup settings document
	PUT    /api/v1/backups/settings         replace the backup settings document

	GET    /api/v1/cloud/status             remote folder client state
	GET    /api/v1/cloud/files              every file in the folder
	GET    /api/v1/cloud/backups            backup artifacts in the folder
	GET    /api/v1/cloud/search?q=          case-sensitive name search
	GET    /api/v1/cloud/quota              storage quota
	POST   /api/v1/cloud/sync/{file}        push a staged artifact (deduplicated)
	POST   /api/v1/cloud/pull/{id...}       download a remote file into staging
	DELETE /api/v1/cloud/files/{id...}      delete a remote file (ids may contain /)

	GET    /api/v1/settings/runtime         restored runtime settings
	GET    /api/v1/analytics/batches        ingested metrics snapshots
	GET    /api/v1/ws                       websocket event stream

Responses use APIResponse, except the upload endpoint which returns the
restore outcome document ({success, message, fileName, kind, report}).
Errors carry a machine-readable code:

	UNSUPPORTED_FORMAT   400  suffix not recognized
	INVALID_FILENAME     400  name cannot be staged safely
	NO_FILE              400  no "backup" or "file" part in the form
	STAGING_UNAVAILABLE  500  staging directory cannot be written
	RESTORE_FAILED       500  a restorer failed
	CLOUD_DISABLED       503  cloud sync not initialized
	VALIDATION_ERROR     400  settings update rejected

When security.jwt_secret is set, /api/v1 routes other than auth/token
require a bearer token and are authorized by role (package authz).
*/
package api
