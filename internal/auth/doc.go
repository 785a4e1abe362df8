// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

/*
Package auth issues and verifies bearer tokens for the HTTP API.

Authentication is active only when security.jwt_secret is configured. Tokens
are HMAC-SHA256 signed JWTs carrying a username and a role. The single
operator account (security.admin_username with a bcrypt hash in
security.admin_password_hash) exchanges its credentials for an admin token
at POST /api/v1/auth/token.

Key Components:

  - JWTManager: token generation and validation
  - CredentialChecker: constant-time admin credential verification
  - Middleware: extracts the token from the Authorization header or the
    "token" cookie and stores the claims on the request context

Usage:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	mw := auth.NewMiddleware(jwtManager)
	r.With(mw.Authenticate).Get("/api/v1/cloud/files", handler)

Roles are evaluated by package authz.
*/
package auth
