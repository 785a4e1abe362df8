// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any username or password mismatch.
var ErrInvalidCredentials = errors.New("invalid username or password")

// CredentialChecker verifies the configured operator account.
type CredentialChecker struct {
	username     string
	passwordHash []byte // bcrypt
}

// NewCredentialChecker creates a checker for username and a bcrypt hash.
func NewCredentialChecker(username, passwordHash string) (*CredentialChecker, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
	}
	return &CredentialChecker{
		username:     username,
		passwordHash: []byte(passwordHash),
	}, nil
}

// Check returns nil when username and password match.
// Both comparisons always run.
func (c *CredentialChecker) Check(username, password string) error {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	if !usernameMatch || !passwordMatch {
		return ErrInvalidCredentials
	}
	return nil
}
