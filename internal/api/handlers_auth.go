// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/backhaul/internal/auth"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/validation"
)

// TokenRequest is the body of POST /api/v1/auth/token.
type TokenRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken exchanges the admin credentials for an admin token. The token
// is returned in the body and as an HttpOnly cookie.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil || h.credentials == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeAuthNotConfigured, "Token issuing is not configured", nil)
		return
	}

	var req TokenRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid JSON body", err)
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		apiErr := verr.ToAPIError()
		respondAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    CodeValidationError,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil)
		return
	}

	if err := h.credentials.Check(req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.Ctx(r.Context()).Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Token request with invalid credentials")
			respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid username or password", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Credential check failed", err)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, auth.RoleAdmin)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to issue token", err)
		return
	}
	expiresAt := time.Now().Add(h.jwt.TTL()).UTC()

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	logging.Ctx(r.Context()).Info().Str("username", sanitizeLogValue(req.Username)).Msg("Admin token issued")
	respondSuccess(w, r, TokenResponse{Token: token, Role: auth.RoleAdmin, ExpiresAt: expiresAt})
}
