// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/backhaul/internal/auth"
)

func TestAuthorizeRequest(t *testing.T) {
	handler := NewMiddleware(setupEnforcer(t)).AuthorizeRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		claims     *auth.Claims
		method     string
		path       string
		wantStatus int
	}{
		{"no claims", nil, http.MethodGet, "/api/v1/cloud/files", http.StatusForbidden},
		{"viewer read", &auth.Claims{Role: auth.RoleViewer}, http.MethodGet, "/api/v1/cloud/files", http.StatusNoContent},
		{"viewer upload", &auth.Claims{Role: auth.RoleViewer}, http.MethodPost, "/api/v1/backups/upload", http.StatusForbidden},
		{"admin upload", &auth.Claims{Role: auth.RoleAdmin}, http.MethodPost, "/api/v1/backups/upload", http.StatusNoContent},
		{"admin delete", &auth.Claims{Role: auth.RoleAdmin}, http.MethodDelete, "/api/v1/cloud/files/x", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.claims != nil {
				req = req.WithContext(auth.ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
