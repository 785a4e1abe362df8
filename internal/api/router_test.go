// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/backhaul/internal/auth"
	"github.com/tomtom215/backhaul/internal/authz"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// securedRouter returns a router with authentication enabled and the JWT manager.
func securedRouter(t *testing.T) (http.Handler, *auth.JWTManager) {
	t.Helper()
	f := newFixture(t, newFakeCloud())
	f.cfg.Security.JWTSecret = testSecret
	f.cfg.Security.TokenTTL = time.Hour

	jwtManager, err := auth.NewJWTManager(&f.cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	creds, err := auth.NewCredentialChecker("admin", string(hash))
	if err != nil {
		t.Fatal(err)
	}
	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{})
	if err != nil {
		t.Fatal(err)
	}

	f.handler.jwt = jwtManager
	f.handler.credentials = creds
	return NewRouter(f.handler, auth.NewMiddleware(jwtManager), authz.NewMiddleware(enforcer)).Setup(), jwtManager
}

func withToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRouter_AuthDisabledIsOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := serve(f.router(), httptest.NewRequest(http.MethodGet, "/api/v1/backups/settings", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
	rec = serve(f.router(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{}`)))
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != CodeAuthNotConfigured {
		t.Errorf("token endpoint without auth = %d", rec.Code)
	}
}

func TestRouter_Authorization(t *testing.T) {
	t.Parallel()
	router, jwtManager := securedRouter(t)

	viewer, err := jwtManager.GenerateToken("bob", auth.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}
	admin, err := jwtManager.GenerateToken("alice", auth.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"no token", http.MethodGet, "/api/v1/backups/settings", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/backups/settings", "garbage", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/backups/settings", viewer, http.StatusOK},
		{"viewer cannot write", http.MethodPut, "/api/v1/backups/settings", viewer, http.StatusForbidden},
		{"viewer cannot delete", http.MethodDelete, "/api/v1/cloud/files/x", viewer, http.StatusForbidden},
		{"admin writes", http.MethodPut, "/api/v1/backups/settings", admin, http.StatusOK},
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.method == http.MethodPut {
				body = strings.NewReader(`{"retention_days": 10}`)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.token != "" {
				withToken(req, tt.token)
			}
			rec := serve(router, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRouter_IssueToken(t *testing.T) {
	t.Parallel()
	router, jwtManager := securedRouter(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(router, req)
	}

	if rec := post(`{"username":"admin","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", rec.Code)
	}
	if rec := post(`{"username":"admin"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing password = %d, want 400", rec.Code)
	}

	rec := post(`{"username":"admin","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data TokenResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	claims, err := jwtManager.ValidateToken(resp.Data.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Role != auth.RoleAdmin || claims.Username != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.TokenCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("token cookie = %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil)
	req.AddCookie(cookie)
	if rec := serve(router, req); rec.Code != http.StatusOK {
		t.Errorf("cookie auth = %d, want 200", rec.Code)
	}
}

func TestRouter_RequestID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups/download/missing", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := serve(f.router(), req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if resp := decodeResponse(t, rec); resp.Metadata.RequestID != "req-123" {
		t.Errorf("metadata.request_id = %q", resp.Metadata.RequestID)
	}

	rec = serve(f.router(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	router := f.router()

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/backups/upload", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return serve(router, req)
	}

	if got := preflight("https://app.example").Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allowed origin header = %q", got)
	}
	if got := preflight("https://evil.example").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.cfg.Security.RateLimitRequests = 2
	f.cfg.Security.RateLimitWindow = time.Minute
	router := f.router()

	var last int
	for i := 0; i < 3; i++ {
		rec := serve(router, uploadRequest(t, "", "", ""))
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third upload = %d, want 429", last)
	}

	// Read routes outside the limited groups are unaffected.
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("list = %d", rec.Code)
	}
}
