// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/backhaul/internal/auth"
	"github.com/tomtom215/backhaul/internal/authz"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware

	// authn and authz are nil when authentication is disabled.
	authn *auth.Middleware
	authz *authz.Middleware
}

// NewRouter creates a router. authn and authzMW are either both set or both
// nil; with nil, every /api/v1 route is open.
func NewRouter(handler *Handler, authn *auth.Middleware, authzMW *authz.Middleware) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(NewChiMiddlewareConfig(&handler.cfg.Security)),
		authn:         authn,
		authz:         authzMW,
	}
}

// Setup builds the HTTP handler.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(Instrument)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(router.chiMiddleware.RateLimit()).Post("/auth/token", h.IssueToken)

		r.Group(func(r chi.Router) {
			if router.authn != nil && router.authz != nil {
				r.Use(router.authn.Authenticate)
				r.Use(router.authz.AuthorizeRequest)
			}

			r.Route("/backups", func(r chi.Router) {
				r.With(router.chiMiddleware.RateLimit()).Post("/upload", h.UploadBackup)
				r.Get("/", h.ListBackups)
				r.Get("/download/{id}", h.DownloadBackup)
				r.Get("/settings", h.GetBackupSettings)
				r.Put("/settings", h.UpdateBackupSettings)
			})

			r.Route("/cloud", func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimit())
				r.Get("/status", h.CloudStatusHandler)
				r.Get("/files", h.CloudListFiles)
				r.Get("/backups", h.CloudListBackups)
				r.Get("/search", h.CloudSearch)
				r.Get("/quota", h.CloudQuota)
				r.Post("/sync/{file}", h.CloudSync)
				r.Post("/pull/*", h.CloudPull)
				r.Delete("/files/*", h.CloudDelete)
			})

			r.Get("/settings/runtime", h.GetRuntimeSettings)
			r.Get("/analytics/batches", h.ListMetricsBatches)
			r.Get("/ws", h.WebSocket)
		})
	})

	return r
}
