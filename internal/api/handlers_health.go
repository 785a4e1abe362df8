// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string  `json:"status"`
	StagingWritable  bool    `json:"stagingWritable"`
	AnalyticsHealthy *bool   `json:"analyticsHealthy,omitempty"`
	CloudInitialized bool    `json:"cloudInitialized"`
	CloudProvider    string  `json:"cloudProvider"`
	WebSocketClients int     `json:"websocketClients"`
	Uptime           float64 `json:"uptime"`
}

// Health reports process health. Cloud sync being disabled does not degrade it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:           "healthy",
		StagingWritable:  h.stager.EnsureDir() == nil,
		CloudInitialized: h.cloud.IsInitialized(),
		CloudProvider:    h.cloud.Provider(),
		Uptime:           time.Since(h.startTime).Seconds(),
	}
	if !status.StagingWritable {
		status.Status = "degraded"
	}

	if h.analytics != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		ok := h.analytics.Ping(ctx) == nil
		cancel()
		status.AnalyticsHealthy = &ok
		if !ok {
			status.Status = "degraded"
		}
	}
	if h.hub != nil {
		status.WebSocketClients = h.hub.ClientCount()
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, &APIResponse{
		Success:  code == http.StatusOK,
		Data:     status,
		Metadata: newMetadata(r),
	})
}
