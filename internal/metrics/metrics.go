// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package metrics holds the Prometheus instruments for Backhaul.
//
// Instruments are registered on the default registry through promauto and
// exposed by the /metrics route. Callers use the Record* helpers rather than
// touching the vectors directly so that label values stay consistent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_restore_total",
			Help: "Total number of restore runs by artifact kind and outcome",
		},
		[]string{"kind", "status"},
	)

	RestoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backhaul_restore_duration_seconds",
			Help:    "Duration of restore runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"kind"},
	)

	BundleMembersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_bundle_members_total",
			Help: "Bundle members seen during extraction by kind and status",
		},
		[]string{"kind", "status"}, // status: processed, skipped, failed, not_attempted
	)

	StagedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backhaul_staged_bytes_total",
			Help: "Total bytes written to the staging directory",
		},
	)

	// Cloud Sync Metrics
	CloudOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_cloud_operations_total",
			Help: "Remote folder operations by operation and outcome",
		},
		[]string{"op", "status"},
	)

	CloudOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backhaul_cloud_operation_duration_seconds",
			Help:    "Duration of remote folder operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CloudDedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backhaul_cloud_dedup_hits_total",
			Help: "Sync requests satisfied by an existing remote file with the same name",
		},
	)

	// Event Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_events_published_total",
			Help: "Events published on the bus by topic and outcome",
		},
		[]string{"topic", "status"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backhaul_websocket_clients",
			Help: "Currently connected websocket event stream clients",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backhaul_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// RecordRestore records the outcome of one restore run.
func RecordRestore(kind string, duration time.Duration, err error) {
	RestoresTotal.WithLabelValues(kind, statusLabel(err)).Inc()
	RestoreDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBundleMember records the handling of one bundle member.
func RecordBundleMember(kind, status string) {
	if kind == "" {
		kind = "unrecognized"
	}
	BundleMembersTotal.WithLabelValues(kind, status).Inc()
}

// RecordStagedBytes adds n bytes to the staged byte counter.
func RecordStagedBytes(n int64) {
	if n > 0 {
		StagedBytesTotal.Add(float64(n))
	}
}

// RecordCloudOperation records one remote folder operation.
func RecordCloudOperation(op string, duration time.Duration, err error) {
	CloudOperationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	CloudOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCloudDedupHit records a sync that found an existing remote file.
func RecordCloudDedupHit() {
	CloudDedupHits.Inc()
}

// RecordEventPublished records a publish attempt on the event bus.
func RecordEventPublished(topic string, err error) {
	EventsPublishedTotal.WithLabelValues(topic, statusLabel(err)).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
