/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry centralizes prometheus metrics and OpenTelemetry
// tracing for the process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fetch pipeline
	FetchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "fetch_runs_total",
		Help:      "Feed fetch runs by outcome.",
	}, []string{"outcome"})

	PostsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "posts_fetched_total",
		Help:      "New blog posts accepted from the feed.",
	})

	MessagesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "messages_extracted_total",
		Help:      "Messages extracted from blog posts.",
	})

	ImagesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "images_generated_total",
		Help:      "Image generation attempts by outcome.",
	}, []string{"outcome"})

	// Scheduling
	MessagesScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "messages_scheduled_total",
		Help:      "Messages assigned a posting slot.",
	})

	BatchesDeferredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "batches_deferred_total",
		Help:      "Source batches deferred by the scheduling horizon.",
	})

	CalendarExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "calendar_exhausted_total",
		Help:      "Scheduling runs aborted by the bounded calendar scan.",
	})

	// Publishing
	PublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "publishes_total",
		Help:      "Publish attempts by destination and outcome.",
	}, []string{"destination", "outcome"})

	DueChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "due_checks_total",
		Help:      "Due-message selections by result (due, none_due, error).",
	}, []string{"result"})

	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "munin",
		Name:      "publish_duration_seconds",
		Help:      "Duration of destination publish calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"destination"})

	// Run lock
	RunLockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "run_lock_acquisitions_total",
		Help:      "Run lock acquisition attempts by outcome.",
	}, []string{"outcome"})

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "munin",
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request duration by method, endpoint, and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "munin",
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	// Daemon
	CronTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "munin",
		Name:      "cron_ticks_total",
		Help:      "Cron trigger firings by job.",
	}, []string{"job"})

	UpdateAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "munin",
		Name:      "update_available",
		Help:      "1 when a newer release is available on GitHub.",
	})
)

// Handler exposes the prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
