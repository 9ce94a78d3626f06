// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides HTTP and event-stream metrics for the
// orchestrator.
//
// # Description
//
// Metrics include:
//   - Request counters (by method, route template, status class)
//   - Request latency histograms
//   - Connected websocket stream clients
//   - Workflow events dropped for slow stream clients
//
// All collectors live in the default Prometheus registry under the
// "academic" namespace and are served by /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "academic"
	httpSubsystem    = "http"
	streamSubsystem  = "stream"
)

var (
	// RequestsTotal counts requests. Labels: method, route, status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: httpSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	// RequestDuration measures handler latency. Reasoning and ingestion
	// requests run for minutes, so buckets reach well past an hour.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: httpSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route template.",
		Buckets:   []float64{.01, .05, .25, 1, 5, 30, 120, 600, 1800, 3600},
	}, []string{"method", "route"})

	// StreamClients is the number of connected websocket clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: streamSubsystem,
		Name:      "clients",
		Help:      "Connected workflow event stream clients.",
	})

	// StreamDropped counts events not delivered because a client's buffer
	// was full.
	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: streamSubsystem,
		Name:      "dropped_events_total",
		Help:      "Workflow events dropped for slow stream clients.",
	})
)

// =============================================================================
// Middleware
// =============================================================================

// Middleware records RequestsTotal and RequestDuration for every request.
//
// The route label is the matched template (/v1/assets/:id/outline), never
// the raw path, so label cardinality stays bounded. Unmatched requests are
// labeled "unmatched".
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
