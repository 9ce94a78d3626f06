// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "gate",
		Name:      "acquisitions_total",
		Help:      "Gate admission attempts by track and outcome.",
	}, []string{"track", "outcome"})

	forcedReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "gate",
		Name:      "forced_releases_total",
		Help:      "Leases reclaimed by the supervisor after exceeding max hold.",
	})

	holdSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "academic",
		Subsystem: "gate",
		Name:      "hold_seconds",
		Help:      "How long the gate was held before release.",
		Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 3600, 7200},
	})

	occupancyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "academic",
		Subsystem: "gate",
		Name:      "occupied",
		Help:      "1 while the gate is held or tripped, 0 when idle.",
	})
)
