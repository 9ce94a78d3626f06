// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	targetedRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "ingestion",
		Name:      "targeted_runs_total",
		Help:      "Targeted ingestion runs by asset type and outcome.",
	}, []string{"asset_type", "outcome"})

	sweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "ingestion",
		Name:      "sweep_items_total",
		Help:      "Pending assets handled by sweeps, by outcome.",
	}, []string{"outcome"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "academic",
		Subsystem: "ingestion",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of a full sweep.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
)
