// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "academic",
		Subsystem: "reasoning",
		Name:      "node_duration_seconds",
		Help:      "Wall time of one workflow node.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"node", "outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "reasoning",
		Name:      "runs_total",
		Help:      "Reasoning runs by final status.",
	}, []string{"status"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "academic",
		Subsystem: "reasoning",
		Name:      "refetch_total",
		Help:      "Evaluator-requested research retries.",
	})
)
