// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "probe_items_total",
		Help:      "Probed items by outcome",
	}, []string{"outcome"}) // outcome=cached|ok|remote_error|discarded

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "probe_runs_total",
		Help:      "Finished probe runs by final status",
	}, []string{"status"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "actionprobe",
		Name:      "probe_runs_active",
		Help:      "1 while a probe run is in progress",
	})

	itemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "actionprobe",
		Name:      "probe_item_duration_seconds",
		Help:      "Time spent on one item, excluding the pacing wait",
		Buckets:   prometheus.DefBuckets,
	})
)
