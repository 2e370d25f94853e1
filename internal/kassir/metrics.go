// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kassir

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "kassir_requests_total",
		Help:      "Calls to the ticketing API by operation and status",
	}, []string{"op", "status"}) // status=HTTP code or "error"

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "actionprobe",
		Name:      "kassir_request_duration_seconds",
		Help:      "Latency of ticketing API calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})
)

func observe(op string, status int, started time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	requestsTotal.WithLabelValues(op, label).Inc()
	requestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
