// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceCache  = "cache"
	sourceRemote = "remote"
	sourceError  = "error"
)

var listingFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "actionprobe",
	Name:      "listing_fetch_total",
	Help:      "Listing fetches by source (cache, remote, error)",
}, []string{"source"})
