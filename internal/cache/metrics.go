// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by namespace and result",
	}, []string{"namespace", "result"}) // result=hit|miss|stale|corrupt

	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "cache_writes_total",
		Help:      "Cache writes by namespace",
	}, []string{"namespace"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "actionprobe",
		Name:      "cache_deletes_total",
		Help:      "Cache entries removed by delete or clear",
	})
)

func namespaceOf(key string) string {
	ns, _ := splitKey(key)
	switch ns {
	case NamespaceListing, NamespaceDetail:
		return ns
	default:
		return "other"
	}
}
