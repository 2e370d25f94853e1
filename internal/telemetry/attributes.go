// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the service spans.
const (
	CityIDKey       = "actionprobe.city_id"
	ActionCountKey  = "actionprobe.action_count"
	CachedKey       = "actionprobe.cached"
	ForceRefreshKey = "actionprobe.force_refresh"

	RunIDKey     = "probe.run_id"
	RunStatusKey = "probe.status"
	RunTotalKey  = "probe.total"
	IntervalKey  = "probe.interval_ms"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ListingAttributes describes a listing fetch.
func ListingAttributes(cityID string, count int, cached, force bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CityIDKey, cityID),
		attribute.Int(ActionCountKey, count),
		attribute.Bool(CachedKey, cached),
		attribute.Bool(ForceRefreshKey, force),
	}
}

// RunAttributes describes a probe run. Empty ids are omitted.
func RunAttributes(runID, cityID, status string, total int, intervalMS int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if cityID != "" {
		attrs = append(attrs, attribute.String(CityIDKey, cityID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(RunStatusKey, status))
	}
	return append(attrs,
		attribute.Int(RunTotalKey, total),
		attribute.Int64(IntervalKey, intervalMS),
	)
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
