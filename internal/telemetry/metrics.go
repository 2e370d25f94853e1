// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/ManuGH/actionprobe/internal/probe"
)

const meterName = "actionprobe/probe"

// MeterProvider exposes OTel instruments through a Prometheus registry.
type MeterProvider struct {
	mp *sdkmetric.MeterProvider
}

// NewMeterProvider installs a global meter provider whose instruments are
// collected by reg next to the client_golang metrics.
func NewMeterProvider(reg prometheus.Registerer, version string) (*MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(ServiceName),
		semconv.ServiceVersionKey.String(version),
	)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	return &MeterProvider{mp: mp}, nil
}

// Shutdown stops the provider.
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return p.mp.Shutdown(ctx)
}

// RunRecorder is a probe.Reporter counting finished runs and their results.
// Instruments are looked up on every run so a provider installed later is
// picked up.
type RunRecorder struct {
	mu      sync.Mutex
	lastRun string
}

// NewRunRecorder returns a recorder bound to the global meter provider.
func NewRunRecorder() *RunRecorder {
	return &RunRecorder{}
}

// UpdateProbeSnapshot implements probe.Reporter. Only the first terminal
// snapshot of a run is counted.
func (r *RunRecorder) UpdateProbeSnapshot(s probe.Snapshot) {
	if s.RunID == "" || !s.Status.Terminal() {
		return
	}
	r.mu.Lock()
	if s.RunID == r.lastRun {
		r.mu.Unlock()
		return
	}
	r.lastRun = s.RunID
	r.mu.Unlock()

	ctx := context.Background()
	meter := otel.GetMeterProvider().Meter(meterName)

	runs, err := meter.Int64Counter("actionprobe.probe.runs",
		metric.WithDescription("Finished probe runs by final status"))
	if err == nil {
		runs.Add(ctx, 1, metric.WithAttributes(attribute.String(RunStatusKey, string(s.Status))))
	}

	results, err := meter.Int64Counter("actionprobe.probe.results",
		metric.WithDescription("Recorded probe results by status code and source"))
	if err != nil {
		return
	}
	for _, res := range s.Results {
		results.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status_code", strconv.Itoa(res.StatusCode)),
			attribute.Bool(CachedKey, res.Cached),
		))
	}
}
