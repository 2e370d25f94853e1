// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/actionprobe/internal/clock"
	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/storage"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestManager_Health_Uptime(t *testing.T) {
	clk := clock.NewManual(t0)
	m := NewManager("v1.0.0", clk)

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Zero(t, resp.Uptime)
	assert.Nil(t, resp.Checks)

	clk.Advance(90 * time.Second)
	assert.Equal(t, int64(90), m.Health(context.Background(), false).Uptime)
}

func TestManager_Health_VerboseAggregates(t *testing.T) {
	m := NewManager("v1", clock.NewFixed(t0))
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	assert.Nil(t, m.Health(context.Background(), false).Checks)

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	assert.Equal(t, StatusUnhealthy, m.Health(context.Background(), true).Status)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1", clock.NewFixed(t0))
	assert.True(t, m.Ready(context.Background()).Ready, "no checkers means ready")

	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("v1", clock.NewFixed(t0))
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Contains(t, body.Checks, "down")
}

func TestServeReady_Unavailable(t *testing.T) {
	m := NewManager("v1", clock.NewFixed(t0))
	m.RegisterChecker(NewStorageChecker("redis", pingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, "connection refused", body.Checks["storage"].Error)
}

func TestStorageChecker_MemoryBackend(t *testing.T) {
	c := NewStorageChecker(storage.BackendMemory, storage.NewMemory())
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "memory", res.Message)
}

func TestCheckerTimeoutIsApplied(t *testing.T) {
	m := NewManager("v1", clock.NewFixed(t0))
	m.timeout = 20 * time.Millisecond
	m.RegisterChecker(NewStorageChecker("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["storage"].Error)
}

func TestProbeChecker(t *testing.T) {
	snap := probe.Snapshot{Status: probe.StatusRunning, Cursor: 1, Total: 3}
	c := NewProbeChecker(func() probe.Snapshot { return snap })

	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "running 1/3", res.Message)

	snap = probe.Snapshot{Status: probe.StatusFailed, Cursor: 2, Total: 3, Err: "storage: put failed"}
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "storage: put failed", res.Error)
}
