// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/actionprobe/internal/probe"
)

// Pinger is implemented by storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker reports the cache backend unhealthy when it cannot be reached.
type StorageChecker struct {
	backend string
	pinger  Pinger
}

// NewStorageChecker creates a checker for the named backend.
func NewStorageChecker(backend string, p Pinger) *StorageChecker {
	return &StorageChecker{backend: backend, pinger: p}
}

func (c *StorageChecker) Name() string { return "storage" }

func (c *StorageChecker) Check(ctx context.Context) CheckResult {
	if err := c.pinger.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: c.backend,
			Error:   err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: c.backend}
}

// ProbeChecker reports the most recent probe run. A failed run degrades
// the service; it never makes it unready.
type ProbeChecker struct {
	snapshot func() probe.Snapshot
}

// NewProbeChecker creates a checker reading snapshots from fn.
func NewProbeChecker(fn func() probe.Snapshot) *ProbeChecker {
	return &ProbeChecker{snapshot: fn}
}

func (c *ProbeChecker) Name() string { return "probe" }

func (c *ProbeChecker) Check(_ context.Context) CheckResult {
	s := c.snapshot()
	msg := fmt.Sprintf("%s %d/%d", s.Status, s.Cursor, s.Total)
	if s.Status == probe.StatusFailed {
		return CheckResult{Status: StatusDegraded, Message: msg, Error: s.Err}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
