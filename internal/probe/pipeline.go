// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe drives the sequential availability check over a listing.
// Items are processed strictly in input order, one remote call at a time,
// with a cancellable pacing wait after each remote call.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/actionprobe/internal/cache"
	"github.com/ManuGH/actionprobe/internal/clock"
	"github.com/ManuGH/actionprobe/internal/domain/action"
	xglog "github.com/ManuGH/actionprobe/internal/log"
)

// DetailCache is the slice of the Cache Store the pipeline needs.
type DetailCache interface {
	Detail(ctx context.Context, cityID, actionID string) (cache.Entry[action.Detail], bool, error)
	PutDetail(ctx context.Context, cityID string, d action.Detail) error
}

// DetailFetcher performs the remote detail probe.
type DetailFetcher interface {
	GetActionDetail(ctx context.Context, apiKey, cityID, actionID, venueID string) (action.Detail, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithClock overrides the time source used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline owns at most one active run.
type Pipeline struct {
	cache    DetailCache
	fetcher  DetailFetcher
	reporter Reporter
	clock    clock.Clock
	logger   zerolog.Logger

	mu     sync.Mutex
	state  Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Pipeline.
func New(c DetailCache, f DetailFetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:    c,
		fetcher:  f,
		reporter: MultiReporter(),
		clock:    clock.NewSystem(),
		logger:   xglog.WithComponent("probe"),
		state:    idleSnapshot(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot returns a copy of the current run state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Start launches a run over b and returns its initial snapshot. The run stops
// when ctx is cancelled or Cancel is called. Start fails without touching the
// current state when the batch is empty or a run is in progress.
func (p *Pipeline) Start(ctx context.Context, b Batch) (Snapshot, error) {
	if len(b.Items) == 0 {
		return Snapshot{}, ErrEmptyBatch
	}
	if b.Interval < 0 || b.Interval > MaxInterval {
		return Snapshot{}, ErrInvalidInterval
	}
	if err := action.ValidateID("city id", b.CityID); err != nil {
		return Snapshot{}, fmt.Errorf("probe: %w", err)
	}

	p.mu.Lock()
	if p.state.Status == StatusRunning {
		p.mu.Unlock()
		return Snapshot{}, ErrAlreadyRunning
	}
	prev := p.done
	p.mu.Unlock()

	// A finished run may still be delivering its final report.
	if prev != nil {
		<-prev
	}

	p.mu.Lock()
	if p.state.Status == StatusRunning {
		p.mu.Unlock()
		return Snapshot{}, ErrAlreadyRunning
	}

	items := action.CloneAll(b.Items)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.state = Snapshot{
		RunID:      uuid.NewString(),
		Status:     StatusRunning,
		CityID:     b.CityID,
		Items:      ids,
		Total:      len(ids),
		Results:    make(map[string]Result, len(ids)),
		IntervalMs: b.Interval.Milliseconds(),
		StartedAt:  p.clock.Now(),
	}
	p.cancel = cancel
	p.done = done
	initial := p.state.Clone()
	p.mu.Unlock()

	runsActive.Set(1)
	r := &run{
		p:        p,
		id:       initial.RunID,
		cityID:   b.CityID,
		apiKey:   b.APIKey,
		items:    items,
		interval: b.Interval,
		logger: p.logger.With().
			Str(xglog.FieldRunID, initial.RunID).
			Str(xglog.FieldCityID, b.CityID).
			Logger(),
	}
	r.logger.Info().
		Str(xglog.FieldEvent, "probe.start").
		Int("items", len(items)).
		Dur("interval", b.Interval).
		Msg("probe run started")

	go r.execute(runCtx, cancel, done)
	return initial, nil
}

// Cancel requests the active run to stop. It returns immediately and reports
// whether a running run was signalled. Calling it repeatedly is harmless.
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status != StatusRunning || p.cancel == nil {
		return false
	}
	p.cancel()
	return true
}

// Wait blocks until the current run, if any, has finished or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.Snapshot(), ctx.Err()
		}
	}
	return p.Snapshot(), nil
}

// Reset returns a finished pipeline to Idle.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status == StatusRunning {
		return ErrAlreadyRunning
	}
	p.state = idleSnapshot()
	p.cancel = nil
	return nil
}

// update mutates the run state under the lock and returns a copy for reporting.
func (p *Pipeline) update(fn func(*Snapshot)) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
	return p.state.Clone()
}

type run struct {
	p        *Pipeline
	id       string
	cityID   string
	apiKey   string
	items    []action.Action
	interval time.Duration
	logger   zerolog.Logger
}

func (r *run) report(s Snapshot) {
	r.p.reporter.UpdateProbeSnapshot(s)
}

func (r *run) execute(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	status, runErr := StatusFailed, error(nil)
	defer func() {
		if rec := recover(); rec != nil {
			status, runErr = StatusFailed, fmt.Errorf("probe: panic: %v", rec)
			r.logger.Error().
				Str(xglog.FieldEvent, "probe.panic").
				Interface("panic", rec).
				Msg("probe run panicked")
		}
		r.finish(status, runErr)
		cancel()
		close(done)
	}()

	r.report(r.p.Snapshot())
	status, runErr = r.loop(ctx)
}

func (r *run) loop(ctx context.Context) (Status, error) {
	last := len(r.items) - 1
	for i, item := range r.items {
		if ctx.Err() != nil {
			return StatusCancelled, nil
		}

		started := time.Now()
		res, remote, err := r.probeItem(ctx, item)
		if err != nil {
			return StatusFailed, err
		}
		if ctx.Err() != nil {
			if remote {
				itemsTotal.WithLabelValues("discarded").Inc()
			}
			return StatusCancelled, nil
		}
		itemDuration.Observe(time.Since(started).Seconds())

		snap := r.p.update(func(s *Snapshot) {
			s.Results[item.ID] = res
			s.Cursor = i + 1
		})
		r.report(snap)

		if remote && i < last && !sleep(ctx, r.interval) {
			return StatusCancelled, nil
		}
	}
	return StatusCompleted, nil
}

// probeItem resolves one item from the cache or the remote. remote reports
// whether a remote call was made. A non-nil error is a storage failure.
func (r *run) probeItem(ctx context.Context, item action.Action) (Result, bool, error) {
	entry, ok, err := r.p.cache.Detail(ctx, r.cityID, item.ID)
	if err != nil {
		return Result{}, false, err
	}
	if ok {
		itemsTotal.WithLabelValues("cached").Inc()
		available := entry.Data.Available
		r.logger.Debug().
			Str(xglog.FieldEvent, "probe.item").
			Str(xglog.FieldActionID, item.ID).
			Bool("cached", true).
			Msg("detail served from cache")
		return Result{StatusCode: http.StatusOK, ObservedAt: r.p.clock.Now(), Cached: true, Available: &available}, false, nil
	}

	venueID := item.PrimaryVenueID()
	detail, err := r.p.fetcher.GetActionDetail(ctx, r.apiKey, r.cityID, item.ID, venueID)
	if ctx.Err() != nil {
		return Result{}, true, nil
	}
	now := r.p.clock.Now()
	if err != nil {
		code := statusCodeOf(err)
		itemsTotal.WithLabelValues("remote_error").Inc()
		r.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "probe.item").
			Str(xglog.FieldActionID, item.ID).
			Str(xglog.FieldVenueID, venueID).
			Int(xglog.FieldStatusCode, code).
			Msg("detail probe failed")
		return Result{StatusCode: code, ObservedAt: now, Error: err.Error()}, true, nil
	}

	detail.ActionID = item.ID
	if err := r.p.cache.PutDetail(ctx, r.cityID, detail); err != nil {
		return Result{}, true, err
	}
	itemsTotal.WithLabelValues("ok").Inc()
	r.logger.Debug().
		Str(xglog.FieldEvent, "probe.item").
		Str(xglog.FieldActionID, item.ID).
		Str(xglog.FieldVenueID, venueID).
		Bool("available", detail.Available).
		Msg("detail probed")
	available := detail.Available
	return Result{StatusCode: http.StatusOK, ObservedAt: now, Available: &available}, true, nil
}

func (r *run) finish(status Status, err error) {
	snap := r.p.update(func(s *Snapshot) {
		s.Status = status
		s.FinishedAt = r.p.clock.Now()
		if err != nil {
			s.Err = err.Error()
		}
	})
	runsActive.Set(0)
	runsTotal.WithLabelValues(string(status)).Inc()

	var ev *zerolog.Event
	if status == StatusFailed {
		ev = r.logger.Error().Err(err)
	} else {
		ev = r.logger.Info()
	}
	ev.Str(xglog.FieldEvent, "probe.finish").
		Str("status", string(status)).
		Int("cursor", snap.Cursor).
		Int("total", snap.Total).
		Msg("probe run finished")

	r.report(snap)
}

// statusCodeOf extracts a non-2xx HTTP status from err, defaulting to 500.
func statusCodeOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code > 0 && (code < 200 || code > 299) {
			return code
		}
	}
	return http.StatusInternalServerError
}

// sleep waits d unless ctx is cancelled first. It reports whether the full
// interval elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
