// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package app wires the cache, the remote client, the session and the probe
// pipeline into the operations exposed by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/actionprobe/internal/cache"
	"github.com/ManuGH/actionprobe/internal/clock"
	"github.com/ManuGH/actionprobe/internal/domain/action"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/session"
	"github.com/ManuGH/actionprobe/internal/telemetry"
)

// ErrNoListing is returned by StartProbe before a listing was loaded.
var ErrNoListing = errors.New("app: no listing loaded for the current city")

// Remote is the ticketing API as seen by the service.
type Remote interface {
	ListActions(ctx context.Context, apiKey, cityID string) ([]action.Action, error)
	probe.DetailFetcher
}

// Config holds the per-process settings of the service.
type Config struct {
	APIKey   string
	Interval time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithReporters adds progress reporters next to the session.
func WithReporters(r ...probe.Reporter) Option {
	return func(s *Service) { s.reporters = append(s.reporters, r...) }
}

// Service is safe for concurrent use.
type Service struct {
	cfg       Config
	store     *cache.Store
	remote    Remote
	session   *session.State
	pipeline  *probe.Pipeline
	reporters []probe.Reporter
	clock     clock.Clock
	logger    zerolog.Logger
	tracer    trace.Tracer

	listings singleflight.Group

	// serialises SetCity against StartProbe
	runMu sync.Mutex

	// runs outlive the request that started them
	base     context.Context
	shutdown context.CancelFunc
}

// New creates a Service. Probe progress is reported to the session and to
// any reporters passed with WithReporters.
func New(store *cache.Store, remote Remote, sess *session.State, cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		store:   store,
		remote:  remote,
		session: sess,
		clock:   clock.NewSystem(),
		logger:  xglog.WithComponent("app"),
		tracer:  telemetry.Tracer("actionprobe/app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.shutdown = context.WithCancel(context.Background())

	reporters := append([]probe.Reporter{sess}, s.reporters...)
	s.pipeline = probe.New(store, remote,
		probe.WithReporter(probe.MultiReporter(reporters...)),
		probe.WithClock(s.clock),
	)
	return s
}

// Session returns the session the service reports into.
func (s *Service) Session() *session.State { return s.session }

// FetchListing returns the listing of cityID, from the cache when a valid
// entry exists and force is false, otherwise from the remote API. An empty
// cityID means the session city. The result is installed into the session
// when cityID is still the session city. Concurrent calls for the same city
// share one remote request.
func (s *Service) FetchListing(ctx context.Context, cityID string, force bool) (session.Listing, error) {
	if cityID == "" {
		cityID = s.session.CityID()
	}
	if err := action.ValidateID("city id", cityID); err != nil {
		return session.Listing{}, err
	}

	key := fmt.Sprintf("%s|%t", cityID, force)
	v, err, shared := s.listings.Do(key, func() (any, error) {
		return s.loadListing(ctx, cityID, force)
	})
	if err != nil {
		return session.Listing{}, err
	}
	l := v.(session.Listing)
	if shared {
		l.Actions = action.CloneAll(l.Actions)
	}

	if s.session.CityID() == cityID {
		if err := s.session.SetListing(l); err != nil && !errors.Is(err, session.ErrCityMismatch) {
			return session.Listing{}, err
		}
	}
	return l, nil
}

func (s *Service) loadListing(ctx context.Context, cityID string, force bool) (l session.Listing, err error) {
	ctx, span := s.tracer.Start(ctx, "app.FetchListing")
	defer func() {
		span.SetAttributes(telemetry.ListingAttributes(cityID, len(l.Actions), l.Cached, force)...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := xglog.WithContext(ctx, s.logger).With().Str(xglog.FieldCityID, cityID).Logger()

	if !force {
		entry, ok, err := s.store.Listing(ctx, cityID)
		if err != nil {
			return session.Listing{}, fmt.Errorf("read cached listing: %w", err)
		}
		if ok {
			listingFetches.WithLabelValues(sourceCache).Inc()
			logger.Debug().
				Str(xglog.FieldEvent, "listing.fetch").
				Bool("cached", true).
				Int("actions", len(entry.Data)).
				Msg("listing served from cache")
			return session.Listing{
				CityID:   cityID,
				Actions:  entry.Data,
				StoredAt: entry.StoredAt(),
				Cached:   true,
			}, nil
		}
	}

	actions, err := s.remote.ListActions(ctx, s.cfg.APIKey, cityID)
	if err != nil {
		listingFetches.WithLabelValues(sourceError).Inc()
		logger.Warn().Err(err).Str(xglog.FieldEvent, "listing.fetch").Msg("listing request failed")
		return session.Listing{}, err
	}
	if actions == nil {
		actions = []action.Action{}
	}
	if err := s.store.PutListing(ctx, cityID, actions); err != nil {
		return session.Listing{}, fmt.Errorf("cache listing: %w", err)
	}
	listingFetches.WithLabelValues(sourceRemote).Inc()
	logger.Info().
		Str(xglog.FieldEvent, "listing.fetch").
		Bool("cached", false).
		Int("actions", len(actions)).
		Msg("listing fetched")

	return session.Listing{
		CityID:   cityID,
		Actions:  actions,
		StoredAt: time.UnixMilli(s.clock.Now().UnixMilli()).UTC(),
	}, nil
}

// SetCity switches the session city. It is refused while a probe runs.
func (s *Service) SetCity(cityID string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.pipeline.Snapshot().Status == probe.StatusRunning {
		return probe.ErrAlreadyRunning
	}
	return s.session.SetCity(cityID)
}

// StartProbe probes the visible (filtered) actions of the session listing.
// A nil interval uses the configured one. The run is bound to the service
// lifetime, not to ctx.
func (s *Service) StartProbe(ctx context.Context, interval *time.Duration) (probe.Snapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cityID, items, ok := s.session.ProbeTarget()
	if !ok {
		return probe.Snapshot{}, ErrNoListing
	}
	iv := s.cfg.Interval
	if interval != nil {
		iv = *interval
	}

	_, span := s.tracer.Start(ctx, "app.StartProbe")
	defer span.End()

	snap, err := s.pipeline.Start(s.base, probe.Batch{
		CityID:   cityID,
		APIKey:   s.cfg.APIKey,
		Items:    items,
		Interval: iv,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return probe.Snapshot{}, err
	}
	span.SetAttributes(telemetry.RunAttributes(snap.RunID, snap.CityID, string(snap.Status), snap.Total, snap.IntervalMs)...)
	return snap, nil
}

// StopProbe cancels the active run. It reports whether a run was signalled.
func (s *Service) StopProbe() bool {
	return s.pipeline.Cancel()
}

// Probe returns the current run snapshot.
func (s *Service) Probe() probe.Snapshot {
	return s.pipeline.Snapshot()
}

// WaitProbe blocks until the active run finishes or ctx is done.
func (s *Service) WaitProbe(ctx context.Context) (probe.Snapshot, error) {
	return s.pipeline.Wait(ctx)
}

// ClearCache removes cached entries under prefix; "" clears everything.
func (s *Service) ClearCache(ctx context.Context, prefix string) (int, error) {
	n, err := s.store.ClearAll(ctx, prefix)
	if err != nil {
		return n, err
	}
	logger := xglog.WithContext(ctx, s.logger)
	logger.Info().
		Str(xglog.FieldEvent, "cache.clear").
		Str("prefix", prefix).
		Int("removed", n).
		Msg("cache cleared")
	return n, nil
}

// ClearCity drops the cached listing of cityID and all of its details. It
// returns the number of detail entries removed.
func (s *Service) ClearCity(ctx context.Context, cityID string) (int, error) {
	if err := action.ValidateID("city id", cityID); err != nil {
		return 0, err
	}
	if err := s.store.ClearListing(ctx, cityID); err != nil {
		return 0, err
	}
	n, err := s.store.ClearCityDetails(ctx, cityID)
	if err != nil {
		return n, err
	}
	logger := xglog.WithContext(ctx, s.logger)
	logger.Info().
		Str(xglog.FieldEvent, "cache.clear").
		Str(xglog.FieldCityID, cityID).
		Int("removed", n).
		Msg("city cache cleared")
	return n, nil
}

// Listings enumerates the cached listings.
func (s *Service) Listings(ctx context.Context) ([]cache.ListingSummary, error) {
	return s.store.Listings(ctx)
}

// Shutdown cancels the active run and waits for it to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdown()
	_, err := s.pipeline.Wait(ctx)
	return err
}
