// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the session, listing, probe and cache operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/actionprobe/internal/api/middleware"
	"github.com/ManuGH/actionprobe/internal/app"
	"github.com/ManuGH/actionprobe/internal/health"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/telemetry"
)

const (
	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 5 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	ListenAddr      string
	RateLimit       int // requests per minute per client IP
	ShutdownTimeout time.Duration
	// SiteURL is the base of the action links in listing responses.
	SiteURL string
	Tracing bool
}

// Server serves the API of one Service.
type Server struct {
	cfg    Config
	svc    *app.Service
	health *health.Manager
	router *chi.Mux
	logger zerolog.Logger
}

// New creates a Server and registers its routes.
func New(cfg Config, svc *app.Service, hm *health.Manager) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		health: hm,
		logger: xglog.WithComponent("api"),
	}
	stack := middleware.StackConfig{EnableMetrics: true, EnableLogging: true}
	if cfg.Tracing {
		stack.TracingService = telemetry.ServiceName
	}
	s.router = middleware.NewRouter(stack)
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIRateLimit(s.cfg.RateLimit))

		r.Get("/session", s.handleGetSession)
		r.Put("/session/city", s.handleSetCity)

		r.Get("/listing", s.handleGetListing)
		r.Post("/listing", s.handleFetchListing)
		r.Put("/filter", s.handleSetFilter)

		r.Get("/probe", s.handleGetProbe)
		r.Post("/probe", s.handleStartProbe)
		r.Delete("/probe", s.handleCancelProbe)

		r.Get("/cache", s.handleListCache)
		r.Delete("/cache", s.handleClearCache)
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(xglog.FieldEvent, "server.started").
			Str("addr", ln.Addr().String()).
			Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info().Str(xglog.FieldEvent, "server.shutdown").Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
