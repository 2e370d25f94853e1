// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/actionprobe/internal/api"
	"github.com/ManuGH/actionprobe/internal/config"
	"github.com/ManuGH/actionprobe/internal/health"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/telemetry"
	"github.com/ManuGH/actionprobe/internal/version"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				o.cfg.Server.ListenAddr = listen
			}
			return runServe(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, o *rootOptions) error {
	cfg := o.cfg
	logger := xglog.WithComponent("serve")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	mp, err := telemetry.NewMeterProvider(prometheus.DefaultRegisterer, version.Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("meter provider shutdown failed")
		}
	}()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	srv := newServer(cfg, rt)

	holder := config.NewHolder(cfg, o.loader)
	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)

	logger.Info().
		Str(xglog.FieldEvent, "serve.start").
		Str("addr", cfg.Server.ListenAddr).
		Str(xglog.FieldBackend, cfg.Storage.Backend).
		Str("version", version.String()).
		Msg("starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return holder.Watch(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-reloads:
				// only the log level is applied live; everything else needs a restart
				if o.logLevel == "" {
					o.configureLogging(next)
				}
			}
		}
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("runtime close failed")
	}
	logger.Info().Str(xglog.FieldEvent, "serve.stop").Msg("stopped")
	return runErr
}

func newServer(cfg config.AppConfig, rt *runtime) *api.Server {
	hm := health.NewManager(version.Version, nil)
	hm.RegisterChecker(health.NewStorageChecker(cfg.Storage.Backend, rt.backend))
	hm.RegisterChecker(health.NewProbeChecker(rt.svc.Probe))

	return api.New(api.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		RateLimit:       cfg.Server.RateLimit,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SiteURL:         cfg.API.SiteURL,
		Tracing:         cfg.Telemetry.Enabled,
	}, rt.svc, hm)
}
