// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/actionprobe/internal/app"
	"github.com/ManuGH/actionprobe/internal/cache"
	"github.com/ManuGH/actionprobe/internal/config"
	"github.com/ManuGH/actionprobe/internal/kassir"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/notify"
	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/session"
	"github.com/ManuGH/actionprobe/internal/storage"
	"github.com/ManuGH/actionprobe/internal/telemetry"
)

// runtime is the wired object graph shared by the commands.
type runtime struct {
	backend storage.Storage
	store   *cache.Store
	svc     *app.Service
	mqtt    *notify.MQTTPublisher
}

func newRuntime(ctx context.Context, cfg config.AppConfig, reporters ...probe.Reporter) (*runtime, error) {
	logger := xglog.WithComponent("runtime")

	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rt := &runtime{backend: backend}
	reporters = append(reporters, telemetry.NewRunRecorder())

	client, err := kassir.New(kassir.Options{
		BaseURL:           cfg.API.BaseURL,
		Origin:            cfg.API.Origin,
		Referer:           cfg.API.Referer,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.MaxRPS,
		Burst:             cfg.API.Burst,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("api client: %w", err)
	}

	if cfg.Notify.MQTTBroker != "" {
		pub, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:      cfg.Notify.MQTTBroker,
			ClientID:    fmt.Sprintf("actionprobe-%d", os.Getpid()),
			TopicPrefix: cfg.Notify.TopicPrefix,
			QoS:         1,
		})
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		rt.mqtt = pub
		reporters = append(reporters, pub)
	}

	rt.store = cache.New(backend, cache.WithTTLs(cfg.Cache.ListingTTL, cfg.Cache.DetailTTL))
	rt.svc = app.New(rt.store, client, session.New(cfg.CityID),
		app.Config{APIKey: cfg.API.Key, Interval: cfg.Probe.Interval},
		app.WithReporters(reporters...),
	)

	logger.Debug().
		Str(xglog.FieldEvent, "runtime.ready").
		Str(xglog.FieldBackend, cfg.Storage.Backend).
		Str(xglog.FieldCityID, cfg.CityID).
		Bool("mqtt", rt.mqtt != nil).
		Msg("runtime wired")
	return rt, nil
}

// Close stops any active run and releases the backend and broker connection.
func (r *runtime) Close(ctx context.Context) error {
	err := r.svc.Shutdown(ctx)
	if r.mqtt != nil {
		r.mqtt.Close()
	}
	return errors.Join(err, r.backend.Close())
}

const closeTimeout = 10 * time.Second

// closeRuntime closes rt and reports its error through errp unless errp
// already holds one.
func closeRuntime(ctx context.Context, rt *runtime, errp *error) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil && *errp == nil {
		*errp = err
	}
}
