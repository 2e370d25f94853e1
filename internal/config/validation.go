// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/storage"
	"github.com/ManuGH/actionprobe/internal/validate"
)

var backends = []string{
	storage.BackendMemory,
	storage.BackendSQLite,
	storage.BackendBadger,
	storage.BackendRedis,
	storage.BackendPostgres,
}

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("logLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}
	v.NotEmpty("cityId", cfg.CityID)

	v.URL("api.baseUrl", cfg.API.BaseURL, []string{"http", "https"})
	if cfg.API.SiteURL != "" {
		v.URL("api.siteUrl", cfg.API.SiteURL, []string{"http", "https"})
	}
	v.PositiveDuration("api.timeout", cfg.API.Timeout)
	v.FloatRange("api.maxRps", cfg.API.MaxRPS, 0, 1000)
	v.Range("api.burst", cfg.API.Burst, 1, 1000)

	v.NonNegativeDuration("probe.interval", cfg.Probe.Interval)
	if cfg.Probe.Interval > probe.MaxInterval {
		v.AddError("probe.interval", "must not exceed "+probe.MaxInterval.String(), cfg.Probe.Interval)
	}
	v.PositiveDuration("cache.listingTtl", cfg.Cache.ListingTTL)
	v.PositiveDuration("cache.detailTtl", cfg.Cache.DetailTTL)

	v.OneOf("storage.backend", cfg.Storage.Backend, backends)
	switch cfg.Storage.Backend {
	case storage.BackendSQLite:
		v.NotEmpty("storage.path", cfg.Storage.Path)
	case storage.BackendRedis:
		v.NotEmpty("storage.redis.addr", cfg.Storage.Redis.Addr)
		v.Range("storage.redis.db", cfg.Storage.Redis.DB, 0, 15)
	case storage.BackendPostgres:
		v.NotEmpty("storage.postgresDsn", cfg.Storage.PostgresDSN)
	}

	v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
	v.NonNegative("server.rateLimit", cfg.Server.RateLimit)
	v.PositiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)

	if cfg.Notify.MQTTBroker != "" {
		v.URL("notify.mqttBroker", cfg.Notify.MQTTBroker, []string{"tcp", "ssl", "ws", "wss", "mqtt", "mqtts"})
		v.NoneOf("notify.topicPrefix", cfg.Notify.TopicPrefix, "#", "+")
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
