// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/actionprobe/internal/log"
)

// EnvPrefix is the prefix of every environment variable read by the Loader.
const EnvPrefix = "ACTIONPROBE_"

func isSensitiveEnv(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") || strings.Contains(k, "password") || strings.Contains(k, "dsn")
}

// lookup reads key, treating an empty value as unset, and records it as consumed.
func (l *Loader) lookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	v, ok := l.lookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	logger := xglog.WithComponent("config")
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitiveEnv(key) {
		ev = ev.Str("value", MaskSecret(v))
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v, true
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = i
}

func (l *Loader) envFloat(key string, dst *float64) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = f
}

func (l *Loader) envBool(key string, dst *bool) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = b
}

// envDuration accepts Go duration strings; a bare integer is read as milliseconds.
func (l *Loader) envDuration(key string, dst *time.Duration) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
			warnInvalid(key, v, fmt.Errorf("%d ms overflows a duration", ms))
			return
		}
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = d
}

func warnInvalid(key, value string, err error) {
	logger := xglog.WithComponent("config")
	logEnvFallback(logger, key, value, err)
}

func logEnvFallback(logger zerolog.Logger, key, value string, err error) {
	if isSensitiveEnv(key) {
		value = MaskSecret(value)
	}
	logger.Warn().
		Err(err).
		Str("event", "config.env_invalid").
		Str("key", key).
		Str("value", value).
		Msg("invalid environment value, keeping previous setting")
}

// mergeEnvConfig applies ACTIONPROBE_* overrides (highest priority).
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.envString(EnvPrefix+"LOG_LEVEL", &cfg.LogLevel)
	l.envString(EnvPrefix+"CITY_ID", &cfg.CityID)

	l.envString(EnvPrefix+"API_BASE_URL", &cfg.API.BaseURL)
	l.envString(EnvPrefix+"API_KEY", &cfg.API.Key)
	l.envString(EnvPrefix+"API_ORIGIN", &cfg.API.Origin)
	l.envString(EnvPrefix+"API_REFERER", &cfg.API.Referer)
	l.envString(EnvPrefix+"SITE_URL", &cfg.API.SiteURL)
	l.envDuration(EnvPrefix+"API_TIMEOUT", &cfg.API.Timeout)
	l.envFloat(EnvPrefix+"API_MAX_RPS", &cfg.API.MaxRPS)
	l.envInt(EnvPrefix+"API_BURST", &cfg.API.Burst)

	l.envDuration(EnvPrefix+"PROBE_INTERVAL", &cfg.Probe.Interval)
	l.envDuration(EnvPrefix+"CACHE_LISTING_TTL", &cfg.Cache.ListingTTL)
	l.envDuration(EnvPrefix+"CACHE_DETAIL_TTL", &cfg.Cache.DetailTTL)

	l.envString(EnvPrefix+"STORAGE_BACKEND", &cfg.Storage.Backend)
	l.envString(EnvPrefix+"STORAGE_PATH", &cfg.Storage.Path)
	l.envString(EnvPrefix+"REDIS_ADDR", &cfg.Storage.Redis.Addr)
	l.envString(EnvPrefix+"REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	l.envInt(EnvPrefix+"REDIS_DB", &cfg.Storage.Redis.DB)
	l.envString(EnvPrefix+"POSTGRES_DSN", &cfg.Storage.PostgresDSN)

	l.envString(EnvPrefix+"LISTEN", &cfg.Server.ListenAddr)
	l.envInt(EnvPrefix+"RATE_LIMIT", &cfg.Server.RateLimit)
	l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	l.envString(EnvPrefix+"MQTT_BROKER", &cfg.Notify.MQTTBroker)
	l.envString(EnvPrefix+"MQTT_TOPIC_PREFIX", &cfg.Notify.TopicPrefix)

	l.envBool(EnvPrefix+"OTEL_ENABLED", &cfg.Telemetry.Enabled)
	l.envString(EnvPrefix+"OTEL_EXPORTER", &cfg.Telemetry.Exporter)
	l.envString(EnvPrefix+"OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	l.envFloat(EnvPrefix+"OTEL_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)
}
