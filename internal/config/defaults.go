// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/actionprobe/internal/storage"
)

// Default values.
const (
	DefaultBaseURL         = "https://api-alfa-test.kassir.ru"
	DefaultOrigin          = "https://alfa-test.kassir.ru"
	DefaultSiteURL         = "https://www.kassir.ru"
	DefaultCityID          = "52"
	DefaultStoragePath     = "./data/actionprobe.db"
	DefaultListenAddr      = ":3005"
	DefaultRateLimit       = 600
	DefaultTopicPrefix     = "actionprobe"
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultShutdownTimeout = 10 * time.Second
)

// Defaults returns the configuration used when neither file nor ENV set a value.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		CityID:   DefaultCityID,
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Origin:  DefaultOrigin,
			Referer: DefaultOrigin + "/",
			SiteURL: DefaultSiteURL,
			Timeout: 30 * time.Second,
			Burst:   1,
		},
		Probe: ProbeConfig{Interval: time.Second},
		Cache: CacheConfig{
			ListingTTL: 24 * time.Hour,
			DetailTTL:  time.Hour,
		},
		Storage: StorageConfig{
			Backend: storage.BackendSQLite,
			Path:    DefaultStoragePath,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			RateLimit:       DefaultRateLimit,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Notify: NotifyConfig{TopicPrefix: DefaultTopicPrefix},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     DefaultOTLPEndpoint,
			SamplingRate: 1.0,
		},
	}
}
