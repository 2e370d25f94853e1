// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon and CLI configuration.
// Precedence: ENV > YAML file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/actionprobe/internal/storage"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// AppConfig is the resolved configuration.
type AppConfig struct {
	Version   string
	LogLevel  string
	CityID    string
	API       APIConfig
	Probe     ProbeConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Server    ServerConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the ticketing API client.
type APIConfig struct {
	BaseURL string
	Key     string
	Origin  string
	Referer string
	SiteURL string
	Timeout time.Duration
	MaxRPS  float64
	Burst   int
}

// ProbeConfig configures the probe pipeline.
type ProbeConfig struct {
	Interval time.Duration
}

// CacheConfig holds the per-namespace TTLs.
type CacheConfig struct {
	ListingTTL time.Duration
	DetailTTL  time.Duration
}

// StorageConfig selects the durable backend behind the cache.
type StorageConfig struct {
	Backend     string
	Path        string
	Redis       RedisConfig
	PostgresDSN string
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig configures the HTTP API of the serve command.
type ServerConfig struct {
	ListenAddr      string
	RateLimit       int // requests per minute per client IP
	ShutdownTimeout time.Duration
}

// NotifyConfig configures MQTT progress publishing. An empty broker disables it.
type NotifyConfig struct {
	MQTTBroker  string
	TopicPrefix string
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc|http
	Endpoint     string
	SamplingRate float64
}

// StorageOptions maps the storage section to the backend factory input.
func (c AppConfig) StorageOptions() storage.Config {
	return storage.Config{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		Redis: storage.RedisConfig{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		},
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// Loader resolves an AppConfig from defaults, an optional YAML file and the environment.
type Loader struct {
	configPath      string
	version         string
	lookupEnv       func(string) (string, bool)
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		lookupEnv:       os.LookupEnv,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, or "" for ENV-only configuration.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}
