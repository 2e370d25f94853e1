// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and parameterises a backend.
type Config struct {
	Backend     string
	Path        string // sqlite file or badger directory
	Redis       RedisConfig
	PostgresDSN string
}

// Open creates the Storage named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite, "":
		return OpenSQLite(cfg.Path, DefaultSQLiteConfig())
	case BackendBadger:
		return OpenBadger(cfg.Path)
	case BackendRedis:
		return OpenRedis(ctx, cfg.Redis)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// ValidBackend reports whether name is a supported backend.
func ValidBackend(name string) bool {
	switch name {
	case BackendMemory, BackendSQLite, BackendBadger, BackendRedis, BackendPostgres:
		return true
	}
	return false
}
