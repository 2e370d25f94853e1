// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "strings"

// MaskSecret keeps the last four characters of s. Values of four characters
// or fewer are fully masked.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}

// Redacted returns a copy of cfg with every secret masked, for logging and
// the config dump of the CLI.
func Redacted(cfg AppConfig) AppConfig {
	out := cfg
	out.API.Key = MaskSecret(cfg.API.Key)
	out.Storage.Redis.Password = MaskSecret(cfg.Storage.Redis.Password)
	out.Storage.PostgresDSN = maskDSN(cfg.Storage.PostgresDSN)
	return out
}

// maskDSN hides the password part of a postgres URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return MaskSecret(dsn)
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
