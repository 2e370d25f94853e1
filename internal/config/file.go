// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"
)

// FileConfig is the YAML file schema. Pointer fields distinguish "unset"
// from an explicit zero value.
type FileConfig struct {
	LogLevel  *string        `yaml:"logLevel"`
	CityID    *string        `yaml:"cityId"`
	API       *FileAPI       `yaml:"api"`
	Probe     *FileProbe     `yaml:"probe"`
	Cache     *FileCache     `yaml:"cache"`
	Storage   *FileStorage   `yaml:"storage"`
	Server    *FileServer    `yaml:"server"`
	Notify    *FileNotify    `yaml:"notify"`
	Telemetry *FileTelemetry `yaml:"telemetry"`
}

type FileAPI struct {
	BaseURL *string  `yaml:"baseUrl"`
	Key     *string  `yaml:"key"`
	Origin  *string  `yaml:"origin"`
	Referer *string  `yaml:"referer"`
	SiteURL *string  `yaml:"siteUrl"`
	Timeout *string  `yaml:"timeout"`
	MaxRPS  *float64 `yaml:"maxRps"`
	Burst   *int     `yaml:"burst"`
}

type FileProbe struct {
	Interval *string `yaml:"interval"`
}

type FileCache struct {
	ListingTTL *string `yaml:"listingTtl"`
	DetailTTL  *string `yaml:"detailTtl"`
}

type FileStorage struct {
	Backend     *string    `yaml:"backend"`
	Path        *string    `yaml:"path"`
	Redis       *FileRedis `yaml:"redis"`
	PostgresDSN *string    `yaml:"postgresDsn"`
}

type FileRedis struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
}

type FileServer struct {
	ListenAddr      *string `yaml:"listenAddr"`
	RateLimit       *int    `yaml:"rateLimit"`
	ShutdownTimeout *string `yaml:"shutdownTimeout"`
}

type FileNotify struct {
	MQTTBroker  *string `yaml:"mqttBroker"`
	TopicPrefix *string `yaml:"topicPrefix"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, *src, err)
	}
	*dst = d
	return nil
}

// mergeFileConfig overlays the values present in src onto dst.
func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.CityID, src.CityID)

	if a := src.API; a != nil {
		setString(&dst.API.BaseURL, a.BaseURL)
		setString(&dst.API.Key, a.Key)
		setString(&dst.API.Origin, a.Origin)
		setString(&dst.API.Referer, a.Referer)
		setString(&dst.API.SiteURL, a.SiteURL)
		setFloat(&dst.API.MaxRPS, a.MaxRPS)
		setInt(&dst.API.Burst, a.Burst)
		if err := setDuration(&dst.API.Timeout, a.Timeout, "api.timeout"); err != nil {
			return err
		}
	}
	if p := src.Probe; p != nil {
		if err := setDuration(&dst.Probe.Interval, p.Interval, "probe.interval"); err != nil {
			return err
		}
	}
	if c := src.Cache; c != nil {
		if err := setDuration(&dst.Cache.ListingTTL, c.ListingTTL, "cache.listingTtl"); err != nil {
			return err
		}
		if err := setDuration(&dst.Cache.DetailTTL, c.DetailTTL, "cache.detailTtl"); err != nil {
			return err
		}
	}
	if s := src.Storage; s != nil {
		setString(&dst.Storage.Backend, s.Backend)
		setString(&dst.Storage.Path, s.Path)
		setString(&dst.Storage.PostgresDSN, s.PostgresDSN)
		if r := s.Redis; r != nil {
			setString(&dst.Storage.Redis.Addr, r.Addr)
			setString(&dst.Storage.Redis.Password, r.Password)
			setInt(&dst.Storage.Redis.DB, r.DB)
		}
	}
	if s := src.Server; s != nil {
		setString(&dst.Server.ListenAddr, s.ListenAddr)
		setInt(&dst.Server.RateLimit, s.RateLimit)
		if err := setDuration(&dst.Server.ShutdownTimeout, s.ShutdownTimeout, "server.shutdownTimeout"); err != nil {
			return err
		}
	}
	if n := src.Notify; n != nil {
		setString(&dst.Notify.MQTTBroker, n.MQTTBroker)
		setString(&dst.Notify.TopicPrefix, n.TopicPrefix)
	}
	if t := src.Telemetry; t != nil {
		if t.Enabled != nil {
			dst.Telemetry.Enabled = *t.Enabled
		}
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		setFloat(&dst.Telemetry.SamplingRate, t.SamplingRate)
	}
	return nil
}

// ToFile renders cfg in the file schema, every field set. Loading the result
// back yields cfg again.
func ToFile(cfg AppConfig) FileConfig {
	return FileConfig{
		LogLevel: ptr(cfg.LogLevel),
		CityID:   ptr(cfg.CityID),
		API: &FileAPI{
			BaseURL: ptr(cfg.API.BaseURL),
			Key:     ptr(cfg.API.Key),
			Origin:  ptr(cfg.API.Origin),
			Referer: ptr(cfg.API.Referer),
			SiteURL: ptr(cfg.API.SiteURL),
			Timeout: ptr(cfg.API.Timeout.String()),
			MaxRPS:  ptr(cfg.API.MaxRPS),
			Burst:   ptr(cfg.API.Burst),
		},
		Probe: &FileProbe{Interval: ptr(cfg.Probe.Interval.String())},
		Cache: &FileCache{
			ListingTTL: ptr(cfg.Cache.ListingTTL.String()),
			DetailTTL:  ptr(cfg.Cache.DetailTTL.String()),
		},
		Storage: &FileStorage{
			Backend: ptr(cfg.Storage.Backend),
			Path:    ptr(cfg.Storage.Path),
			Redis: &FileRedis{
				Addr:     ptr(cfg.Storage.Redis.Addr),
				Password: ptr(cfg.Storage.Redis.Password),
				DB:       ptr(cfg.Storage.Redis.DB),
			},
			PostgresDSN: ptr(cfg.Storage.PostgresDSN),
		},
		Server: &FileServer{
			ListenAddr:      ptr(cfg.Server.ListenAddr),
			RateLimit:       ptr(cfg.Server.RateLimit),
			ShutdownTimeout: ptr(cfg.Server.ShutdownTimeout.String()),
		},
		Notify: &FileNotify{
			MQTTBroker:  ptr(cfg.Notify.MQTTBroker),
			TopicPrefix: ptr(cfg.Notify.TopicPrefix),
		},
		Telemetry: &FileTelemetry{
			Enabled:      ptr(cfg.Telemetry.Enabled),
			Exporter:     ptr(cfg.Telemetry.Exporter),
			Endpoint:     ptr(cfg.Telemetry.Endpoint),
			SamplingRate: ptr(cfg.Telemetry.SamplingRate),
		},
	}
}

func ptr[T any](v T) *T { return &v }
