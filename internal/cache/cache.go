// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache implements the time-boxed response cache on top of a durable
// storage backend. Every entry is stored as {"data": ..., "timestamp": epoch-ms}.
// TTL is enforced on read by the caller through IsValid; expired entries stay
// in storage until they are overwritten or cleared.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/actionprobe/internal/clock"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/storage"
)

// Default TTLs per namespace.
const (
	DefaultListingTTL = 24 * time.Hour
	DefaultDetailTTL  = time.Hour
)

// Entry is the persisted envelope around a payload.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// StoredAt returns the write time of the entry.
func (e Entry[T]) StoredAt() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// envelopeHeader decodes only the timestamp of an entry.
type envelopeHeader struct {
	Timestamp int64 `json:"timestamp"`
}

// Fresh reports whether an entry stored at storedAtMS is still valid at now:
// now - storedAt <= ttl.
func Fresh(now time.Time, storedAtMS int64, ttl time.Duration) bool {
	return now.UnixMilli()-storedAtMS <= ttl.Milliseconds()
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTLs overrides the listing and detail TTLs. Non-positive values keep the defaults.
func WithTTLs(listing, detail time.Duration) Option {
	return func(s *Store) {
		if listing > 0 {
			s.listingTTL = listing
		}
		if detail > 0 {
			s.detailTTL = detail
		}
	}
}

// Store is the Cache Store. All access is serialised by one mutex; listing
// fetches and probe runs may use it concurrently.
type Store struct {
	mu      sync.Mutex
	backend storage.Storage
	clock   clock.Clock
	logger  zerolog.Logger

	listingTTL time.Duration
	detailTTL  time.Duration
}

// New creates a Store over backend.
func New(backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		clock:      clock.NewSystem(),
		logger:     xglog.WithComponent("cache"),
		listingTTL: DefaultListingTTL,
		detailTTL:  DefaultDetailTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListingTTL returns the configured listing TTL.
func (s *Store) ListingTTL() time.Duration { return s.listingTTL }

// DetailTTL returns the configured detail TTL.
func (s *Store) DetailTTL() time.Duration { return s.detailTTL }

// Put writes payload at key with storedAt = now, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(ctx, key, payload)
}

func (s *Store) putLocked(ctx context.Context, key string, payload any) error {
	buf, err := json.Marshal(Entry[any]{Data: payload, Timestamp: s.clock.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, buf); err != nil {
		return err
	}
	writesTotal.WithLabelValues(namespaceOf(key)).Inc()
	s.logger.Debug().
		Str(xglog.FieldEvent, "cache.put").
		Str(xglog.FieldCacheKey, key).
		Int("bytes", len(buf)).
		Msg("cache entry stored")
	return nil
}

// Get returns the entry at key verbatim, stale or not. A missing or
// undecodable entry reports ok=false; only backend failures return an error.
func Get[T any](ctx context.Context, s *Store, key string) (Entry[T], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getLocked[T](ctx, s, key)
}

func getLocked[T any](ctx context.Context, s *Store, key string) (Entry[T], bool, error) {
	var e Entry[T]
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		lookupsTotal.WithLabelValues(namespaceOf(key), "corrupt").Inc()
		s.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "cache.corrupt").
			Str(xglog.FieldCacheKey, key).
			Msg("ignoring undecodable cache entry")
		return Entry[T]{}, false, nil
	}
	return e, true, nil
}

// IsValid reports whether key is present and younger than ttl.
func (s *Store) IsValid(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok, err := getLocked[json.RawMessage](ctx, s, key)
	if err != nil || !ok {
		return false, err
	}
	return Fresh(s.clock.Now(), h.Timestamp, ttl), nil
}

// Delete removes one entry. Removing an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	deletesTotal.Inc()
	return nil
}

// ClearAll removes every key starting with prefix. An empty prefix clears
// both namespaces. Each key is removed individually; a failure stops the
// sweep and reports how many keys were already removed.
func (s *Store) ClearAll(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefixes := []string{prefix}
	if prefix == "" {
		prefixes = []string{NamespacePrefix(NamespaceListing), NamespacePrefix(NamespaceDetail)}
	}

	removed := 0
	for _, p := range prefixes {
		keys, err := s.backend.Keys(ctx, p)
		if err != nil {
			return removed, err
		}
		for _, k := range keys {
			if err := s.backend.Delete(ctx, k); err != nil {
				return removed, err
			}
			removed++
		}
	}
	deletesTotal.Add(float64(removed))
	s.logger.Info().
		Str(xglog.FieldEvent, "cache.clear").
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("cache cleared")
	return removed, nil
}

// validEntry loads key and keeps it only when fresh under ttl.
func validEntry[T any](ctx context.Context, s *Store, key string, ttl time.Duration) (Entry[T], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := namespaceOf(key)
	e, ok, err := getLocked[T](ctx, s, key)
	if err != nil {
		return e, false, err
	}
	if !ok {
		lookupsTotal.WithLabelValues(ns, "miss").Inc()
		return e, false, nil
	}
	if !Fresh(s.clock.Now(), e.Timestamp, ttl) {
		lookupsTotal.WithLabelValues(ns, "stale").Inc()
		return Entry[T]{}, false, nil
	}
	lookupsTotal.WithLabelValues(ns, "hit").Inc()
	return e, true, nil
}
