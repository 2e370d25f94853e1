// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuGH/actionprobe/internal/domain/action"
)

// PutListing stores the listing of a city.
func (s *Store) PutListing(ctx context.Context, cityID string, actions []action.Action) error {
	if actions == nil {
		actions = []action.Action{}
	}
	return s.Put(ctx, ListingKey(cityID), actions)
}

// Listing returns the listing of a city if it is still within the listing TTL.
func (s *Store) Listing(ctx context.Context, cityID string) (Entry[[]action.Action], bool, error) {
	return validEntry[[]action.Action](ctx, s, ListingKey(cityID), s.listingTTL)
}

// PutDetail stores a detail probe result.
func (s *Store) PutDetail(ctx context.Context, cityID string, d action.Detail) error {
	return s.Put(ctx, DetailKey(cityID, d.ActionID), d)
}

// Detail returns the cached detail of an action if it is within the detail TTL.
func (s *Store) Detail(ctx context.Context, cityID, actionID string) (Entry[action.Detail], bool, error) {
	return validEntry[action.Detail](ctx, s, DetailKey(cityID, actionID), s.detailTTL)
}

// ClearListing removes the listing of a city.
func (s *Store) ClearListing(ctx context.Context, cityID string) error {
	return s.Delete(ctx, ListingKey(cityID))
}

// ClearDetail removes one detail entry.
func (s *Store) ClearDetail(ctx context.Context, cityID, actionID string) error {
	return s.Delete(ctx, DetailKey(cityID, actionID))
}

// ClearCityDetails removes every detail entry of a city.
func (s *Store) ClearCityDetails(ctx context.Context, cityID string) (int, error) {
	return s.ClearAll(ctx, DetailPrefix(cityID))
}

// ListingSummary describes one cached listing without its payload.
type ListingSummary struct {
	CityID   string    `json:"cityId"`
	Actions  int       `json:"actions"`
	StoredAt time.Time `json:"storedAt"`
	Valid    bool      `json:"valid"`
}

// Listings enumerates every cached listing, stale ones included.
func (s *Store) Listings(ctx context.Context) ([]ListingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.Keys(ctx, NamespacePrefix(NamespaceListing))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]ListingSummary, 0, len(keys))
	for _, k := range keys {
		e, ok, err := getLocked[[]json.RawMessage](ctx, s, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		_, ids := splitKey(k)
		if len(ids) != 1 {
			continue
		}
		out = append(out, ListingSummary{
			CityID:   ids[0],
			Actions:  len(e.Data),
			StoredAt: e.StoredAt(),
			Valid:    Fresh(now, e.Timestamp, s.listingTTL),
		})
	}
	return out, nil
}
