// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session holds the per-user view state: the current city, its
// listing, the latest probe snapshot and the price filter.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/probe"
)

// ErrCityMismatch is returned when a listing for a city other than the
// current one is installed.
var ErrCityMismatch = errors.New("session: listing does not belong to the current city")

// Listing is the cached listing of the current city.
type Listing struct {
	CityID   string          `json:"cityId"`
	Actions  []action.Action `json:"actions"`
	StoredAt time.Time       `json:"storedAt"`
	Cached   bool            `json:"cached"`
}

// Snapshot is a read-only copy of the session. Listing is nil until a
// listing for the current city has been installed.
type Snapshot struct {
	CityID  string         `json:"cityId"`
	Listing *Listing       `json:"listing"`
	Filter  *float64       `json:"filter"`
	Probe   probe.Snapshot `json:"probe"`
}

// State is safe for concurrent use. It implements probe.Reporter.
type State struct {
	mu      sync.RWMutex
	cityID  string
	listing *Listing
	filter  *float64
	probe   probe.Snapshot
}

// New creates a session for cityID.
func New(cityID string) *State {
	s := &State{}
	s.reset(cityID)
	return s
}

// Reset drops everything and starts over with cityID.
func (s *State) Reset(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(cityID)
}

func (s *State) reset(cityID string) {
	s.cityID = cityID
	s.listing = nil
	s.filter = nil
	s.probe = probe.Snapshot{Status: probe.StatusIdle, Items: []string{}, Results: map[string]probe.Result{}}
}

// CityID returns the current city.
func (s *State) CityID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cityID
}

// SetCity switches the current city. Changing it drops the listing and the
// filter in the same step so that the listing never belongs to another city.
func (s *State) SetCity(cityID string) error {
	if err := action.ValidateID("city id", cityID); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cityID == s.cityID {
		return nil
	}
	s.cityID = cityID
	s.listing = nil
	s.filter = nil
	return nil
}

// SetListing installs a listing for the current city.
func (s *State) SetListing(l Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CityID != s.cityID {
		return fmt.Errorf("%w: got %q, current %q", ErrCityMismatch, l.CityID, s.cityID)
	}
	l.Actions = action.CloneAll(l.Actions)
	if l.Actions == nil {
		l.Actions = []action.Action{}
	}
	s.listing = &l
	if s.filter != nil && !s.hasPriceLocked(*s.filter) {
		s.filter = nil
	}
	return nil
}

// Listing returns a copy of the current listing.
func (s *State) Listing() (Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listing == nil {
		return Listing{}, false
	}
	out := *s.listing
	out.Actions = action.CloneAll(out.Actions)
	return out, true
}

// UpdateProbeSnapshot stores the latest probe state.
func (s *State) UpdateProbeSnapshot(snap probe.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probe = snap.Clone()
}

// Probe returns the latest probe snapshot.
func (s *State) Probe() probe.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probe.Clone()
}

// SetFilter toggles the single-select price filter. Selecting the active
// value again, or passing nil, clears it. It returns the resulting filter.
func (s *State) SetFilter(price *float64) *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case price == nil:
		s.filter = nil
	case s.filter != nil && *s.filter == *price:
		s.filter = nil
	default:
		v := *price
		s.filter = &v
	}
	return copyPrice(s.filter)
}

// Filter returns the active price filter, or nil.
func (s *State) Filter() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPrice(s.filter)
}

// FilteredActions returns the listing actions whose minimum price equals the
// filter, or every action when no filter is set.
func (s *State) FilteredActions() []action.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filteredLocked()
}

// ProbeTarget returns the listing city together with its filtered actions,
// read in one step. ok is false without a listing.
func (s *State) ProbeTarget() (cityID string, actions []action.Action, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listing == nil {
		return "", nil, false
	}
	return s.listing.CityID, s.filteredLocked(), true
}

func (s *State) filteredLocked() []action.Action {
	if s.listing == nil {
		return []action.Action{}
	}
	out := make([]action.Action, 0, len(s.listing.Actions))
	for _, a := range s.listing.Actions {
		if s.filter == nil || a.MinPrice == *s.filter {
			out = append(out, a.Clone())
		}
	}
	return out
}

// PriceOptions returns the distinct minimum prices of the listing, ascending.
func (s *State) PriceOptions() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []float64{}
	if s.listing == nil {
		return out
	}
	for _, a := range s.listing.Actions {
		out = append(out, a.MinPrice)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Snapshot returns a copy of the whole session.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		CityID: s.cityID,
		Filter: copyPrice(s.filter),
		Probe:  s.probe.Clone(),
	}
	if s.listing != nil {
		l := *s.listing
		l.Actions = action.CloneAll(l.Actions)
		out.Listing = &l
	}
	return out
}

func (s *State) hasPriceLocked(price float64) bool {
	for _, a := range s.listing.Actions {
		if a.MinPrice == price {
			return true
		}
	}
	return false
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
