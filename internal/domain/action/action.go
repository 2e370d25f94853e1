// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package action holds the ticketing domain types shared by the cache,
// the remote client and the probe pipeline.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidID is returned for empty city, action or venue identifiers.
var ErrInvalidID = errors.New("action: invalid identifier")

// Action is a bookable event instance returned by the listing endpoint.
// It is immutable once fetched; use Clone before handing it to another owner.
type Action struct {
	ID        string            `json:"actionId"`
	Name      string            `json:"actionName"`
	Venues    map[string]string `json:"venues"` // venueId -> venue name
	CityID    string            `json:"cityId"`
	StartTime time.Time         `json:"startTime"`
	Time      string            `json:"time"`
	Age       string            `json:"age"`
	Genres    map[string]string `json:"genres"` // genreId -> genre name
	MinPrice  float64           `json:"minPrice"`
	MaxPrice  float64           `json:"maxPrice"`
}

// Detail is the result of a detail probe for one (city, action) pair.
type Detail struct {
	ActionID  string          `json:"actionId"`
	Available bool            `json:"available"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// VenueIDs returns the venue identifiers in the order the upstream API
// enumerates them: integer-like keys ascending, then the rest lexically.
func (a Action) VenueIDs() []string {
	return orderedKeys(a.Venues)
}

// PrimaryVenueID returns the first venue identifier, or "" if the action has none.
func (a Action) PrimaryVenueID() string {
	ids := a.VenueIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// PrimaryGenre returns the name of the first genre, or "".
func (a Action) PrimaryGenre() string {
	ids := orderedKeys(a.Genres)
	if len(ids) == 0 {
		return ""
	}
	return a.Genres[ids[0]]
}

// URL builds the public page link for the action on the given site.
func (a Action) URL(site string) string {
	return fmt.Sprintf("%s/city/%s/%s_%s", strings.TrimRight(site, "/"), a.CityID, a.PrimaryVenueID(), a.ID)
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	out := a
	out.Venues = maps.Clone(a.Venues)
	out.Genres = maps.Clone(a.Genres)
	return out
}

// CloneAll deep-copies a listing.
func CloneAll(in []Action) []Action {
	if in == nil {
		return nil
	}
	out := make([]Action, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// ValidateID rejects empty or whitespace-only identifiers.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidID, kind)
	}
	return nil
}

func orderedKeys(m map[string]string) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b string) int {
		ai, aok := arrayIndex(a)
		bi, bok := arrayIndex(b)
		switch {
		case aok && bok:
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			return 0
		case aok:
			return -1
		case bok:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return keys
}

// arrayIndex reports whether s is a canonical non-negative integer, the
// class of keys that object enumeration puts first in ascending order.
func arrayIndex(s string) (uint64, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 1<<32-1 {
		return 0, false
	}
	return n, true
}
