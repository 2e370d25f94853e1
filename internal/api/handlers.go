// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/probe"
)

// ActionView is an action as rendered in the listing table.
type ActionView struct {
	action.Action
	VenueID string        `json:"venueId"`
	Venue   string        `json:"venue"`
	Genre   string        `json:"genre"`
	URL     string        `json:"url"`
	Result  *probe.Result `json:"result,omitempty"`
}

// ListingView is the response of GET /api/v1/listing.
type ListingView struct {
	CityID       string       `json:"cityId"`
	StoredAt     time.Time    `json:"storedAt"`
	Cached       bool         `json:"cached"`
	Total        int          `json:"total"`
	Filter       *float64     `json:"filter"`
	PriceOptions []float64    `json:"priceOptions"`
	Actions      []ActionView `json:"actions"`
}

// decodeBody decodes a JSON body strictly. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeBadRequest(w, CodeInvalidBody, err.Error())
		return false
	}
	return true
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Session().Snapshot())
}

func (s *Server) handleSetCity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CityID string `json:"cityId"`
	}
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := s.svc.SetCity(req.CityID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Session().Snapshot())
}

func (s *Server) handleFetchListing(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, CodeInvalidInput, fmt.Sprintf("force: %v", err))
			return
		}
		force = b
	}
	if _, err := s.svc.FetchListing(r.Context(), "", force); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeListing(w)
}

func (s *Server) handleGetListing(w http.ResponseWriter, _ *http.Request) {
	s.writeListing(w)
}

func (s *Server) writeListing(w http.ResponseWriter) {
	sess := s.svc.Session()
	l, ok := sess.Listing()
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: CodeNoListing, Detail: "no listing loaded for the current city"})
		return
	}

	results := sess.Probe().Results
	filtered := sess.FilteredActions()
	views := make([]ActionView, len(filtered))
	for i, a := range filtered {
		venueID := a.PrimaryVenueID()
		v := ActionView{
			Action:  a,
			VenueID: venueID,
			Venue:   a.Venues[venueID],
			Genre:   a.PrimaryGenre(),
			URL:     a.URL(s.cfg.SiteURL),
		}
		if res, ok := results[a.ID]; ok {
			v.Result = &res
		}
		views[i] = v
	}

	writeJSON(w, http.StatusOK, ListingView{
		CityID:       l.CityID,
		StoredAt:     l.StoredAt,
		Cached:       l.Cached,
		Total:        len(l.Actions),
		Filter:       sess.Filter(),
		PriceOptions: sess.PriceOptions(),
		Actions:      views,
	})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price *float64 `json:"price"`
	}
	if !decodeBody(w, r, &req, false) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]*float64{"filter": s.svc.Session().SetFilter(req.Price)})
}

func (s *Server) handleGetProbe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Probe())
}

func (s *Server) handleStartProbe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalMs *int64 `json:"intervalMs"`
	}
	if !decodeBody(w, r, &req, true) {
		return
	}
	var interval *time.Duration
	if req.IntervalMs != nil {
		ms := *req.IntervalMs
		if ms < 0 || ms > probe.MaxInterval.Milliseconds() {
			writeBadRequest(w, CodeInvalidInput,
				fmt.Sprintf("intervalMs must be between 0 and %d", probe.MaxInterval.Milliseconds()))
			return
		}
		d := time.Duration(ms) * time.Millisecond
		interval = &d
	}

	snap, err := s.svc.StartProbe(r.Context(), interval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleCancelProbe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.svc.StopProbe()})
}

func (s *Server) handleListCache(w http.ResponseWriter, r *http.Request) {
	listings, err := s.svc.Listings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ClearCache(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
