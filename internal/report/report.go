// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package report exports probe results to disk.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/probe"
)

// Row is one line of the exported report, in probe order.
type Row struct {
	ActionID   string    `json:"actionId"`
	Name       string    `json:"name,omitempty"`
	URL        string    `json:"url,omitempty"`
	MinPrice   float64   `json:"minPrice"`
	StatusCode int       `json:"statusCode,omitempty"`
	Cached     bool      `json:"cached"`
	Available  *bool     `json:"available,omitempty"`
	ObservedAt time.Time `json:"observedAt,omitzero"`
	Probed     bool      `json:"probed"`
}

// Report is the file format written by WriteJSON.
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Run         probe.Snapshot `json:"run"`
	Rows        []Row          `json:"rows"`
	Summary     map[int]int    `json:"summary"` // status code -> count
}

// Build joins a probe snapshot with the listing it ran over. site is the
// public site base used for action links; empty omits them.
func Build(snap probe.Snapshot, actions []action.Action, site string, now time.Time) Report {
	byID := make(map[string]action.Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	rep := Report{GeneratedAt: now, Run: snap, Rows: make([]Row, 0, len(snap.Items)), Summary: map[int]int{}}
	for _, id := range snap.Items {
		row := Row{ActionID: id}
		if a, ok := byID[id]; ok {
			row.Name = a.Name
			row.MinPrice = a.MinPrice
			if site != "" {
				row.URL = a.URL(site)
			}
		}
		if res, ok := snap.Results[id]; ok {
			row.Probed = true
			row.StatusCode = res.StatusCode
			row.Cached = res.Cached
			row.Available = res.Available
			row.ObservedAt = res.ObservedAt
			rep.Summary[res.StatusCode]++
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}

// StatusCodes returns the summary keys in ascending order.
func (r Report) StatusCodes() []int {
	out := make([]int, 0, len(r.Summary))
	for code := range r.Summary {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

// WriteJSON writes v to path atomically: readers see either the old file or
// the complete new one.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending report file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace report: %w", err)
	}
	return nil
}
