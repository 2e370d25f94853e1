// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/ManuGH/actionprobe/internal/domain/action"
)

var (
	// ErrEmptyBatch is returned by Start for a batch without items.
	ErrEmptyBatch = errors.New("probe: empty batch")
	// ErrAlreadyRunning is returned by Start and Reset while a run is active.
	ErrAlreadyRunning = errors.New("probe: a run is already in progress")
	// ErrInvalidInterval is returned by Start for an interval outside [0, MaxInterval].
	ErrInvalidInterval = errors.New("probe: interval out of range")
)

// MaxInterval is the longest accepted pause between remote requests.
const MaxInterval = 24 * time.Hour

// Status is the lifecycle state of a probe run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions happen without a new Start.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Batch is the input of one run. Items are copied when the run starts.
type Batch struct {
	CityID   string
	APIKey   string
	Items    []action.Action
	Interval time.Duration
}

// Result is the recorded outcome of one item.
type Result struct {
	StatusCode int       `json:"statusCode"`
	ObservedAt time.Time `json:"observedAt"`
	Cached     bool      `json:"cached"`
	Available  *bool     `json:"available,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is an immutable copy of the run state handed to reporters and callers.
type Snapshot struct {
	RunID      string            `json:"runId,omitempty"`
	Status     Status            `json:"status"`
	CityID     string            `json:"cityId,omitempty"`
	Items      []string          `json:"items"`
	Cursor     int               `json:"cursor"`
	Total      int               `json:"total"`
	Results    map[string]Result `json:"results"`
	IntervalMs int64             `json:"intervalMs"`
	StartedAt  time.Time         `json:"startedAt,omitzero"`
	FinishedAt time.Time         `json:"finishedAt,omitzero"`
	Err        string            `json:"error,omitempty"`
}

// Progress returns {current, total} as shown to the user.
func (s Snapshot) Progress() (current, total int) {
	return s.Cursor, s.Total
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Items = slices.Clone(s.Items)
	out.Results = maps.Clone(s.Results)
	return out
}

func idleSnapshot() Snapshot {
	return Snapshot{Status: StatusIdle, Items: []string{}, Results: map[string]Result{}}
}

// Reporter receives a snapshot after every state change of a run. Calls come
// from the run goroutine in order; a reporter may call Cancel or Snapshot.
type Reporter interface {
	UpdateProbeSnapshot(Snapshot)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Snapshot)

// UpdateProbeSnapshot implements Reporter.
func (f ReporterFunc) UpdateProbeSnapshot(s Snapshot) { f(s) }

type multiReporter []Reporter

func (m multiReporter) UpdateProbeSnapshot(s Snapshot) {
	for _, r := range m {
		r.UpdateProbeSnapshot(s.Clone())
	}
}

// MultiReporter fans a snapshot out to every non-nil reporter in order.
func MultiReporter(reporters ...Reporter) Reporter {
	out := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
