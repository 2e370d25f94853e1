// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/probe"
)

func listing(city string, prices ...float64) Listing {
	l := Listing{CityID: city, StoredAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	for i, p := range prices {
		l.Actions = append(l.Actions, action.Action{ID: string(rune('A' + i)), CityID: city, MinPrice: p})
	}
	return l
}

func ptr(v float64) *float64 { return &v }

func TestNewSessionIsEmpty(t *testing.T) {
	s := New("52")
	snap := s.Snapshot()
	assert.Equal(t, "52", snap.CityID)
	assert.Nil(t, snap.Listing)
	assert.Nil(t, snap.Filter)
	assert.Equal(t, probe.StatusIdle, snap.Probe.Status)
	assert.Empty(t, s.FilteredActions())
	assert.Empty(t, s.PriceOptions())
}

func TestSetListingRequiresCurrentCity(t *testing.T) {
	s := New("52")
	err := s.SetListing(listing("1", 100))
	assert.ErrorIs(t, err, ErrCityMismatch)
	_, ok := s.Listing()
	assert.False(t, ok)

	require.NoError(t, s.SetListing(listing("52", 100)))
	l, ok := s.Listing()
	require.True(t, ok)
	assert.Len(t, l.Actions, 1)
}

func TestSetCityDropsListingAndFilter(t *testing.T) {
	s := New("52")
	require.NoError(t, s.SetListing(listing("52", 100, 200)))
	s.SetFilter(ptr(100))

	require.NoError(t, s.SetCity("52"))
	_, ok := s.Listing()
	assert.True(t, ok, "same city keeps the listing")

	require.NoError(t, s.SetCity("1"))
	_, ok = s.Listing()
	assert.False(t, ok)
	assert.Nil(t, s.Filter())
	assert.Equal(t, "1", s.CityID())

	assert.ErrorIs(t, s.SetCity(""), action.ErrInvalidID)
	assert.Equal(t, "1", s.CityID())
}

func TestFilterToggle(t *testing.T) {
	s := New("52")
	require.NoError(t, s.SetListing(listing("52", 300, 100, 300, 200)))

	got := s.SetFilter(ptr(300))
	require.NotNil(t, got)
	assert.InDelta(t, 300, *got, 0)

	ids := func() []string {
		var out []string
		for _, a := range s.FilteredActions() {
			out = append(out, a.ID)
		}
		return out
	}
	assert.Equal(t, []string{"A", "C"}, ids())

	assert.NotNil(t, s.SetFilter(ptr(100)), "another value replaces the selection")
	assert.Equal(t, []string{"B"}, ids())

	assert.Nil(t, s.SetFilter(ptr(100)), "same value clears")
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids())

	s.SetFilter(ptr(200))
	assert.Nil(t, s.SetFilter(nil))
}

func TestFilterIsDroppedWhenPriceDisappears(t *testing.T) {
	s := New("52")
	require.NoError(t, s.SetListing(listing("52", 100, 200)))
	s.SetFilter(ptr(200))

	require.NoError(t, s.SetListing(listing("52", 100)))
	assert.Nil(t, s.Filter())

	s.SetFilter(ptr(100))
	require.NoError(t, s.SetListing(listing("52", 100, 500)))
	require.NotNil(t, s.Filter())
}

func TestProbeTargetPairsCityWithFilteredActions(t *testing.T) {
	s := New("52")
	_, _, ok := s.ProbeTarget()
	assert.False(t, ok)

	require.NoError(t, s.SetListing(listing("52", 500, 1500, 500)))
	s.SetFilter(ptr(500))

	city, actions, ok := s.ProbeTarget()
	require.True(t, ok)
	assert.Equal(t, "52", city)
	require.Len(t, actions, 2)
	assert.Equal(t, "A", actions[0].ID)
	assert.Equal(t, "C", actions[1].ID)

	require.NoError(t, s.SetCity("77"))
	_, _, ok = s.ProbeTarget()
	assert.False(t, ok, "switching city drops the target")
}

func TestPriceOptions(t *testing.T) {
	s := New("52")
	require.NoError(t, s.SetListing(listing("52", 300, 100, 300, 200, 100)))
	assert.Equal(t, []float64{100, 200, 300}, s.PriceOptions())
}

func TestListingIsCopied(t *testing.T) {
	s := New("52")
	l := listing("52", 100)
	l.Actions[0].Venues = map[string]string{"1": "Hall"}
	require.NoError(t, s.SetListing(l))

	l.Actions[0].Venues["1"] = "changed"
	got, _ := s.Listing()
	assert.Equal(t, "Hall", got.Actions[0].Venues["1"])

	got.Actions[0].Name = "changed"
	again, _ := s.Listing()
	assert.Empty(t, again.Actions[0].Name)
}

func TestProbeSnapshotUpdates(t *testing.T) {
	s := New("52")
	var reporter probe.Reporter = s

	snap := probe.Snapshot{
		RunID:   "run-1",
		Status:  probe.StatusRunning,
		Items:   []string{"A", "B"},
		Cursor:  1,
		Total:   2,
		Results: map[string]probe.Result{"A": {StatusCode: 200}},
	}
	reporter.UpdateProbeSnapshot(snap)
	snap.Results["B"] = probe.Result{StatusCode: 500}

	got := s.Probe()
	assert.Len(t, got.Results, 1, "stored snapshot must not alias the reporter's map")
	assert.Equal(t, "run-1", got.RunID)

	s.Reset("7")
	assert.Equal(t, probe.StatusIdle, s.Probe().Status)
	assert.Equal(t, "7", s.CityID())
}

func TestConcurrentAccess(t *testing.T) {
	s := New("52")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					_ = s.SetListing(listing("52", float64(j)))
					s.UpdateProbeSnapshot(probe.Snapshot{Cursor: j})
				} else {
					_ = s.Snapshot()
					_ = s.FilteredActions()
					s.SetFilter(ptr(float64(j)))
				}
			}
		}(i)
	}
	wg.Wait()
}
