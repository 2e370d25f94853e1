// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/actionprobe/internal/cache"
	"github.com/ManuGH/actionprobe/internal/clock"
	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/kassir"
	"github.com/ManuGH/actionprobe/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, actionID string) (action.Detail, error)
}

func (f *fakeFetcher) GetActionDetail(ctx context.Context, _, _, actionID, _ string) (action.Detail, error) {
	f.mu.Lock()
	f.calls = append(f.calls, actionID)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, actionID)
	}
	return action.Detail{ActionID: actionID, Available: true}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	hook  func(Snapshot)
}

func (r *recorder) UpdateProbeSnapshot(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

func (r *recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func items(ids ...string) []action.Action {
	out := make([]action.Action, len(ids))
	for i, id := range ids {
		out[i] = action.Action{ID: id, CityID: "52", Venues: map[string]string{"v" + id: "Venue " + id}}
	}
	return out
}

type fixture struct {
	store   *cache.Store
	fetcher *fakeFetcher
	rec     *recorder
	p       *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(epoch)
	f := &fixture{
		store:   cache.New(storage.NewMemory(), cache.WithClock(clk)),
		fetcher: &fakeFetcher{},
		rec:     &recorder{},
	}
	f.p = New(f.store, f.fetcher, WithReporter(f.rec), WithClock(clk))
	return f
}

func waitDone(t *testing.T, p *Pipeline) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := p.Wait(ctx)
	require.NoError(t, err, "run did not finish")
	return snap
}

func TestStartRejectsEmptyBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Start(context.Background(), Batch{CityID: "52"})
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Equal(t, StatusIdle, f.p.Snapshot().Status)
	assert.Empty(t, f.rec.Snapshots())
}

func TestStartRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A"), Interval: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A"), Interval: MaxInterval + time.Millisecond})
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = f.p.Start(context.Background(), Batch{Items: items("A")})
	assert.ErrorIs(t, err, action.ErrInvalidID)
	assert.Equal(t, StatusIdle, f.p.Snapshot().Status)
}

func TestAllSucceed(t *testing.T) {
	f := newFixture(t)

	initial, err := f.p.Start(context.Background(), Batch{CityID: "52", APIKey: "k", Items: items("A", "B", "C")})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, initial.Status)
	assert.NotEmpty(t, initial.RunID)

	final := waitDone(t, f.p)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 3, final.Cursor)
	require.Len(t, final.Results, 3)
	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, http.StatusOK, final.Results[id].StatusCode, id)
		assert.False(t, final.Results[id].Cached, id)
		assert.Equal(t, epoch, final.Results[id].ObservedAt)
	}
	assert.Equal(t, []string{"A", "B", "C"}, f.fetcher.Calls())

	for _, id := range []string{"A", "B", "C"} {
		_, ok, err := f.store.Detail(context.Background(), "52", id)
		require.NoError(t, err)
		assert.True(t, ok, "detail %s must be cached", id)
	}
}

func TestProgressIsReportedInOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C")})
	require.NoError(t, err)
	waitDone(t, f.p)

	snaps := f.rec.Snapshots()
	var cursors []int
	var statuses []Status
	for _, s := range snaps {
		cursors = append(cursors, s.Cursor)
		statuses = append(statuses, s.Status)
		assert.Equal(t, 3, s.Total)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 3}, cursors)
	assert.Equal(t, []Status{StatusRunning, StatusRunning, StatusRunning, StatusRunning, StatusCompleted}, statuses)

	// Results grow as a prefix of the input order.
	assert.Len(t, snaps[1].Results, 1)
	assert.Contains(t, snaps[1].Results, "A")
	assert.Len(t, snaps[2].Results, 2)
	assert.Contains(t, snaps[2].Results, "B")
}

func TestFailureIsRecordedAndRunContinues(t *testing.T) {
	f := newFixture(t)
	f.fetcher.fn = func(_ context.Context, id string) (action.Detail, error) {
		switch id {
		case "B":
			return action.Detail{}, &kassir.RemoteError{Sentinel: kassir.ErrNotFound, Op: kassir.OpActionDetail, HTTPStatus: http.StatusNotFound}
		case "C":
			return action.Detail{}, errors.New("connection reset")
		case "D":
			return action.Detail{}, &kassir.RemoteError{Sentinel: kassir.ErrBadResponse, Op: kassir.OpActionDetail, HTTPStatus: http.StatusOK}
		}
		return action.Detail{ActionID: id, Available: false}, nil
	}

	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C", "D")})
	require.NoError(t, err)
	final := waitDone(t, f.p)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, http.StatusOK, final.Results["A"].StatusCode)
	assert.Equal(t, http.StatusNotFound, final.Results["B"].StatusCode)
	assert.Equal(t, http.StatusInternalServerError, final.Results["C"].StatusCode)
	assert.Equal(t, http.StatusInternalServerError, final.Results["D"].StatusCode)
	assert.NotEmpty(t, final.Results["B"].Error)

	_, ok, err := f.store.Detail(context.Background(), "52", "B")
	require.NoError(t, err)
	assert.False(t, ok, "failures are not cached")
}

func TestCancelFromReporterStopsWithinOneItem(t *testing.T) {
	f := newFixture(t)
	f.rec.hook = func(s Snapshot) {
		if s.Status == StatusRunning && s.Cursor == 1 {
			f.p.Cancel()
		}
	}

	started := time.Now()
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C", "D", "E"), Interval: time.Hour})
	require.NoError(t, err)
	final := waitDone(t, f.p)

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, StatusCancelled, final.Status)
	assert.Equal(t, 1, final.Cursor)
	assert.Len(t, final.Results, 1)
	assert.Equal(t, []string{"A"}, f.fetcher.Calls())
}

func TestCancelInterruptsPacingWait(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B"), Interval: time.Hour})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.fetcher.Calls()) == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancelled := time.Now()
	assert.True(t, f.p.Cancel())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := f.p.Wait(ctx)
	require.NoError(t, err, "run still waiting after cancel")
	assert.Less(t, time.Since(cancelled), time.Second)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Equal(t, 1, snap.Cursor)
	assert.Equal(t, []string{"A"}, f.fetcher.Calls())
}

func TestCancelDuringRemoteCallDiscardsResult(t *testing.T) {
	f := newFixture(t)
	inFlight := make(chan struct{})
	f.fetcher.fn = func(ctx context.Context, id string) (action.Detail, error) {
		if id == "B" {
			close(inFlight)
			<-ctx.Done()
			// The transport ignored cancellation and still returned a result.
			return action.Detail{ActionID: id, Available: true}, nil
		}
		return action.Detail{ActionID: id, Available: true}, nil
	}

	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C")})
	require.NoError(t, err)
	<-inFlight
	assert.True(t, f.p.Cancel())
	final := waitDone(t, f.p)

	assert.Equal(t, StatusCancelled, final.Status)
	assert.Equal(t, 1, final.Cursor)
	assert.NotContains(t, final.Results, "B")
	assert.Equal(t, []string{"A", "B"}, f.fetcher.Calls())

	_, ok, err := f.store.Detail(context.Background(), "52", "B")
	require.NoError(t, err)
	assert.False(t, ok, "a result observed after cancellation must not be cached")
}

func TestParentContextCancelsRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.rec.hook = func(s Snapshot) {
		if s.Cursor == 2 {
			cancel()
		}
	}
	defer cancel()

	_, err := f.p.Start(ctx, Batch{CityID: "52", Items: items("A", "B", "C")})
	require.NoError(t, err)
	final := waitDone(t, f.p)
	assert.Equal(t, StatusCancelled, final.Status)
	assert.Equal(t, 2, final.Cursor)
}

func TestCacheHitBypassesRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.PutDetail(context.Background(), "52", action.Detail{ActionID: "B", Available: true}))

	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C")})
	require.NoError(t, err)
	final := waitDone(t, f.p)

	assert.Equal(t, []string{"A", "C"}, f.fetcher.Calls())
	assert.Equal(t, 3, final.Cursor)
	require.Contains(t, final.Results, "B")
	assert.True(t, final.Results["B"].Cached)
	assert.Equal(t, http.StatusOK, final.Results["B"].StatusCode)
	require.NotNil(t, final.Results["B"].Available)
	assert.True(t, *final.Results["B"].Available)
}

func TestCacheHitsSkipPacing(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, f.store.PutDetail(context.Background(), "52", action.Detail{ActionID: id}))
	}

	started := time.Now()
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C"), Interval: time.Hour})
	require.NoError(t, err)
	final := waitDone(t, f.p)

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Empty(t, f.fetcher.Calls())
}

func TestLastRemoteItemDoesNotWait(t *testing.T) {
	f := newFixture(t)
	started := time.Now()
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A"), Interval: time.Hour})
	require.NoError(t, err)
	final := waitDone(t, f.p)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestPacingBetweenRemoteCalls(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var at []time.Time
	f.fetcher.fn = func(_ context.Context, id string) (action.Detail, error) {
		mu.Lock()
		at = append(at, time.Now())
		mu.Unlock()
		return action.Detail{ActionID: id}, nil
	}

	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B", "C"), Interval: 40 * time.Millisecond})
	require.NoError(t, err)
	waitDone(t, f.p)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, at, 3)
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i].Sub(at[i-1]), 40*time.Millisecond)
	}
}

func TestAlreadyRunningLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.fetcher.fn = func(ctx context.Context, id string) (action.Detail, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return action.Detail{ActionID: id}, nil
	}

	first, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B")})
	require.NoError(t, err)

	_, err = f.p.Start(context.Background(), Batch{CityID: "77", Items: items("X")})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, f.p.Reset(), ErrAlreadyRunning)

	current := f.p.Snapshot()
	assert.Equal(t, first.RunID, current.RunID)
	assert.Equal(t, "52", current.CityID)
	assert.Equal(t, StatusRunning, current.Status)

	close(release)
	assert.Equal(t, StatusCompleted, waitDone(t, f.p).Status)
}

func TestCancelIsIdempotentAndNoopWhenIdle(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.p.Cancel())
	assert.Equal(t, StatusIdle, f.p.Snapshot().Status)

	inFlight := make(chan struct{})
	f.fetcher.fn = func(ctx context.Context, id string) (action.Detail, error) {
		close(inFlight)
		<-ctx.Done()
		return action.Detail{}, ctx.Err()
	}
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B")})
	require.NoError(t, err)

	<-inFlight
	assert.True(t, f.p.Cancel())
	f.p.Cancel()
	final := waitDone(t, f.p)
	assert.Equal(t, StatusCancelled, final.Status)
	assert.Zero(t, final.Cursor)
	assert.Empty(t, final.Results)

	assert.False(t, f.p.Cancel(), "cancel after the run ended has no effect")
	assert.Equal(t, StatusCancelled, f.p.Snapshot().Status)
}

func TestRestartAfterFinish(t *testing.T) {
	f := newFixture(t)
	first, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A")})
	require.NoError(t, err)
	waitDone(t, f.p)

	second, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("B", "C")})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Empty(t, second.Results)
	assert.Zero(t, second.Cursor)

	final := waitDone(t, f.p)
	assert.Equal(t, []string{"B", "C"}, final.Items)
	assert.NotContains(t, final.Results, "A")

	require.NoError(t, f.p.Reset())
	if diff := cmp.Diff(idleSnapshot(), f.p.Snapshot()); diff != "" {
		t.Fatalf("reset snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestItemsAreCopiedOnStart(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.fetcher.fn = func(_ context.Context, id string) (action.Detail, error) {
		<-release
		return action.Detail{ActionID: id}, nil
	}

	batch := items("A", "B")
	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: batch})
	require.NoError(t, err)
	batch[1].ID = "mutated"
	close(release)

	final := waitDone(t, f.p)
	assert.Equal(t, []string{"A", "B"}, final.Items)
	assert.Equal(t, []string{"A", "B"}, f.fetcher.Calls())
}

type brokenCache struct {
	DetailCache
	err error
}

func (b brokenCache) PutDetail(context.Context, string, action.Detail) error { return b.err }

func TestStorageErrorFailsRun(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := cache.New(storage.NewMemory(), cache.WithClock(clk))
	boom := &storage.Error{Backend: "sqlite", Op: "set", Err: errors.New("disk full")}
	fetcher := &fakeFetcher{}
	p := New(brokenCache{DetailCache: store, err: boom}, fetcher, WithClock(clk))

	_, err := p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B")})
	require.NoError(t, err)
	final := waitDone(t, p)

	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Err, "disk full")
	assert.Equal(t, []string{"A"}, fetcher.Calls())
	assert.Zero(t, final.Cursor)

	// Failed is terminal and a new run is accepted.
	_, err = p.Start(context.Background(), Batch{CityID: "52", Items: items("A")})
	require.NoError(t, err)
	waitDone(t, p)
}

func TestStatusCodeOf(t *testing.T) {
	assert.Equal(t, 503, statusCodeOf(&kassir.RemoteError{Sentinel: kassir.ErrUpstreamError, HTTPStatus: 503}))
	assert.Equal(t, 500, statusCodeOf(&kassir.RemoteError{Sentinel: kassir.ErrUpstreamUnavailable}))
	assert.Equal(t, 500, statusCodeOf(errors.New("boom")))
}

func TestMultiReporterSkipsNil(t *testing.T) {
	var got []int
	r := MultiReporter(nil, ReporterFunc(func(s Snapshot) { got = append(got, s.Cursor) }), nil)
	r.UpdateProbeSnapshot(Snapshot{Cursor: 4})
	assert.Equal(t, []int{4}, got)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestRunMetrics(t *testing.T) {
	f := newFixture(t)
	completed := runsTotal.WithLabelValues(string(StatusCompleted))
	ok := itemsTotal.WithLabelValues("ok")
	beforeRuns, beforeItems := counterValue(t, completed), counterValue(t, ok)

	_, err := f.p.Start(context.Background(), Batch{CityID: "52", Items: items("A", "B")})
	require.NoError(t, err)
	waitDone(t, f.p)

	assert.InDelta(t, beforeRuns+1, counterValue(t, completed), 0)
	assert.InDelta(t, beforeItems+2, counterValue(t, ok), 0)
}
