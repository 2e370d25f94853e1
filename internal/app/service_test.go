// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/actionprobe/internal/cache"
	"github.com/ManuGH/actionprobe/internal/clock"
	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/kassir"
	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/session"
	"github.com/ManuGH/actionprobe/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	listCalls   atomic.Int32
	detailCalls atomic.Int32
	list        func(ctx context.Context, cityID string) ([]action.Action, error)
	detail      func(ctx context.Context, actionID string) (action.Detail, error)
}

func (f *fakeRemote) ListActions(ctx context.Context, _, cityID string) ([]action.Action, error) {
	f.listCalls.Add(1)
	if f.list != nil {
		return f.list(ctx, cityID)
	}
	return sampleActions(cityID), nil
}

func (f *fakeRemote) GetActionDetail(ctx context.Context, _, _, actionID, _ string) (action.Detail, error) {
	f.detailCalls.Add(1)
	if f.detail != nil {
		return f.detail(ctx, actionID)
	}
	return action.Detail{ActionID: actionID, Available: true}, nil
}

func sampleActions(cityID string) []action.Action {
	return []action.Action{
		{ID: "1", CityID: cityID, Venues: map[string]string{"10": "Hall"}, MinPrice: 500},
		{ID: "2", CityID: cityID, Venues: map[string]string{"11": "Club"}, MinPrice: 1500},
		{ID: "3", CityID: cityID, Venues: map[string]string{"10": "Hall"}, MinPrice: 500},
	}
}

type fixture struct {
	store   *cache.Store
	remote  *fakeRemote
	session *session.State
	svc     *Service
	clk     *clock.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(epoch)
	f := &fixture{
		store:   cache.New(storage.NewMemory(), cache.WithClock(clk)),
		remote:  &fakeRemote{},
		session: session.New("52"),
		clk:     clk,
	}
	f.svc = New(f.store, f.remote, f.session, Config{APIKey: "key"}, WithClock(clk))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, f.svc.Shutdown(ctx))
	})
	return f
}

func TestFetchListing_CacheFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.FetchListing(ctx, "", false)
	require.NoError(t, err)
	assert.False(t, l.Cached)
	assert.Len(t, l.Actions, 3)
	assert.Equal(t, epoch, l.StoredAt)
	assert.EqualValues(t, 1, f.remote.listCalls.Load())

	installed, ok := f.session.Listing()
	require.True(t, ok)
	assert.Equal(t, "52", installed.CityID)

	f.clk.Advance(time.Hour)
	l, err = f.svc.FetchListing(ctx, "52", false)
	require.NoError(t, err)
	assert.True(t, l.Cached)
	assert.Equal(t, epoch, l.StoredAt)
	assert.EqualValues(t, 1, f.remote.listCalls.Load(), "valid entry skips the remote")

	l, err = f.svc.FetchListing(ctx, "52", true)
	require.NoError(t, err)
	assert.False(t, l.Cached)
	assert.EqualValues(t, 2, f.remote.listCalls.Load())
}

func TestFetchListing_StaleEntryRefetches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FetchListing(ctx, "52", false)
	require.NoError(t, err)

	f.clk.Advance(24*time.Hour + time.Millisecond)
	l, err := f.svc.FetchListing(ctx, "52", false)
	require.NoError(t, err)
	assert.False(t, l.Cached)
	assert.EqualValues(t, 2, f.remote.listCalls.Load())
}

func TestFetchListing_OtherCityLeavesSession(t *testing.T) {
	f := newFixture(t)

	l, err := f.svc.FetchListing(context.Background(), "77", false)
	require.NoError(t, err)
	assert.Equal(t, "77", l.CityID)

	_, ok := f.session.Listing()
	assert.False(t, ok)
}

func TestFetchListing_RemoteErrorIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.remote.list = func(context.Context, string) ([]action.Action, error) {
		return nil, &kassir.RemoteError{Sentinel: kassir.ErrForbidden, HTTPStatus: http.StatusForbidden, Message: "bad key"}
	}

	_, err := f.svc.FetchListing(context.Background(), "52", false)
	var remoteErr *kassir.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusForbidden, remoteErr.StatusCode())

	summaries, err := f.svc.Listings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestFetchListing_EmptyCityRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.SetCity("52"))
	_, err := f.svc.FetchListing(context.Background(), " ", false)
	assert.ErrorIs(t, err, action.ErrInvalidID)
}

func TestFetchListing_ConcurrentCallsShareRequest(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.remote.list = func(_ context.Context, cityID string) ([]action.Action, error) {
		<-release
		return sampleActions(cityID), nil
	}

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.FetchListing(context.Background(), "52", true)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return f.remote.listCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.remote.listCalls.Load())
}

func TestStartProbe_RequiresListing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartProbe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoListing)
}

func TestStartProbe_ProbesFilteredActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.FetchListing(ctx, "52", false)
	require.NoError(t, err)

	price := 500.0
	f.session.SetFilter(&price)

	zero := time.Duration(0)
	snap, err := f.svc.StartProbe(ctx, &zero)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, snap.Items)

	final, err := f.svc.WaitProbe(ctx)
	require.NoError(t, err)
	assert.Equal(t, probe.StatusCompleted, final.Status)
	assert.EqualValues(t, 2, f.remote.detailCalls.Load())

	// the session received the final report
	assert.Equal(t, probe.StatusCompleted, f.session.Probe().Status)
	assert.Equal(t, final.RunID, f.session.Snapshot().Probe.RunID)
}

func TestStartProbe_RunOutlivesRequestContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FetchListing(context.Background(), "52", false)
	require.NoError(t, err)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	zero := time.Duration(0)
	_, err = f.svc.StartProbe(reqCtx, &zero)
	require.NoError(t, err)
	cancelReq()

	final, err := f.svc.WaitProbe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probe.StatusCompleted, final.Status)
}

func TestSetCity_RefusedWhileRunning(t *testing.T) {
	f := newFixture(t)
	inFlight := make(chan struct{}, 1)
	f.remote.detail = func(ctx context.Context, _ string) (action.Detail, error) {
		select {
		case inFlight <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return action.Detail{}, ctx.Err()
	}
	_, err := f.svc.FetchListing(context.Background(), "52", false)
	require.NoError(t, err)

	_, err = f.svc.StartProbe(context.Background(), nil)
	require.NoError(t, err)
	<-inFlight

	assert.ErrorIs(t, f.svc.SetCity("77"), probe.ErrAlreadyRunning)
	assert.True(t, f.svc.StopProbe())

	final, err := f.svc.WaitProbe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probe.StatusCancelled, final.Status)
	assert.Empty(t, final.Results, "the in-flight result is discarded")

	require.NoError(t, f.svc.SetCity("77"))
	assert.Equal(t, "77", f.session.CityID())
}

func TestShutdownCancelsRun(t *testing.T) {
	f := newFixture(t)
	f.remote.detail = func(ctx context.Context, _ string) (action.Detail, error) {
		<-ctx.Done()
		return action.Detail{}, ctx.Err()
	}
	_, err := f.svc.FetchListing(context.Background(), "52", false)
	require.NoError(t, err)
	_, err = f.svc.StartProbe(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Shutdown(context.Background()))
	assert.Equal(t, probe.StatusCancelled, f.svc.Probe().Status)
}

func TestClearCacheAndListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, city := range []string{"52", "77"} {
		_, err := f.svc.FetchListing(ctx, city, false)
		require.NoError(t, err)
	}

	summaries, err := f.svc.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "52", summaries[0].CityID)
	assert.Equal(t, 3, summaries[0].Actions)
	assert.True(t, summaries[0].Valid)

	n, err := f.svc.ClearCache(ctx, cache.NamespacePrefix(cache.NamespaceListing))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	summaries, err = f.svc.Listings(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestClearCityKeepsOtherCities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, city := range []string{"52", "77"} {
		_, err := f.svc.FetchListing(ctx, city, false)
		require.NoError(t, err)
	}

	n, err := f.svc.ClearCity(ctx, "52")
	require.NoError(t, err)
	assert.Zero(t, n)

	summaries, err := f.svc.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "77", summaries[0].CityID)

	_, err = f.svc.ClearCity(ctx, " ")
	assert.ErrorIs(t, err, action.ErrInvalidID)
}

func TestStartProbe_ItemsAlwaysBelongToRunCity(t *testing.T) {
	f := newFixture(t)
	f.remote.list = func(_ context.Context, cityID string) ([]action.Action, error) {
		return []action.Action{
			{ID: cityID + "-1", CityID: cityID, Venues: map[string]string{"10": "Hall"}},
			{ID: cityID + "-2", CityID: cityID, Venues: map[string]string{"10": "Hall"}},
		}, nil
	}
	ctx := context.Background()
	_, err := f.svc.FetchListing(ctx, "", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		cities := []string{"77", "52"}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if f.svc.SetCity(cities[i%2]) == nil {
				_, _ = f.svc.FetchListing(ctx, "", false)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		snap, err := f.svc.StartProbe(ctx, nil)
		if err != nil {
			continue
		}
		for _, id := range snap.Items {
			assert.Equal(t, snap.CityID+"-", id[:len(snap.CityID)+1], "run %s", snap.RunID)
		}
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err = f.svc.WaitProbe(waitCtx)
		cancel()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestStartProbe_AlreadyRunningPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.remote.detail = func(ctx context.Context, _ string) (action.Detail, error) {
		<-ctx.Done()
		return action.Detail{}, ctx.Err()
	}
	_, err := f.svc.FetchListing(context.Background(), "52", false)
	require.NoError(t, err)
	_, err = f.svc.StartProbe(context.Background(), nil)
	require.NoError(t, err)

	_, err = f.svc.StartProbe(context.Background(), nil)
	assert.True(t, errors.Is(err, probe.ErrAlreadyRunning))
}
