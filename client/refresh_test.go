package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habedi/monitorctl/client"
	"github.com/habedi/monitorctl/internal/fakeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// echoRoute registers an authenticated route that records the bearer token of every accepted request.
func echoRoute(srv *fakeapi.Server) func() []string {
	var mu sync.Mutex
	var seen []string
	srv.HandleFunc("/test/echo", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"code":200,"msg":"ok","data":{"n":%q}}`, r.URL.Query().Get("n"))
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func echo(n string) *client.Request {
	return &client.Request{Path: "/test/echo", Query: map[string][]string{"n": {n}}}
}

func fire(c *client.Client, n int) (*sync.WaitGroup, []error) {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), echo(fmt.Sprint(i)))
		}(i)
	}
	return &wg, errs
}

func TestConcurrentAuthFailuresShareOneRefresh(t *testing.T) {
	for _, envelope := range []bool{false, true} {
		t.Run(fmt.Sprintf("envelope401=%v", envelope), func(t *testing.T) {
			srv := fakeapi.New()
			defer srv.Close()
			seen := echoRoute(srv)
			srv.SetEnvelopeUnauthorized(envelope)

			store := newMemStore(srv.Login(fakeapi.DefaultUsername))
			srv.ExpireAccessTokens()
			release := srv.HoldRefresh()
			defer release()

			c := newClient(t, srv.BaseURL(), store, &recorder{})
			const n = 8
			wg, errs := fire(c, n)

			require.Eventually(t, func() bool { return c.Pending() == n-1 }, waitFor, 5*time.Millisecond)
			assert.True(t, c.Refreshing())
			release()
			wg.Wait()

			for _, err := range errs {
				assert.NoError(t, err)
			}
			assert.Equal(t, int64(1), srv.RefreshCalls())
			assert.False(t, c.Refreshing())
			assert.Zero(t, c.Pending())

			tokens := seen()
			require.Len(t, tokens, n, "each request is replayed exactly once")
			for _, tok := range tokens {
				assert.Equal(t, "Bearer "+store.AccessToken(), tok)
			}
		})
	}
}

func TestFailedRefreshRejectsEveryone(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	echoRoute(srv)

	store := newMemStore(srv.Login(fakeapi.DefaultUsername))
	srv.ExpireAccessTokens()
	srv.SetRefreshFails(true)
	release := srv.HoldRefresh()
	defer release()

	rec := &recorder{}
	c := newClient(t, srv.BaseURL(), store, rec)
	const n = 5
	wg, errs := fire(c, n)
	require.Eventually(t, func() bool { return c.Pending() == n-1 }, waitFor, 5*time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, client.ErrSessionExpired)
	}
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.Equal(t, 1, rec.Redirects())
	assert.Equal(t, []string{client.SessionExpiredMessage}, rec.Notices())
	assert.False(t, c.Refreshing())
}

// Two requests fail, the refresh answers late with new-a/new-r, both replays carry new-a.
func TestScenarioDelayedRefreshServesBothCallers(t *testing.T) {
	var mu sync.Mutex
	var replayed []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		replayed = append(replayed, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"code":200,"msg":"ok","data":{"retried":true}}`))
	}))
	defer server.Close()

	refresher := &stubRefresher{gate: make(chan struct{}), access: "new-a", refresh: "new-r"}
	store := newMemStore("old-a", "old-r")
	c := newClient(t, server.URL, store, &recorder{}, client.WithRefresher(refresher))

	var wg sync.WaitGroup
	results := make([]*client.Result, 2)
	errs := make([]error, 2)
	for i, path := range []string{"/a", "/b"} {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i], errs[i] = c.Do(context.Background(), &client.Request{Path: path})
		}(i, path)
	}
	require.Eventually(t, func() bool { return c.Pending() == 1 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(refresher.gate)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		var out struct{ Retried bool }
		require.NoError(t, results[i].Decode(&out))
		assert.True(t, out.Retried)
	}
	assert.ElementsMatch(t, []string{"/a", "/b"}, replayed)
	assert.Equal(t, "new-a", store.AccessToken())
	assert.Equal(t, "new-r", store.RefreshToken())
}

// The refresh endpoint answers code 500: both callers fail, the store is emptied, one redirect.
func TestScenarioRefreshBusinessFailure(t *testing.T) {
	gate := make(chan struct{})
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-gate
		_, _ = w.Write([]byte(`{"code":500,"msg":"refresh token revoked"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":401,"msg":"token expired"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	}()

	store := newMemStore("old-a", "old-r")
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), &client.Request{Path: "/user/profile"})
		}(i)
	}
	require.Eventually(t, func() bool { return c.Pending() == 1 }, waitFor, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, client.ErrSessionExpired)
	}
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.Equal(t, 1, rec.Redirects())
}

func TestStaleTokenIsReplayedWithoutRefresh(t *testing.T) {
	store := newMemStore("old-a", "old-r")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer old-a" {
			// Another caller finished a refresh while this request was in flight.
			_ = store.SetTokens("fresh-a", "fresh-r")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":"ok"}`))
	}))
	defer server.Close()

	refresher := &stubRefresher{access: "never", refresh: "never"}
	c := newClient(t, server.URL, store, &recorder{}, client.WithRefresher(refresher))
	_, err := c.Do(context.Background(), &client.Request{Path: "/user/profile"})
	require.NoError(t, err)
	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, "fresh-a", store.AccessToken())
}

func TestReplayRejectedEndsSession(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &stubRefresher{access: "new-a", refresh: "new-r"}
	store := newMemStore("old-a", "old-r")
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec, client.WithRefresher(refresher))

	_, err := c.Do(context.Background(), &client.Request{Path: "/user/profile"})
	assert.ErrorIs(t, err, client.ErrSessionExpired)
	assert.Equal(t, int32(1), refresher.calls.Load(), "a rejected replay is not refreshed again")
	assert.Equal(t, int32(2), hits.Load())
	assert.Empty(t, store.AccessToken())
	assert.Equal(t, 1, rec.Redirects())
}

func TestReplayRejectedAgainstFakeBackend(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	echoRoute(srv)

	store := newMemStore(srv.Login(fakeapi.DefaultUsername))
	srv.ExpireAccessTokens()
	srv.SetRejectRefreshedTokens(true)

	rec := &recorder{}
	c := newClient(t, srv.BaseURL(), store, rec)
	_, err := c.Do(context.Background(), echo("x"))
	assert.ErrorIs(t, err, client.ErrSessionExpired)
	assert.Equal(t, int64(1), srv.RefreshCalls())
	assert.Equal(t, 1, rec.Redirects())
}

func TestMissingRefreshTokenLogsOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &stubRefresher{access: "a", refresh: "r"}
	store := newMemStore("only-access", "")
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec, client.WithRefresher(refresher))

	_, err := c.Do(context.Background(), &client.Request{Path: "/user/profile"})
	assert.ErrorIs(t, err, client.ErrSessionExpired)
	assert.Zero(t, refresher.calls.Load())
	assert.Empty(t, store.AccessToken())
	assert.Equal(t, 1, rec.Redirects())
}

func TestRefreshTimeoutIsRefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &stubRefresher{gate: make(chan struct{}), access: "a", refresh: "r"}
	store := newMemStore("old-a", "old-r")
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec, client.WithRefresher(refresher), client.WithRefreshTimeout(100*time.Millisecond))

	_, err := c.Do(context.Background(), &client.Request{Path: "/user/profile"})
	assert.ErrorIs(t, err, client.ErrSessionExpired)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, store.AccessToken())
	assert.Equal(t, 1, rec.Redirects())
}

func TestPersistFailureKeepsSessionUsable(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	echoRoute(srv)

	store := newMemStore(srv.Login(fakeapi.DefaultUsername))
	store.setErr = errors.New("disk full")
	srv.ExpireAccessTokens()

	c := newClient(t, srv.BaseURL(), store, &recorder{})
	_, err := c.Do(context.Background(), echo("x"))
	require.NoError(t, err)
	assert.NotEmpty(t, store.AccessToken())
}

func TestReplayOrder(t *testing.T) {
	cases := []struct {
		order client.ReplayOrder
		want  []string
	}{
		{client.ReplayQueuedFirst, []string{"B", "C", "A"}},
		{client.ReplayTriggerFirst, []string{"A", "B", "C"}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.order), func(t *testing.T) {
			srv := fakeapi.New()
			defer srv.Close()
			var mu sync.Mutex
			var order []string
			srv.HandleFunc("/test/echo", func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				order = append(order, r.URL.Query().Get("n"))
				mu.Unlock()
				_, _ = w.Write([]byte(`{"code":200,"data":{}}`))
			})

			store := newMemStore(srv.Login(fakeapi.DefaultUsername))
			srv.ExpireAccessTokens()
			release := srv.HoldRefresh()
			defer release()
			c := newClient(t, srv.BaseURL(), store, &recorder{}, client.WithReplayOrder(tc.order))

			var wg sync.WaitGroup
			run := func(n string) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := c.Do(context.Background(), echo(n))
					assert.NoError(t, err)
				}()
			}
			run("A")
			select {
			case <-srv.RefreshStarted():
			case <-time.After(waitFor):
				t.Fatal("refresh never started")
			}
			run("B")
			require.Eventually(t, func() bool { return c.Pending() == 1 }, waitFor, 5*time.Millisecond)
			run("C")
			require.Eventually(t, func() bool { return c.Pending() == 2 }, waitFor, 5*time.Millisecond)
			release()
			wg.Wait()

			assert.Equal(t, tc.want, order)
		})
	}
}

func TestQueuedCallerCanGiveUp(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	seen := echoRoute(srv)

	store := newMemStore(srv.Login(fakeapi.DefaultUsername))
	srv.ExpireAccessTokens()
	release := srv.HoldRefresh()
	defer release()
	c := newClient(t, srv.BaseURL(), store, &recorder{})

	triggerDone := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), echo("trigger"))
		triggerDone <- err
	}()
	<-srv.RefreshStarted()

	ctx, cancel := context.WithCancel(context.Background())
	queuedDone := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, echo("queued"))
		queuedDone <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, waitFor, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-queuedDone, context.Canceled)

	release()
	require.NoError(t, <-triggerDone)
	assert.Len(t, seen(), 1, "the abandoned request is not replayed")
}

func TestLogoutDuringRefreshWins(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	echoRoute(srv)

	store := newMemStore(srv.Login(fakeapi.DefaultUsername))
	srv.ExpireAccessTokens()
	release := srv.HoldRefresh()
	defer release()
	rec := &recorder{}
	c := newClient(t, srv.BaseURL(), store, rec)

	done := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), echo("x"))
		done <- err
	}()
	<-srv.RefreshStarted()

	require.NoError(t, c.Logout())
	release()

	assert.ErrorIs(t, <-done, client.ErrSessionExpired)
	assert.Empty(t, store.AccessToken(), "a refresh that finishes after logout does not revive the session")
	assert.Equal(t, 1, rec.Redirects())
	assert.False(t, c.Refreshing())
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := newMemStore("a", "r")
	rec := &recorder{}
	c := newClient(t, "http://localhost:1", store, rec)

	require.NoError(t, c.Logout())
	assert.Empty(t, store.AccessToken())
	require.NoError(t, c.Logout())
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.Equal(t, 2, rec.Redirects())
	assert.Equal(t, []string{client.SessionExpiredMessage, client.SessionExpiredMessage}, rec.Notices())
}

// pausingStore blocks the first SetTokens call between announcing it and writing the pair.
type pausingStore struct {
	*memStore
	once    sync.Once
	entered chan struct{}
	resume  chan struct{}
}

func (p *pausingStore) SetTokens(access, refresh string) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.resume
	})
	return p.memStore.SetTokens(access, refresh)
}

func TestLogoutWhileRefreshCommitsDoesNotRevive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer old-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"ok":true}}`))
	}))
	defer server.Close()

	store := &pausingStore{
		memStore: newMemStore("old-a", "old-r"),
		entered:  make(chan struct{}),
		resume:   make(chan struct{}),
	}
	refresher := &stubRefresher{access: "new-a", refresh: "new-r"}
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec, client.WithRefresher(refresher))

	done := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), &client.Request{Path: "/user/profile"})
		done <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(waitFor):
		t.Fatal("refresh never reached SetTokens")
	}
	require.NoError(t, c.Logout())
	close(store.resume)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, client.ErrSessionExpired)
	case <-time.After(waitFor):
		t.Fatal("caller did not return")
	}
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.Equal(t, 1, rec.Redirects())
	assert.False(t, c.Refreshing())
}

func TestRejectedReplaysNotifyOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &stubRefresher{gate: make(chan struct{}), access: "new-a", refresh: "new-r"}
	store := newMemStore("old-a", "old-r")
	rec := &recorder{}
	c := newClient(t, server.URL, store, rec, client.WithRefresher(refresher))

	wg, errs := fire(c, 4)
	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1 && c.Pending() == 3
	}, waitFor, 5*time.Millisecond)
	close(refresher.gate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, client.ErrSessionExpired)
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, 1, rec.Redirects())
	assert.Equal(t, []string{client.SessionExpiredMessage}, rec.Notices())
	assert.Empty(t, store.AccessToken())
}
