package client_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/habedi/monitorctl/client"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	access  string
	refresh string
	setErr  error
	sets    int
	clears  int
}

func newMemStore(access, refresh string) *memStore {
	return &memStore{access: access, refresh: refresh}
}

func (m *memStore) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *memStore) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

func (m *memStore) SetTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.access, m.refresh = access, refresh
	return m.setErr
}

func (m *memStore) ClearTokens() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.access, m.refresh = "", ""
	return nil
}

// recorder implements both client.Navigator and client.Notifier.
type recorder struct {
	mu        sync.Mutex
	redirects int
	notices   []string
}

func (r *recorder) RedirectToLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects++
}

func (r *recorder) NotifyError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

func (r *recorder) Redirects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirects
}

func (r *recorder) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

type stubRefresher struct {
	calls   atomic.Int32
	gate    chan struct{}
	access  string
	refresh string
	err     error
}

func (s *stubRefresher) PerformTokenRefresh(ctx context.Context, _ string) (string, string, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", "", s.err
	}
	return s.access, s.refresh, nil
}

func newClient(t *testing.T, baseURL string, store client.TokenStore, rec *recorder, opts ...client.Option) *client.Client {
	t.Helper()
	if rec != nil {
		opts = append(opts, client.WithNavigator(rec), client.WithNotifier(rec))
	}
	c, err := client.New(baseURL, store, opts...)
	require.NoError(t, err)
	return c
}
