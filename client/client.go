package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds every outbound API request.
	DefaultTimeout = 5 * time.Second
	// DefaultRefreshTimeout bounds the refresh call shared by all waiting requests.
	DefaultRefreshTimeout = 10 * time.Second
	// RefreshPath is the backend endpoint exchanging a refresh token for a new pair.
	RefreshPath = "/auth/refresh"
)

// TokenStore holds the current access/refresh token pair and persists it.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(accessToken, refreshToken string) error
	ClearTokens() error
}

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	PerformTokenRefresh(ctx context.Context, refreshToken string) (accessToken string, newRefreshToken string, err error)
}

// Navigator sends the user back to the login entry point.
type Navigator interface {
	RedirectToLogin()
}

// Notifier surfaces a user-visible error notice.
type Notifier interface {
	NotifyError(message string)
}

// ReplayOrder decides whether queued requests or the request that triggered a refresh are replayed first.
type ReplayOrder int

const (
	// ReplayQueuedFirst replays waiting requests before the one that started the refresh.
	ReplayQueuedFirst ReplayOrder = iota
	// ReplayTriggerFirst replays the request that started the refresh first.
	ReplayTriggerFirst
)

// ParseReplayOrder maps "queued-first" and "trigger-first" onto a ReplayOrder.
func ParseReplayOrder(s string) (ReplayOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "queued-first", "queued":
		return ReplayQueuedFirst, nil
	case "trigger-first", "trigger":
		return ReplayTriggerFirst, nil
	}
	return ReplayQueuedFirst, fmt.Errorf("invalid replay order: %s (must be one of: queued-first, trigger-first)", s)
}

// Client issues API requests and silently refreshes an expired access token.
// At most one refresh call is outstanding at a time; requests that fail
// authentication meanwhile are queued and replayed once it resolves.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   TokenStore

	refresher      TokenRefresher
	refreshTimeout time.Duration
	navigator      Navigator
	notifier       Notifier

	replayOrder   ReplayOrder
	replayWorkers int
	retryAttempts int
	retryBackoff  time.Duration
	limiter       *RateLimiter

	mu         sync.Mutex
	refreshing bool
	queue      []*pendingRequest
	// epoch is bumped by every hard logout so a refresh that started before it cannot revive the session.
	epoch uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport used for API requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRefresher replaces the refresh call, which by default posts to RefreshPath.
func WithRefresher(r TokenRefresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithRefreshTimeout bounds the refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithNavigator sets where the user is sent when the session ends.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.navigator = n
		}
	}
}

// WithNotifier sets how the session-expired notice is shown.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithReplayOrder sets the order in which requests are replayed after a refresh.
func WithReplayOrder(o ReplayOrder) Option {
	return func(c *Client) { c.replayOrder = o }
}

// WithReplayConcurrency sets how many queued requests are replayed in parallel.
// One worker, the default, keeps strict arrival order.
func WithReplayConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.replayWorkers = n
		}
	}
}

// WithRetry retries idempotent requests on network errors and 5xx responses,
// doubling the backoff after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithRateLimit throttles binary responses streamed into Request.Output.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(c *Client) { c.limiter = NewRateLimiter(bytesPerSecond) }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL:        u,
		http:           &http.Client{Timeout: DefaultTimeout},
		store:          store,
		refreshTimeout: DefaultRefreshTimeout,
		navigator:      nopNavigator{},
		notifier:       logNotifier{},
		replayWorkers:  1,
		retryAttempts:  1,
		retryBackoff:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.refresher == nil {
		c.refresher = NewHTTPRefresher(c.endpoint(RefreshPath))
	}
	return c, nil
}

// BaseURL returns the API root the client resolves paths against.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Store returns the token store the client reads credentials from.
func (c *Client) Store() TokenStore { return c.store }

// Refreshing reports whether a refresh call is outstanding.
func (c *Client) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending reports how many requests are waiting on the outstanding refresh.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Do sends req with the current access token. An authentication failure is
// recovered by refreshing the token and replaying req; the caller only sees
// the replay's result, or ErrSessionExpired when the session cannot be recovered.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	pr, err := prepare(req)
	if err != nil {
		return nil, err
	}
	token := c.store.AccessToken()
	res, err := c.send(ctx, pr, token)
	if errors.Is(err, errAuthExpired) {
		return c.recoverAuth(ctx, pr, token)
	}
	return res, err
}

// DoJSON sends req and decodes the payload into out when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) error {
	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}

func (c *Client) endpoint(path string) string {
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		return path
	}
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

type nopNavigator struct{}

func (nopNavigator) RedirectToLogin() {}

type logNotifier struct{}

func (logNotifier) NotifyError(message string) { log.Error().Msg(message) }
