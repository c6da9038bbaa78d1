package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/habedi/monitorctl/pkg/pool"
	"github.com/rs/zerolog/log"
)

// pendingRequest is a request that failed authentication while a refresh was in flight.
type pendingRequest struct {
	ctx  context.Context
	req  *preparedRequest
	done chan outcome
}

type outcome struct {
	res *Result
	err error
}

func newPendingRequest(ctx context.Context, req *preparedRequest) *pendingRequest {
	return &pendingRequest{ctx: ctx, req: req, done: make(chan outcome, 1)}
}

// settle delivers the outcome once; later calls are dropped.
func (p *pendingRequest) settle(res *Result, err error) {
	select {
	case p.done <- outcome{res: res, err: err}:
	default:
	}
}

func (p *pendingRequest) wait() (*Result, error) {
	select {
	case o := <-p.done:
		return o.res, o.err
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}

// recoverAuth handles an authentication failure for a request sent with usedToken.
func (c *Client) recoverAuth(ctx context.Context, pr *preparedRequest, usedToken string) (*Result, error) {
	c.mu.Lock()
	if c.refreshing {
		p := newPendingRequest(ctx, pr)
		c.queue = append(c.queue, p)
		queued := len(c.queue)
		c.mu.Unlock()
		log.Debug().Str("method", pr.Method).Str("path", pr.Path).Int("queued", queued).Msg("Refresh in progress, queueing request")
		return p.wait()
	}

	// A refresh finished between sending this request and seeing it fail.
	if current := c.store.AccessToken(); current != "" && current != usedToken {
		epoch := c.epoch
		c.mu.Unlock()
		log.Debug().Str("method", pr.Method).Str("path", pr.Path).Msg("Access token already refreshed, replaying request")
		return c.replay(ctx, pr, current, epoch)
	}

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		c.mu.Unlock()
		log.Info().Msg("Access token rejected and no refresh token is available")
		c.hardLogout(errNoRefreshToken)
		return nil, &SessionExpiredError{Cause: errNoRefreshToken}
	}
	c.refreshing = true
	epoch := c.epoch
	c.mu.Unlock()

	log.Info().Msg("Access token expired or invalid, refreshing...")
	access, err := c.performRefresh(refreshToken, epoch)
	if err != nil {
		log.Error().Err(err).Msg("Token refresh failed")
		c.failRefresh(err)
		return nil, &SessionExpiredError{Cause: err}
	}
	log.Info().Msg("Token refreshed and saved successfully.")
	return c.completeRefresh(ctx, pr, access, epoch)
}

// performRefresh runs the refresh call under its own timeout and stores the new pair.
func (c *Client) performRefresh(refreshToken string, epoch uint64) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	access, refresh, err := c.refresher.PerformTokenRefresh(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to perform token refresh: %w", err)
	}
	if access == "" || refresh == "" {
		return "", fmt.Errorf("refresh response is missing tokens")
	}

	if c.loggedOutSince(epoch) {
		return "", errLoggedOut
	}
	if err := c.store.SetTokens(access, refresh); err != nil {
		// The pair is held in memory even when persisting it failed.
		log.Warn().Err(err).Msg("Failed to persist refreshed tokens")
	}
	// A logout that landed while the pair was being written has already
	// cleared the store; take the pair back out so it cannot outlive it.
	if c.loggedOutSince(epoch) {
		if c.store.AccessToken() == access {
			if err := c.store.ClearTokens(); err != nil {
				log.Error().Err(err).Msg("Failed to clear tokens")
			}
		}
		return "", errLoggedOut
	}
	return access, nil
}

// loggedOutSince reports whether a logout happened after epoch was read.
func (c *Client) loggedOutSince(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}

// completeRefresh returns to idle and replays the queue and the triggering request with the new token.
func (c *Client) completeRefresh(ctx context.Context, pr *preparedRequest, access string, epoch uint64) (*Result, error) {
	queue := c.takeQueue()

	if c.replayOrder == ReplayTriggerFirst {
		res, err := c.replay(ctx, pr, access, epoch)
		c.drain(queue, access, epoch)
		return res, err
	}
	c.drain(queue, access, epoch)
	return c.replay(ctx, pr, access, epoch)
}

// failRefresh logs the session out and rejects everything that waited on the refresh.
func (c *Client) failRefresh(cause error) {
	if errors.Is(cause, errLoggedOut) {
		// The logout that bumped the epoch already redirected the user.
		c.rejectAll(c.takeQueue(), cause)
		return
	}
	if err := c.store.ClearTokens(); err != nil {
		log.Error().Err(err).Msg("Failed to clear tokens")
	}
	c.rejectAll(c.takeQueue(), cause)
	c.notifyExpired()
}

// takeQueue empties the queue and clears the refreshing flag in one step.
func (c *Client) takeQueue() []*pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	return queue
}

// drain replays queued requests in arrival order through the worker pool.
func (c *Client) drain(queue []*pendingRequest, access string, epoch uint64) {
	if len(queue) == 0 {
		return
	}
	log.Debug().Int("count", len(queue)).Msg("Replaying queued requests")
	errs := pool.Run(context.Background(), queue, c.replayWorkers, func(_ context.Context, p *pendingRequest) error {
		if err := p.ctx.Err(); err != nil {
			p.settle(nil, err)
			return err
		}
		res, err := c.replay(p.ctx, p.req, access, epoch)
		p.settle(res, err)
		return err
	})
	if len(errs) > 0 {
		log.Debug().Int("failed", len(errs)).Msg("Some queued requests failed on replay")
	}
}

func (c *Client) rejectAll(queue []*pendingRequest, cause error) {
	for _, p := range queue {
		p.settle(nil, &SessionExpiredError{Cause: cause})
	}
}

// replay re-issues a request with an explicit token obtained at epoch. A second
// authentication failure is not refreshed again; the session is treated as
// expired. Only the first rejection of an epoch logs out and notifies.
func (c *Client) replay(ctx context.Context, pr *preparedRequest, token string, epoch uint64) (*Result, error) {
	res, err := c.send(ctx, pr, token)
	if errors.Is(err, errAuthExpired) {
		log.Warn().Str("method", pr.Method).Str("path", pr.Path).Msg("Replayed request was rejected with a fresh token")
		c.expireSession(epoch, errReplayRejected)
		return nil, &SessionExpiredError{Cause: errReplayRejected}
	}
	return res, err
}
