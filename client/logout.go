package client

import "github.com/rs/zerolog/log"

// Logout terminates the session: it clears the stored tokens, fails every
// queued request, redirects to login and shows the session-expired notice.
// Calling it again while logged out only repeats the notifications.
func (c *Client) Logout() error {
	return c.hardLogout(nil)
}

// expireSession logs out unless a logout already ended the session of epoch.
func (c *Client) expireSession(epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	queue := c.endEpochLocked()
	c.mu.Unlock()
	_ = c.finishLogout(queue, cause)
}

func (c *Client) hardLogout(cause error) error {
	c.mu.Lock()
	queue := c.endEpochLocked()
	c.mu.Unlock()
	return c.finishLogout(queue, cause)
}

// endEpochLocked starts a new epoch before the tokens are cleared, so a
// refresh committing concurrently sees the logout. c.mu must be held.
func (c *Client) endEpochLocked() []*pendingRequest {
	c.epoch++
	queue := c.queue
	c.queue = nil
	return queue
}

func (c *Client) finishLogout(queue []*pendingRequest, cause error) error {
	err := c.store.ClearTokens()
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear tokens")
	}
	c.rejectAll(queue, cause)
	c.notifyExpired()
	return err
}

func (c *Client) notifyExpired() {
	c.navigator.RedirectToLogin()
	c.notifier.NotifyError(SessionExpiredMessage)
}
