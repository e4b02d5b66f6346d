package realtime

import (
	"context"
	"time"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// reconnect redials until it succeeds or life is cancelled by Disconnect.
// The attempt count only grows while failing; establish resets it.
func (c *Client) reconnect(life context.Context, a *attempt) {
	for {
		c.mu.Lock()
		n := c.attempts
		c.mu.Unlock()

		delay := c.policy.Delay(n)
		logger.Info("[Realtime] Reconnecting via %s in %s (attempt %d)", c.transport.Name(), delay, n+1)

		timer := time.NewTimer(delay)
		select {
		case <-life.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.inflight != a {
			c.mu.Unlock()
			return
		}
		c.attempts++
		n = c.attempts
		c.mu.Unlock()

		sess, err := c.open(life, life, "reconnect", n)
		if err != nil {
			logger.Warn("[Realtime] Reconnect attempt %d via %s failed: %v", n, c.transport.Name(), err)
			continue
		}

		if !c.establish(sess, a) {
			return
		}
		logger.Info("[Realtime] Reconnected via %s after %d attempt(s)", c.transport.Name(), n)
		return
	}
}
