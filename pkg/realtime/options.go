package realtime

import (
	"github.com/bitechdev/JobFeed/pkg/backoff"
	"github.com/bitechdev/JobFeed/pkg/metrics"
)

// Option configures a Client.
type Option func(*Client)

// WithTokenProvider sets where connection credentials come from.
// The provider is consulted before every attempt, including reconnects.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithBackoff sets the reconnect delay policy.
func WithBackoff(p backoff.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithMetrics sets the metrics provider. Defaults to metrics.GetProvider().
func WithMetrics(p metrics.Provider) Option {
	return func(c *Client) {
		c.metrics = p
	}
}

// WithPublishLimit throttles Publish per topic. rps <= 0 disables throttling.
func WithPublishLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = newPublishLimiter(rps, burst)
	}
}

// WithStateHook registers fn to observe state changes. fn runs with the
// client lock held and must not call back into the Client.
func WithStateHook(fn func(State)) Option {
	return func(c *Client) {
		c.stateHook = fn
	}
}
