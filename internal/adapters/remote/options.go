package remote

import (
	"net/http"
	"time"

	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the REST transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDialFunc replaces the websocket dialer.
func WithDialFunc(d DialFunc) Option {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithStatusFunc registers a connection state change callback.
func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Client) {
		c.onStatus = fn
	}
}

// WithHeartbeatInterval sets how often heartbeats are sent.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithHeartbeatTimeout sets how long a missing ack is tolerated.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatTimeout = d
		}
	}
}

// WithReconnectDelay sets the fixed delay between dial attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithMaxReconnects caps consecutive dial attempts before the client
// degrades.
func WithMaxReconnects(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxReconnects = n
		}
	}
}

// WithFetchTimeout bounds a single REST fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithTracker wires a runtime statistics tracker.
func WithTracker(t *stats.Tracker) Option {
	return func(c *Client) {
		c.tracker = t
	}
}

// WithLogger replaces the default named logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
