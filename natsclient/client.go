// Package natsclient wraps a NATS connection for fact delta ingestion and
// state change publication.
package natsclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/metric"
)

// Client manages a single NATS connection, its subscriptions, and connection
// state metrics. It reconnects on its own through the nats.go reconnect
// machinery.
type Client struct {
	url        string
	clientName string

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	username string
	password string
	token    string

	logger  Logger
	metrics *metric.Metrics

	mu     sync.RWMutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	closed atomic.Bool
}

// NewClient creates a NATS client for the given server URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		clientName:    "factflow",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		logger:        &defaultLogger{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string {
	return c.url
}

// IsHealthy reports whether the connection is established and live.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Errorf("Disconnected from NATS: %v", err)
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(false)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Printf("Reconnected to NATS at %s", conn.ConnectedUrl())
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(true)
				c.metrics.RecordNATSReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Debugf("NATS connection closed")
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(false)
			}
		}),
	}

	switch {
	case c.token != "":
		opts = append(opts, nats.Token(c.token))
	case c.username != "":
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}

	return opts
}

// Connect establishes the connection, honoring ctx cancellation while the
// initial dial is in flight.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Printf("Connecting to NATS at %s", c.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
		if err != nil {
			connectDone <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	if c.metrics != nil {
		c.metrics.RecordNATSStatus(true)
	}
	c.logger.Printf("Connected to NATS at %s", c.url)
	return nil
}

// Subscribe registers a handler for a subject. Each delivery gets a context
// derived from ctx with a per-message timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Subscribe", "check connection")
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe to subject")
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Publish sends data to a subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "check connection")
	}

	return conn.Publish(subject, data)
}

// Close unsubscribes everything and drains the connection. Safe to call more
// than once; only the first call does work. The drain is bounded by the
// context deadline when one is set.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Errorf("Failed to unsubscribe: %v", err)
		}
	}
	c.subs = nil

	if c.conn == nil {
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			c.conn.Close()
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		c.conn.Close()
		c.logger.Errorf("Drain timed out after %v, connection closed hard", drainTimeout)
	}

	c.conn = nil
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(false)
	}
	return nil
}
