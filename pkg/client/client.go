// Package client implements the realtime activity client: a single managed
// connection to the activity server with bounded-backoff reconnection, a
// dashboard-room membership state machine and an event dispatcher projecting
// inbound events into a bounded in-memory store.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"activityhub/pkg/types"
)

// Client owns at most one live transport handle. Connect supersedes any
// prior handle; unexpected drops are retried with exponential backoff up to
// the configured attempt cap.
type Client struct {
	opts       Options
	log        zerolog.Logger
	store      *Store
	membership *membership

	mu             sync.Mutex
	sock           Socket
	connected      bool
	connecting     bool
	attempts       int
	gen            uint64 // bumped on every teardown; stale read loops check it
	token          string
	reconnectTimer *time.Timer
	pingStop       chan struct{}
}

// New creates a client. The client is inert until Connect is called.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:       opts,
		log:        opts.Logger.With().Str("component", "activity-client").Logger(),
		store:      NewStore(opts.Sink),
		membership: &membership{},
	}
}

// Store exposes the client-side activity state.
func (c *Client) Store() *Store { return c.store }

// Connected reports whether a live transport handle exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Membership returns the current dashboard-room state.
func (c *Client) Membership() MembershipState {
	return c.membership.current()
}

// Connect establishes a connection authenticated by token. Any prior handle
// and pending reconnect timer are torn down first. On failure the error is
// returned and a reconnect attempt is scheduled per the backoff policy.
func (c *Client) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.connecting = true
	c.token = token
	c.stopReconnectLocked()
	c.teardownLocked()
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	sock, err := c.opts.Dialer.Dial(dialCtx, c.dialURL(token))

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.store.SetConnected(false)
		c.log.Warn().Err(err).Msg("connect failed")
		c.scheduleReconnect()
		return fmt.Errorf("connect: %w", err)
	}

	c.gen++
	gen := c.gen
	c.sock = sock
	c.connected = true
	c.attempts = 0
	pingStop := make(chan struct{})
	c.pingStop = pingStop
	c.mu.Unlock()

	c.store.SetConnected(true)
	go c.readLoop(sock, gen)
	go c.pingLoop(sock, pingStop)
	c.log.Info().Msg("connected")
	return nil
}

// Disconnect releases the transport handle, clears pending reconnects and
// resets membership and request guards. Idempotent. Feed contents are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopReconnectLocked()
	c.teardownLocked()
	c.attempts = 0
	c.mu.Unlock()
	c.store.SetConnected(false)
	c.log.Info().Msg("disconnected")
}

func (c *Client) dialURL(token string) string {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		// Let the dialer report the malformed URL.
		return c.opts.URL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// teardownLocked invalidates any live handle. Held lock required.
func (c *Client) teardownLocked() {
	c.gen++
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.connected = false
	c.membership.reset()
	c.store.ClearDashboard()
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) readLoop(sock Socket, gen uint64) {
	for {
		env, err := sock.ReadEnvelope()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}
		c.dispatch(env)
	}
}

// handleDrop processes a read failure. Stale loops (superseded by a newer
// Connect or an explicit Disconnect) return without side effects.
func (c *Client) handleDrop(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.mu.Unlock()
	c.store.SetConnected(false)

	if errors.Is(err, ErrForcedDisconnect) {
		c.log.Warn().Err(err).Msg("server forced disconnect; manual reconnect required")
		return
	}
	c.log.Warn().Err(err).Msg("connection dropped")
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives up
// once the attempt cap is reached.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts >= c.opts.MaxReconnects {
		c.log.Error().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
		return
	}
	delay := c.backoffDelay(c.attempts)
	c.attempts++
	attempt := c.attempts
	token := c.token
	c.log.Info().Dur("delay", delay).Int("attempt", attempt).Msg("scheduling reconnect")
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.Connect(context.Background(), token); err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
		}
	})
}

// backoffDelay returns base << attempt capped at the configured maximum.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.opts.ReconnectBase << attempt
	if d <= 0 || d > c.opts.ReconnectMax {
		d = c.opts.ReconnectMax
	}
	return d
}

// pingLoop emits an advisory liveness ping while the handle is live. Pongs
// are logged by the dispatcher; no failure detection hangs off this.
func (c *Client) pingLoop(sock Socket, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			env, err := types.NewEnvelope(types.EventPing, nil)
			if err != nil {
				return
			}
			if err := sock.WriteEnvelope(env); err != nil {
				c.log.Debug().Err(err).Msg("ping write failed")
				return
			}
		case <-stop:
			return
		}
	}
}
