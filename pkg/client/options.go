package client

import (
	"time"

	"github.com/rs/zerolog"
)

// Default lifecycle tunables.
const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectMax   = 30 * time.Second
	DefaultMaxReconnects  = 5
)

// Options configures a Client. Zero values fall back to the defaults above,
// a nil Dialer to the real WebSocket dialer and a nil Sink to NopSink.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/ws. The bearer
	// token is attached as a query parameter on each dial.
	URL string

	// Role of the authenticated user, when known. JoinDashboard refuses
	// non-admin roles before emitting anything; the server re-verifies
	// regardless, so leaving this empty only skips the local check.
	Role string

	ConnectTimeout time.Duration
	PingInterval   time.Duration

	// Reconnect backoff: delay = ReconnectBase << attempt, capped at
	// ReconnectMax, for at most MaxReconnects scheduled attempts.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	MaxReconnects int

	Dialer Dialer
	Sink   Sink
	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = DefaultReconnectBase
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = DefaultReconnectMax
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = DefaultMaxReconnects
	}
	if o.Dialer == nil {
		o.Dialer = WebSocketDialer{}
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	return o
}
