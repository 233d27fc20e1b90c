package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"activityhub/internal/auth"
	"activityhub/pkg/types"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Connection wraps a websocket with a single-writer goroutine. All outbound
// traffic goes through the send channel so concurrent senders never touch the
// socket directly.
type Connection struct {
	identity auth.Identity
	sock     *websocket.Conn
	log      zerolog.Logger

	sendCh  chan *types.Envelope
	closeCh chan struct{}
	once    sync.Once
}

func NewConnection(identity auth.Identity, sock *websocket.Conn, log zerolog.Logger) *Connection {
	c := &Connection{
		identity: identity,
		sock:     sock,
		log:      log.With().Str("component", "ws").Str("user", identity.UserID).Logger(),
		sendCh:   make(chan *types.Envelope, sendBuffer),
		closeCh:  make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) UserID() string { return c.identity.UserID }
func (c *Connection) Role() string   { return c.identity.Role }

// Identity returns the verified identity the connection was upgraded with.
func (c *Connection) Identity() auth.Identity { return c.identity }

// Send queues an envelope for the writer goroutine. It never blocks; a full
// buffer means the peer is not draining and the envelope is dropped.
func (c *Connection) Send(env *types.Envelope) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.sendCh <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendControl writes a control frame directly. Control frames bypass the
// send queue so pings still go out when the buffer is backed up.
func (c *Connection) SendControl(messageType int, deadline time.Time) error {
	return c.sock.WriteControl(messageType, nil, deadline)
}

// ReadEnvelope blocks until the next inbound envelope or a read error.
func (c *Connection) ReadEnvelope() (*types.Envelope, error) {
	var env types.Envelope
	if err := c.sock.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Kick sends a forced-disconnect close frame before closing, telling the
// client not to reconnect.
func (c *Connection) Kick(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = c.Close()
}

// Close terminates the writer goroutine and the underlying socket. Safe to
// call from multiple goroutines.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closeCh)
		err = c.sock.Close()
	})
	return err
}

func (c *Connection) writeLoop() {
	for {
		select {
		case env := <-c.sendCh:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteJSON(env); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				_ = c.Close()
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// SetReadDeadline forwards to the underlying socket.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.sock.SetReadDeadline(t)
}

// SetPongHandler forwards to the underlying socket.
func (c *Connection) SetPongHandler(h func(string) error) {
	c.sock.SetPongHandler(h)
}
