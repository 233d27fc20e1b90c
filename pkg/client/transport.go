package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"activityhub/pkg/types"
)

// CloseForced is the close code the server sends for deliberate disconnects
// (credential revoked, connection replaced). See ErrForcedDisconnect.
const CloseForced = 4000

const writeTimeout = 5 * time.Second

// Socket is the transport surface the client drives. Exactly one goroutine
// reads; writes are safe from any goroutine.
type Socket interface {
	ReadEnvelope() (*types.Envelope, error)
	WriteEnvelope(*types.Envelope) error
	Close() error
}

// Dialer opens sockets to the activity server. Tests substitute a fake so no
// network is involved.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WebSocketDialer dials real WebSocket connections.
type WebSocketDialer struct{}

func (WebSocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (s *wsSocket) ReadEnvelope() (*types.Envelope, error) {
	var env types.Envelope
	if err := s.conn.ReadJSON(&env); err != nil {
		if websocket.IsCloseError(err, CloseForced) {
			return nil, fmt.Errorf("%w: %v", ErrForcedDisconnect, err)
		}
		return nil, err
	}
	return &env, nil
}

func (s *wsSocket) WriteEnvelope(env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}
