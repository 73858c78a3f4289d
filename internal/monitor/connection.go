package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnection schedule. The last delay repeats if retries were ever
// to exceed the table.
const maxRetries = 3

var retryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// retryDelay returns the backoff delay for a given retry count
func retryDelay(delays []time.Duration, retry int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if retry >= len(delays) {
		retry = len(delays) - 1
	}
	return delays[retry]
}

// Conn is the monitor's view of an open stream transport. Exactly one
// open Conn exists per run; it is owned by the monitor and never
// shared.
type Conn interface {
	// ReadMessage blocks for the next frame
	ReadMessage() ([]byte, error)
	// WriteJSON sends a control message
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens a stream transport for a run
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer dials real WebSocket connections
type wsDialer struct{}

// NewWebsocketDialer returns the production Dialer
func NewWebsocketDialer() Dialer {
	return wsDialer{}
}

const dialTimeout = 10 * time.Second

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return wsConn{conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c wsConn) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c wsConn) Close() error {
	return c.conn.Close()
}
