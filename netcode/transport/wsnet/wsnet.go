// Package wsnet is the default networked binding of netcode/transport,
// built on github.com/gorilla/websocket. Grounded on
// Mikko-Finell-mine-and-die's internal/net/ws/session.go: one goroutine per
// connection reading whole text messages in a loop, JSON-encoded frames,
// and connection teardown on the first read error.
package wsnet

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andersfylling/netcode/netcode/transport"
)

// writeTimeout bounds a single websocket write, so a stalled peer cannot
// block the tick/broadcast goroutine indefinitely.
const writeTimeout = 5 * time.Second

// Conn adapts a *websocket.Conn to transport.Connection. Send is safe to
// call concurrently with Recv, but gorilla/websocket requires a single
// writer at a time, so concurrent Sends are serialised internally.
type Conn struct {
	ws         *websocket.Conn
	remoteAddr string

	writeMu sync.Mutex
}

// NewConn wraps an already-established *websocket.Conn.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, remoteAddr: ws.RemoteAddr().String()}
}

// Send writes data as one binary websocket message.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Recv blocks for the next message. ctx cancellation is honoured by racing
// the blocking read against ctx.Done and closing the connection if ctx
// fires first, matching the non-cancellable nature of gorilla's ReadMessage.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		_, data, err := c.ws.ReadMessage()
		resCh <- result{data, err}
	}()

	select {
	case res := <-resCh:
		return res.data, res.err
	case <-ctx.Done():
		_ = c.ws.Close()
		return nil, ctx.Err()
	}
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

var _ transport.Connection = (*Conn)(nil)

// Upgrader wraps gorilla's websocket.Upgrader for accepting incoming
// connections from an http.Handler.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader creates an Upgrader with permissive CORS, matching a library
// meant to be embedded behind the caller's own HTTP routing and auth.
func NewUpgrader() *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Upgrade upgrades an incoming HTTP request to a websocket connection and
// wraps it as a transport.Connection.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws), nil
}

// Dialer dials a remote netcode server over websocket.
type Dialer struct {
	dialer websocket.Dialer
}

// NewDialer creates a Dialer with a 10-second websocket handshake timeout.
func NewDialer() *Dialer {
	return &Dialer{dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
}

// Dial connects to addr (a ws:// or wss:// URL) and wraps the result as a
// transport.Connection.
func (d *Dialer) Dial(ctx context.Context, addr string) (transport.Connection, error) {
	ws, _, err := d.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws), nil
}

var _ transport.Dialer = (*Dialer)(nil)
