// Package transport defines the byte-oriented connection abstraction the
// netcode core sends and receives wire envelopes over, plus an in-process
// implementation for embedded/local play and tests. Adapted from
// github.com/andersfylling/rayman-slides's internal/network/transport.go,
// generalized from a single TCP-only implementation to an interface with
// multiple bindings (see the wsnet subpackage for the default networked
// binding).
package transport

import "context"

// Connection represents one established client-server byte stream. Send
// and Recv carry whole netcode.Envelope-encoded messages; framing is the
// implementation's responsibility.
type Connection interface {
	// Send writes one message. Implementations must be safe to call
	// concurrently with Recv and with other Sends: the netcode server sends
	// to one connection from its tick goroutine and from per-client
	// goroutines at the same time.
	Send(data []byte) error

	// Recv blocks until one message is available, ctx is cancelled, or the
	// connection closes.
	Recv(ctx context.Context) ([]byte, error)

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string
}

// Listener accepts incoming Connections (server side).
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
	Addr() string
}

// Dialer establishes an outgoing Connection (client side).
type Dialer interface {
	Dial(ctx context.Context, addr string) (Connection, error)
}
