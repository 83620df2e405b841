package netcode

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the core. Callers should compare with
// errors.Is; wrapped variants add the offending id/tick via fmt.Errorf("%w").
var (
	// ErrSnapshotTickRegression is returned by SnapshotBuffer.Add when the
	// given snapshot's tick does not strictly increase on the last one
	// added (spec.md §4.1 invariant).
	ErrSnapshotTickRegression = errors.New("netcode: snapshot tick did not strictly increase")

	// ErrHandshakeTimeout is returned by a client that never received
	// netcode:config within its configured timeout (spec.md §4.13, §7).
	ErrHandshakeTimeout = errors.New("netcode: handshake timed out waiting for server config")

	// ErrTickIntervalMismatch is returned when a client's configured tick
	// interval disagrees with the server's handshake beyond tolerance.
	ErrTickIntervalMismatch = errors.New("netcode: client and server tick intervals disagree")

	// ErrUnknownClient is returned by server-side lookups for a client id
	// that was never added or has already been removed.
	ErrUnknownClient = errors.New("netcode: unknown client")

	// ErrServerNotRunning is returned by operations that require the
	// server's tick loop to be running.
	ErrServerNotRunning = errors.New("netcode: server is not running")

	// ErrServerAlreadyRunning is returned by Start when the server's tick
	// loop has already been started.
	ErrServerAlreadyRunning = errors.New("netcode: server is already running")

	// ErrSimulateFailed wraps a panic or error raised by a user-supplied
	// Simulator; the tick that produced it is aborted and retried next
	// tick with the previous World retained (spec.md §7).
	ErrSimulateFailed = errors.New("netcode: simulate failed, tick aborted")
)

// simulatePanicError wraps a recovered panic from a user-supplied Simulator
// so the tick loop can treat it the same as a returned error (spec.md §7).
type simulatePanicError struct {
	recovered any
}

func (e *simulatePanicError) Error() string {
	return fmt.Sprintf("netcode: simulate panicked: %v", e.recovered)
}

func (e *simulatePanicError) Unwrap() error {
	return ErrSimulateFailed
}
