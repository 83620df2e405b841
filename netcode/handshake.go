package netcode

import (
	"fmt"
	"time"
)

// tickIntervalTolerance is how far a client's configured tick interval may
// disagree with the server's handshake before the client refuses to start
// (spec.md §4.13).
const tickIntervalTolerance = 0.1 // milliseconds

// DefaultHandshakeTimeout is how long a client waits for netcode:config
// before failing hard (spec.md §4.13, §7).
const DefaultHandshakeTimeout = 5 * time.Second

// AwaitConfig blocks until a netcode:config payload arrives on configCh or
// timeout elapses. If expectedTickIntervalMs is non-zero, the received
// value is cross-checked against it within tickIntervalTolerance; a larger
// disagreement is a hard failure, not a warning (spec.md §7).
func AwaitConfig(configCh <-chan ConfigPayload, timeout time.Duration, expectedTickIntervalMs float64) (ConfigPayload, error) {
	select {
	case cfg := <-configCh:
		if expectedTickIntervalMs > 0 {
			diff := cfg.TickIntervalMs - expectedTickIntervalMs
			if diff < 0 {
				diff = -diff
			}
			if diff > tickIntervalTolerance {
				return ConfigPayload{}, fmt.Errorf("%w: client=%.4fms server=%.4fms",
					ErrTickIntervalMismatch, expectedTickIntervalMs, cfg.TickIntervalMs)
			}
		}
		return cfg, nil
	case <-time.After(timeout):
		return ConfigPayload{}, ErrHandshakeTimeout
	}
}
