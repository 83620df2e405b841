package netcode

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LagCompensator resolves a historical snapshot for server-side hit
// validation, compensating for player-to-server latency (spec.md §4.11).
// Grounded on other_examples/opd-ai-violence's lagcomp.go ring-buffer
// rewind, adapted here to read from the shared SnapshotBuffer instead of
// its own private ring.
type LagCompensator[W any] struct {
	buffer *SnapshotBuffer[W]
	log    *logrus.Entry
}

// NewLagCompensator creates a compensator reading from buffer.
func NewLagCompensator[W any](buffer *SnapshotBuffer[W], log *logrus.Entry) *LagCompensator[W] {
	return &LagCompensator[W]{buffer: buffer, log: log}
}

// RewindResult is the outcome of resolving a historical snapshot.
type RewindResult[W any] struct {
	Snapshot Snapshot[W]

	// ClampedToEarliest is true when the computed historical timestamp
	// fell before the oldest retained snapshot; the action is still
	// validated, against the earliest snapshot, and this should be
	// surfaced in telemetry rather than treated as an error (spec.md §7).
	ClampedToEarliest bool
}

// Rewind computes the intended historical server timestamp from an action's
// clientTimestamp, the estimated clock offset (server time - client time)
// and the configured interpolation delay, then fetches the closest retained
// snapshot.
func (lc *LagCompensator[W]) Rewind(clientTimestamp time.Time, clockOffset, interpolationDelay time.Duration) (RewindResult[W], bool) {
	targetServerTime := clientTimestamp.Add(clockOffset).Add(-interpolationDelay)

	snap, ok := lc.buffer.GetAtTimestamp(targetServerTime)
	if !ok {
		return RewindResult[W]{}, false
	}

	clamped := false
	if oldest, ok := lc.buffer.Oldest(); ok && targetServerTime.Before(oldest.Timestamp) {
		clamped = true
	}

	if clamped && lc.log != nil {
		lc.log.WithFields(logrus.Fields{
			"system_name":        "lag_compensator",
			"target_server_time": targetServerTime,
			"earliest_tick":      snap.Tick,
		}).Info("action rewound past retained history, validated against earliest snapshot")
	}

	return RewindResult[W]{Snapshot: snap, ClampedToEarliest: clamped}, true
}
