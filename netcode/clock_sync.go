package netcode

import (
	"sync"
	"time"
)

// rttSmoothingAlpha is the EWMA smoothing constant applied to RTT samples
// (spec.md §9 names this tunable; 0.1 biases toward stability).
const rttSmoothingAlpha = 0.1

// ServerClockSync tracks per-client round-trip time on the server side of
// spec.md §4.10: it receives clockSyncResponse payloads and smooths RTT
// with an EWMA before pushing rttUpdate back to the client.
type ServerClockSync struct {
	mu  sync.Mutex
	rtt map[PlayerID]time.Duration
}

// NewServerClockSync creates an empty RTT tracker.
func NewServerClockSync() *ServerClockSync {
	return &ServerClockSync{rtt: make(map[PlayerID]time.Duration)}
}

// Observe computes RTT = now - serverTimestamp and folds it into the
// client's smoothed estimate, returning the updated RTT to push back as
// netcode:rtt_update.
func (c *ServerClockSync) Observe(client PlayerID, serverTimestamp, now time.Time) time.Duration {
	sample := now.Sub(serverTimestamp)
	if sample < 0 {
		sample = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.rtt[client]
	if !ok {
		c.rtt[client] = sample
		return sample
	}
	smoothed := time.Duration(float64(prev)*(1-rttSmoothingAlpha) + float64(sample)*rttSmoothingAlpha)
	c.rtt[client] = smoothed
	return smoothed
}

// RTT returns the last smoothed RTT estimate for client.
func (c *ServerClockSync) RTT(client PlayerID) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rtt, ok := c.rtt[client]
	return rtt, ok
}

// RemoveClient drops a disconnected client's RTT estimate.
func (c *ServerClockSync) RemoveClient(client PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rtt, client)
}

// ClientClockEstimate derives the client-side quantities driving adaptive
// smoothing (spec.md §4.10): the locally estimated current server tick, and
// the lag between that estimate and the last fully rendered tick.
type ClientClockEstimate struct {
	tickIntervalMs float64

	lastSnapshotTick      Tick
	lastSnapshotWallClock time.Time
	hasSnapshot           bool

	lastRTT time.Duration
}

// NewClientClockEstimate creates an estimator for a fixed tick interval.
func NewClientClockEstimate(tickIntervalMs float64) *ClientClockEstimate {
	return &ClientClockEstimate{tickIntervalMs: tickIntervalMs}
}

// ObserveSnapshot records the most recent snapshot's tick and server
// wall-clock, used as the extrapolation basis for EstimateServerTick.
func (e *ClientClockEstimate) ObserveSnapshot(tick Tick, serverWallClock time.Time) {
	e.lastSnapshotTick = tick
	e.lastSnapshotWallClock = serverWallClock
	e.hasSnapshot = true
}

// ObserveRTT records the latest rttUpdate from the server.
func (e *ClientClockEstimate) ObserveRTT(rtt time.Duration) { e.lastRTT = rtt }

// EstimateServerTick extrapolates the server's current tick from the most
// recent snapshot tick plus the wall-clock time elapsed since that
// snapshot's server timestamp.
func (e *ClientClockEstimate) EstimateServerTick(now time.Time) float64 {
	if !e.hasSnapshot || e.tickIntervalMs <= 0 {
		return 0
	}
	elapsedMs := float64(now.Sub(e.lastSnapshotWallClock).Milliseconds())
	return float64(e.lastSnapshotTick) + elapsedMs/e.tickIntervalMs
}

// TickLag returns the difference between the estimated current server tick
// and lastRenderedTick, for feeding spectator TickSmoother.UpdateAdaptiveInterpolation.
func (e *ClientClockEstimate) TickLag(now time.Time, lastRenderedTick Tick) float64 {
	return e.EstimateServerTick(now) - float64(lastRenderedTick)
}

// LastRTT returns the last observed RTT.
func (e *ClientClockEstimate) LastRTT() time.Duration { return e.lastRTT }
