package netcode

// PredictionScope is the capability a game supplies so the core can predict
// and reconcile without ever structurally inspecting World (spec.md §4.4).
type PredictionScope[W any, I HasTimestamp] interface {
	// StepLocalOnly applies one input's effect only to localPlayerID; every
	// other player is carried forward with a deterministic idle step
	// (gravity, velocity decay, ...) so they don't go stale during replay.
	StepLocalOnly(world W, localPlayerID PlayerID, input I, deltaMs float64) (W, error)

	// ExtractLocalPlayer reads localPlayerID's per-player state out of
	// world, if present.
	ExtractLocalPlayer(world W, localPlayerID PlayerID) (playerState any, ok bool)

	// ReplaceLocalPlayer returns a copy of world with localPlayerID's state
	// replaced by playerState (as previously returned by ExtractLocalPlayer
	// or StepLocalOnly's own bookkeeping).
	ReplaceLocalPlayer(world W, localPlayerID PlayerID, playerState any) (W, error)

	// GetLocalPlayerPosition is optional; implementations that don't support
	// visual reconciliation smoothing should return false.
	GetLocalPlayerPosition(world W, id PlayerID) (Vec2, bool)
}

const (
	// predictionMinDeltaMs and predictionMaxDeltaMs clamp the wall-clock
	// delta ApplyInput computes between consecutive inputs (spec.md §4.4).
	predictionMinDeltaMs = 1.0
	predictionMaxDeltaMs = 100.0
)

// Predictor holds a base World (from the most recent authoritative
// snapshot) plus a predicted World derived by replaying inputs on top of
// it (spec.md §4.4).
type Predictor[W any, I HasTimestamp] struct {
	scope PredictionScope[W, I]

	base          W
	hasBase       bool
	predicted     W
	localPlayerID PlayerID

	lastInputTimestampMs float64
	hasLastTimestamp     bool
	defaultDeltaMs       float64 // one tick interval, used for the first input after a reset
}

// NewPredictor creates a Predictor driven by scope. defaultTickIntervalMs is
// the delta used for the first ApplyInput call after a reset.
func NewPredictor[W any, I HasTimestamp](scope PredictionScope[W, I], defaultTickIntervalMs float64) *Predictor[W, I] {
	return &Predictor[W, I]{scope: scope, defaultDeltaMs: defaultTickIntervalMs}
}

// SetBaseState replaces the base World and clears the predicted World back
// to it.
func (p *Predictor[W, I]) SetBaseState(world W, localPlayerID PlayerID) {
	p.base = world
	p.predicted = world
	p.hasBase = true
	p.localPlayerID = localPlayerID
}

// ApplyInput advances the predicted World by one step, using the elapsed
// wall-clock time between the previous call's input timestamp and this
// input's timestamp, clamped to [1ms, 100ms]. On the first input after a
// reset, the default delta (one tick interval) is used.
func (p *Predictor[W, I]) ApplyInput(input I) error {
	deltaMs := p.defaultDeltaMs
	tsMs := float64(input.InputTimestamp().UnixNano()) / 1e6
	if p.hasLastTimestamp {
		raw := tsMs - p.lastInputTimestampMs
		deltaMs = clamp(raw, predictionMinDeltaMs, predictionMaxDeltaMs)
	}
	p.lastInputTimestampMs = tsMs
	p.hasLastTimestamp = true

	return p.applyInputWithDelta(input, deltaMs)
}

// ApplyInputWithDelta advances the predicted World by one step using an
// explicit delta, without updating the internal last-timestamp cursor. Used
// by reconciliation replay with the server's fixed tick interval (spec.md
// §4.4, §9 "fixed-delta reconciliation replay").
func (p *Predictor[W, I]) ApplyInputWithDelta(input I, deltaMs float64) error {
	return p.applyInputWithDelta(input, deltaMs)
}

func (p *Predictor[W, I]) applyInputWithDelta(input I, deltaMs float64) error {
	next, err := p.scope.StepLocalOnly(p.predicted, p.localPlayerID, input, deltaMs)
	if err != nil {
		return err
	}
	p.predicted = next
	return nil
}

// MergeWithServer produces the World to render: a copy of serverWorld with
// the local player substituted from the predicted World, so the predicted
// local player overrides stale server data while all other players remain
// authoritative.
func (p *Predictor[W, I]) MergeWithServer(serverWorld W) (W, error) {
	state, ok := p.scope.ExtractLocalPlayer(p.predicted, p.localPlayerID)
	if !ok {
		return serverWorld, nil
	}
	return p.scope.ReplaceLocalPlayer(serverWorld, p.localPlayerID, state)
}

// GetState returns the current predicted World.
func (p *Predictor[W, I]) GetState() W {
	return p.predicted
}

// Reset clears the base and predicted World and the timestamp cursor.
func (p *Predictor[W, I]) Reset() {
	var zero W
	p.base = zero
	p.predicted = zero
	p.hasBase = false
	p.hasLastTimestamp = false
	p.lastInputTimestampMs = 0
}

// ResetTimestamp clears only the last-input-timestamp cursor, so the next
// ApplyInput call uses the default delta again.
func (p *Predictor[W, I]) ResetTimestamp() {
	p.hasLastTimestamp = false
	p.lastInputTimestampMs = 0
}

// SetLastInputTimestamp seeds the last-timestamp cursor directly (e.g. when
// resuming prediction without discarding continuity).
func (p *Predictor[W, I]) SetLastInputTimestamp(tsMs float64) {
	p.lastInputTimestampMs = tsMs
	p.hasLastTimestamp = true
}

// LocalPlayerPosition reads the local player's position out of the current
// predicted World, if the scope supports it.
func (p *Predictor[W, I]) LocalPlayerPosition() (Vec2, bool) {
	return p.scope.GetLocalPlayerPosition(p.predicted, p.localPlayerID)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
