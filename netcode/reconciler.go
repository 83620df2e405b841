package netcode

import "github.com/sirupsen/logrus"

// defaultTickRegressionThreshold is how many ticks a new snapshot may fall
// behind the previously reconciled tick before Reconcile treats it as a
// "large tick regression" (e.g. a level change) rather than ordinary
// out-of-order delivery (spec.md §7).
const defaultTickRegressionThreshold = 30

// ReconcileResult describes one Reconcile call's outcome, including the
// local-player position delta the caller should feed to that player's
// owner TickSmoother per spec.md §4.9.
type ReconcileResult[W any] struct {
	RenderWorld W

	// HadPosition is true when both pre- and post-reconcile local player
	// positions were obtainable (i.e. PredictionScope.GetLocalPlayerPosition
	// is supported).
	HadPosition bool
	PreReconcilePosition  Vec2
	PostReconcilePosition Vec2
	PositionDelta         Vec2 // Pre - Post; the correction to ease toward

	ReplayedInputs int

	// LargeRegression is true when the snapshot tick fell far enough
	// behind the previously reconciled tick that the caller should hard
	// reset rather than ease (input buffer cleared, smoother reset,
	// predictor rebased without replay).
	LargeRegression bool
}

// Reconciler rebases client predictions onto a newly received authoritative
// snapshot by replaying still-unacknowledged inputs (spec.md §4.5).
type Reconciler[W any, I HasTimestamp] struct {
	predictor            *Predictor[W, I]
	inputBuffer          *InputBuffer[I]
	serverTickIntervalMs float64
	localPlayerID        PlayerID
	tickRegressionLimit  Tick

	lastTick    Tick
	hasLastTick bool

	log *logrus.Entry
}

// NewReconciler creates a Reconciler tying together predictor and
// inputBuffer for localPlayerID. serverTickIntervalMs must match the
// server's fixed tick interval exactly (spec.md §9).
func NewReconciler[W any, I HasTimestamp](
	predictor *Predictor[W, I],
	inputBuffer *InputBuffer[I],
	localPlayerID PlayerID,
	serverTickIntervalMs float64,
	log *logrus.Entry,
) *Reconciler[W, I] {
	return &Reconciler[W, I]{
		predictor:            predictor,
		inputBuffer:          inputBuffer,
		serverTickIntervalMs: serverTickIntervalMs,
		localPlayerID:        localPlayerID,
		tickRegressionLimit:  defaultTickRegressionThreshold,
		log:                  log,
	}
}

// SetTickRegressionLimit overrides the default large-regression threshold.
func (r *Reconciler[W, I]) SetTickRegressionLimit(ticks Tick) {
	r.tickRegressionLimit = ticks
}

// Reconcile applies spec.md §4.5's seven steps and reports the position
// delta for smoother easing (§4.9).
func (r *Reconciler[W, I]) Reconcile(snapshot Snapshot[W]) (ReconcileResult[W], error) {
	result := ReconcileResult[W]{}

	if r.hasLastTick && snapshot.Tick+Tick(r.tickRegressionLimit) < r.lastTick {
		result.LargeRegression = true
		prevTick := r.lastTick
		r.inputBuffer.Clear()
		r.predictor.Reset()
		r.predictor.SetBaseState(snapshot.State, r.localPlayerID)
		r.lastTick = snapshot.Tick
		merged, err := r.predictor.MergeWithServer(snapshot.State)
		if err != nil {
			return result, err
		}
		result.RenderWorld = merged
		if r.log != nil {
			r.log.WithFields(logrus.Fields{
				"system_name":  "reconciler",
				"snapshotTick": snapshot.Tick,
				"lastTick":     prevTick,
			}).Warn("large tick regression, resetting prediction state")
		}
		return result, nil
	}

	// Step 1.
	lastProcessedSeq := Seq(-1)
	if seq, ok := snapshot.InputAcks.Get(r.localPlayerID); ok {
		lastProcessedSeq = seq
	}

	// Step 2.
	r.inputBuffer.Acknowledge(lastProcessedSeq)

	// Step 3.
	prePos, hadPre := r.predictor.LocalPlayerPosition()

	// Step 4.
	r.predictor.SetBaseState(snapshot.State, r.localPlayerID)

	// Step 5.
	pending := r.inputBuffer.GetUnacknowledged(lastProcessedSeq)
	for _, msg := range pending {
		if err := r.predictor.ApplyInputWithDelta(msg.Input, r.serverTickIntervalMs); err != nil {
			return result, err
		}
	}
	result.ReplayedInputs = len(pending)

	// Step 6.
	postPos, hadPost := r.predictor.LocalPlayerPosition()
	if hadPre && hadPost {
		result.HadPosition = true
		result.PreReconcilePosition = prePos
		result.PostReconcilePosition = postPos
		result.PositionDelta = Vec2{X: prePos.X - postPos.X, Y: prePos.Y - postPos.Y}
	}

	// Step 7.
	merged, err := r.predictor.MergeWithServer(snapshot.State)
	if err != nil {
		return result, err
	}
	result.RenderWorld = merged

	r.lastTick = snapshot.Tick
	r.hasLastTick = true

	return result, nil
}
