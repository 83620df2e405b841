package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() (*Reconciler[testWorld, testInput], *Predictor[testWorld, testInput], *InputBuffer[testInput]) {
	predictor := NewPredictor[testWorld, testInput](testScope{}, 16)
	inputBuffer := NewInputBuffer[testInput](nil)
	reconciler := NewReconciler[testWorld, testInput](predictor, inputBuffer, "alice", 16, nil)
	return reconciler, predictor, inputBuffer
}

func TestReconcileFirstSnapshotHasNoPositionDelta(t *testing.T) {
	r, _, _ := newTestReconciler()

	result, err := r.Reconcile(Snapshot[testWorld]{
		Tick:  0,
		State: newTestWorld(0, map[PlayerID]Vec2{"alice": {}}),
	})
	require.NoError(t, err)
	assert.False(t, result.HadPosition, "there is no prior prediction to diff against on the very first snapshot")
	assert.Equal(t, 0, result.ReplayedInputs)
}

func TestReconcileReplaysOnlyUnacknowledgedInputs(t *testing.T) {
	r, _, buf := newTestReconciler()

	_, err := r.Reconcile(Snapshot[testWorld]{
		Tick:  0,
		State: newTestWorld(0, map[PlayerID]Vec2{"alice": {}}),
	})
	require.NoError(t, err)

	seq0 := buf.Add(testInput{DX: 1, TS: tsAt(16)})
	_ = buf.Add(testInput{DX: 1, TS: tsAt(32)})

	// Server acknowledges seq0 in this snapshot; only the second input
	// (seq 1) should be replayed on top of the new base.
	result, err := r.Reconcile(Snapshot[testWorld]{
		Tick:      1,
		State:     newTestWorld(1, map[PlayerID]Vec2{"alice": {X: 5}}),
		InputAcks: NewAckList(map[PlayerID]Seq{"alice": seq0}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ReplayedInputs)
	require.True(t, result.HadPosition)
	assert.InDelta(t, 5+16.0, result.PostReconcilePosition.X, 1e-9)
}

func TestReconcileComputesPositionDeltaAsPreMinusPost(t *testing.T) {
	r, _, buf := newTestReconciler()

	_, err := r.Reconcile(Snapshot[testWorld]{
		Tick:  0,
		State: newTestWorld(0, map[PlayerID]Vec2{"alice": {}}),
	})
	require.NoError(t, err)

	buf.Add(testInput{DX: 1, TS: tsAt(16)})

	result, err := r.Reconcile(Snapshot[testWorld]{
		Tick:  1,
		State: newTestWorld(1, map[PlayerID]Vec2{"alice": {X: 5}}),
	})
	require.NoError(t, err)

	require.True(t, result.HadPosition)
	assert.Equal(t, Vec2{}, result.PreReconcilePosition, "pre-reconcile position is read before SetBaseState touches the predictor")
	assert.InDelta(t, 21.0, result.PostReconcilePosition.X, 1e-9)
	assert.InDelta(t, result.PreReconcilePosition.X-result.PostReconcilePosition.X, result.PositionDelta.X, 1e-9)
}

func TestReconcileAcknowledgesInputBufferBeforeReplay(t *testing.T) {
	r, _, buf := newTestReconciler()
	seq0 := buf.Add(testInput{DX: 1, TS: tsAt(16)})

	_, err := r.Reconcile(Snapshot[testWorld]{
		Tick:      0,
		State:     newTestWorld(0, map[PlayerID]Vec2{"alice": {}}),
		InputAcks: NewAckList(map[PlayerID]Seq{"alice": seq0}),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, buf.Len(), "an acknowledged input must be dropped from the buffer, not just skipped during replay")
}

func TestReconcileLargeRegressionResetsWithoutReplay(t *testing.T) {
	r, _, buf := newTestReconciler()
	r.SetTickRegressionLimit(10)

	_, err := r.Reconcile(Snapshot[testWorld]{Tick: 100, State: newTestWorld(100, map[PlayerID]Vec2{"alice": {X: 1}})})
	require.NoError(t, err)

	buf.Add(testInput{DX: 1, TS: tsAt(1000)})

	result, err := r.Reconcile(Snapshot[testWorld]{Tick: 50, State: newTestWorld(50, map[PlayerID]Vec2{"alice": {X: 42}})})
	require.NoError(t, err)

	assert.True(t, result.LargeRegression)
	assert.Equal(t, 0, buf.Len(), "large regression must clear the input buffer rather than replay stale inputs")
	pos, ok := result.RenderWorld.pos["alice"]
	require.True(t, ok)
	assert.Equal(t, 42.0, pos.X, "a large regression rebases straight onto the snapshot with no replay")
}

func TestReconcileSmallTickGapIsNotLargeRegression(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.SetTickRegressionLimit(30)

	_, err := r.Reconcile(Snapshot[testWorld]{Tick: 100, State: newTestWorld(100, map[PlayerID]Vec2{"alice": {}})})
	require.NoError(t, err)

	result, err := r.Reconcile(Snapshot[testWorld]{Tick: 99, State: newTestWorld(99, map[PlayerID]Vec2{"alice": {}})})
	require.NoError(t, err)
	assert.False(t, result.LargeRegression, "a tick arriving slightly out of order is ordinary jitter, not a large regression")
}
