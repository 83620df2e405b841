package netcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLagCompensatorRewindPicksSnapshotNearestTargetTime(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 0, Timestamp: tsAt(0), State: 0}))
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 1, Timestamp: tsAt(100), State: 1}))
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 2, Timestamp: tsAt(200), State: 2}))

	lc := NewLagCompensator[int](buf, nil)

	// clientTimestamp=tsAt(250), clockOffset=0, interpolationDelay=60ms ->
	// target server time 190ms, closest to tick 2 (200ms).
	result, ok := lc.Rewind(tsAt(250), 0, 60*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, Tick(2), result.Snapshot.Tick)
	assert.False(t, result.ClampedToEarliest)
}

func TestLagCompensatorRewindAppliesClockOffset(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 0, Timestamp: tsAt(0), State: 0}))
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 1, Timestamp: tsAt(100), State: 1}))

	lc := NewLagCompensator[int](buf, nil)

	// A client clock running 100ms behind the server (clockOffset=+100ms)
	// should shift the rewind target forward to land on tick 1 instead of
	// tick 0, even though the raw clientTimestamp alone would favor tick 0.
	result, ok := lc.Rewind(tsAt(10), 100*time.Millisecond, 0)
	require.True(t, ok)
	assert.Equal(t, Tick(1), result.Snapshot.Tick)
}

func TestLagCompensatorRewindClampsBeforeOldestRetained(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 5, Timestamp: tsAt(500), State: 5}))
	require.NoError(t, buf.Add(Snapshot[int]{Tick: 6, Timestamp: tsAt(516), State: 6}))

	lc := NewLagCompensator[int](buf, nil)

	result, ok := lc.Rewind(tsAt(0), 0, 0) // far before anything retained
	require.True(t, ok)
	assert.True(t, result.ClampedToEarliest)
	assert.Equal(t, Tick(5), result.Snapshot.Tick, "a rewind past retained history still validates against the earliest snapshot")
}

func TestLagCompensatorRewindOnEmptyBufferFails(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	lc := NewLagCompensator[int](buf, nil)

	_, ok := lc.Rewind(tsAt(0), 0, 0)
	assert.False(t, ok)
}
