package netcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapAt(tick Tick, ts time.Time) Snapshot[int] {
	return Snapshot[int]{Tick: tick, Timestamp: ts, State: int(tick)}
}

func TestSnapshotBufferRejectsTickRegression(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(snapAt(5, tsAt(0))))

	err := buf.Add(snapAt(5, tsAt(16)))
	assert.ErrorIs(t, err, ErrSnapshotTickRegression)

	err = buf.Add(snapAt(4, tsAt(32)))
	assert.ErrorIs(t, err, ErrSnapshotTickRegression)

	require.NoError(t, buf.Add(snapAt(6, tsAt(48))))
	assert.Equal(t, 2, buf.Len())
}

func TestSnapshotBufferEvictsOldestWhenFull(t *testing.T) {
	buf := NewSnapshotBuffer[int](3)
	for i := Tick(0); i < 3; i++ {
		require.NoError(t, buf.Add(snapAt(i, tsAt(int64(i)*16))))
	}
	require.NoError(t, buf.Add(snapAt(3, tsAt(48))))

	assert.Equal(t, 3, buf.Len())
	oldest, ok := buf.Oldest()
	require.True(t, ok)
	assert.Equal(t, Tick(1), oldest.Tick, "tick 0 should have been evicted to make room for tick 3")

	_, ok = buf.GetAtTick(0)
	assert.False(t, ok)
	latest, ok := buf.GetLatest()
	require.True(t, ok)
	assert.Equal(t, Tick(3), latest.Tick)
}

func TestSnapshotBufferGetAtTimestampTiesPreferEarlier(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(snapAt(0, tsAt(0))))
	require.NoError(t, buf.Add(snapAt(1, tsAt(20))))

	// Exactly 10ms from both: the earlier snapshot (tick 0) must win.
	got, ok := buf.GetAtTimestamp(tsAt(10))
	require.True(t, ok)
	assert.Equal(t, Tick(0), got.Tick)
}

func TestSnapshotBufferGetAtTimestampPicksNearest(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	require.NoError(t, buf.Add(snapAt(0, tsAt(0))))
	require.NoError(t, buf.Add(snapAt(1, tsAt(16))))
	require.NoError(t, buf.Add(snapAt(2, tsAt(32))))

	got, ok := buf.GetAtTimestamp(tsAt(30))
	require.True(t, ok)
	assert.Equal(t, Tick(2), got.Tick)

	got, ok = buf.GetAtTimestamp(tsAt(2))
	require.True(t, ok)
	assert.Equal(t, Tick(0), got.Tick)
}

func TestSnapshotBufferGetRangeIsInclusiveAndOrdered(t *testing.T) {
	buf := NewSnapshotBuffer[int](8)
	for i := Tick(0); i < 5; i++ {
		require.NoError(t, buf.Add(snapAt(i, tsAt(int64(i)*16))))
	}

	rng := buf.GetRange(1, 3)
	require.Len(t, rng, 3)
	for i, s := range rng {
		assert.Equal(t, Tick(i+1), s.Tick)
	}
}

func TestSnapshotBufferEmptyQueriesReportNotFound(t *testing.T) {
	buf := NewSnapshotBuffer[int](4)
	_, ok := buf.GetLatest()
	assert.False(t, ok)
	_, ok = buf.Oldest()
	assert.False(t, ok)
	_, ok = buf.GetAtTimestamp(tsAt(0))
	assert.False(t, ok)
	assert.Empty(t, buf.GetRange(0, 100))
}

func TestSnapshotBufferDoesNotCopyStateOnAdd(t *testing.T) {
	// Documents the bug class behind the platformer World-aliasing fix: the
	// buffer stores State as given, so a pointer-typed State that the caller
	// mutates after Add changes the retained Snapshot too.
	type box struct{ n int }
	buf := NewSnapshotBuffer[*box](4)
	b := &box{n: 1}
	require.NoError(t, buf.Add(Snapshot[*box]{Tick: 0, Timestamp: tsAt(0), State: b}))

	b.n = 999 // a caller holding the same pointer mutates it after retention

	got, ok := buf.GetAtTick(0)
	require.True(t, ok)
	assert.Equal(t, 999, got.State.n, "SnapshotBuffer itself does not copy on Add; producing an independent State per call is the domain Simulator's responsibility")
}
