package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputBufferAssignsIncreasingSeq(t *testing.T) {
	buf := NewInputBuffer[testInput](nil)
	s0 := buf.Add(testInput{TS: tsAt(0)})
	s1 := buf.Add(testInput{TS: tsAt(16)})
	assert.Equal(t, Seq(0), s0)
	assert.Equal(t, Seq(1), s1)
	assert.Equal(t, Seq(2), buf.NextSeq())
	assert.Equal(t, 2, buf.Len())
}

func TestInputBufferEvictsOldestOnOverflow(t *testing.T) {
	buf := NewInputBuffer[testInput](nil)
	for i := 0; i < inputBufferOverflowLimit+10; i++ {
		buf.Add(testInput{TS: tsAt(int64(i))})
	}

	require.Equal(t, inputBufferOverflowLimit, buf.Len())
	unacked := buf.GetUnacknowledged(-1)
	require.NotEmpty(t, unacked)
	assert.Equal(t, Seq(10), unacked[0].Seq, "the 10 oldest entries should have been evicted")
}

func TestInputBufferAcknowledgeDropsUpToAndIncludingSeq(t *testing.T) {
	buf := NewInputBuffer[testInput](nil)
	for i := 0; i < 5; i++ {
		buf.Add(testInput{TS: tsAt(int64(i))})
	}

	buf.Acknowledge(2)
	assert.Equal(t, 2, buf.Len())

	remaining := buf.GetUnacknowledged(-1)
	require.Len(t, remaining, 2)
	assert.Equal(t, Seq(3), remaining[0].Seq)
	assert.Equal(t, Seq(4), remaining[1].Seq)
}

func TestInputBufferGetUnacknowledgedExcludesAckedSeqs(t *testing.T) {
	buf := NewInputBuffer[testInput](nil)
	for i := 0; i < 4; i++ {
		buf.Add(testInput{TS: tsAt(int64(i))})
	}

	pending := buf.GetUnacknowledged(1)
	require.Len(t, pending, 2)
	assert.Equal(t, Seq(2), pending[0].Seq)
	assert.Equal(t, Seq(3), pending[1].Seq)
}

func TestInputBufferClearResetsSeqCounter(t *testing.T) {
	buf := NewInputBuffer[testInput](nil)
	buf.Add(testInput{TS: tsAt(0)})
	buf.Add(testInput{TS: tsAt(16)})

	buf.Clear()
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, Seq(0), buf.NextSeq())

	seq := buf.Add(testInput{TS: tsAt(32)})
	assert.Equal(t, Seq(0), seq, "seq numbering restarts after Clear")
}
