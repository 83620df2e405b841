package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSmootherFirstPostTickInitializesWithoutEnqueueing(t *testing.T) {
	s := NewTickSmoother(16, false)
	s.OnPostTick(1, Transform{X: 10, Y: 20})

	assert.Equal(t, Transform{X: 10, Y: 20}, s.CurrentTransform())
	assert.Equal(t, 0, s.GetQueueLength(), "the very first sample seeds current position directly, it never enters the interpolation queue")
}

func TestTickSmootherDiscardsOutOfOrderAndDuplicateTicks(t *testing.T) {
	s := NewTickSmoother(16, false)
	s.OnPostTick(5, Transform{X: 0})
	s.OnPostTick(6, Transform{X: 1})
	s.OnPostTick(6, Transform{X: 2}) // duplicate tick
	s.OnPostTick(4, Transform{X: 3}) // stale/out-of-order tick

	assert.True(t, s.HasTickInQueue(6))
	assert.False(t, s.HasTickInQueue(4))
	assert.Equal(t, 1, s.GetQueueLength())
}

func TestTickSmootherTeleportBeyondThresholdSnapsAndFlushesQueue(t *testing.T) {
	s := NewTickSmoother(16, false)
	s.SetTeleportThreshold(4)
	s.OnPostTick(1, Transform{X: 0, Y: 0})
	s.OnPostTick(2, Transform{X: 1, Y: 0})
	s.OnPostTick(3, Transform{X: 100, Y: 0}) // far beyond the threshold

	// A large enough delta fully consumes the first, in-threshold leg and
	// reaches the teleport sample; the smoother must snap straight to it
	// and drop everything queued behind it rather than interpolate through.
	out := s.GetSmoothedTransform(1000)
	assert.Equal(t, 100.0, out.X)
	assert.Equal(t, 0, s.GetQueueLength())
}

func TestTickSmootherShouldHardResetUsesTeleportThreshold(t *testing.T) {
	s := NewTickSmoother(16, true)
	s.SetTeleportThreshold(5)
	assert.False(t, s.ShouldHardReset(Vec2{X: 3, Y: 0}))
	assert.True(t, s.ShouldHardReset(Vec2{X: 6, Y: 0}))
}

func TestTickSmootherEaseCorrectionOnlyAffectsTicksPresentInQueue(t *testing.T) {
	owner := NewTickSmoother(16, true)
	owner.OnPostTick(1, Transform{X: 0})
	owner.OnPostTick(2, Transform{X: 10})

	// Ease-correcting a tick id that was never enqueued for this smoother
	// must report failure and leave the queue untouched: owner smoothers
	// are keyed by local prediction tick ids while spectator smoothers are
	// keyed by server tick ids, two disjoint id spaces that must never be
	// silently cross-applied.
	ok := owner.EaseCorrection(999, Vec2{X: 500})
	assert.False(t, ok)
	assert.False(t, owner.HasTickInQueue(999))

	ok = owner.EaseCorrection(2, Vec2{X: 20})
	assert.True(t, ok)
	assert.Equal(t, ok, owner.HasTickInQueue(2), "EaseCorrection succeeding must exactly track HasTickInQueue for that tick")
}

func TestTickSmootherUpdateAdaptiveInterpolationIgnoredForOwner(t *testing.T) {
	owner := NewTickSmoother(16, true)
	before := owner.GetQueueLength()
	owner.UpdateAdaptiveInterpolation(50)
	// The documented invariant is that owner smoothers ignore this call
	// entirely, so neither the pending nor the active interpolation window
	// moves off its default, and the queue is untouched.
	assert.Equal(t, defaultInterpolationTicks, owner.pendingInterpTicks)
	assert.Equal(t, defaultInterpolationTicks, owner.interpolationTicks)
	assert.Equal(t, before, owner.GetQueueLength())
}

func TestTickSmootherResetClearsQueueAndInFlightLeg(t *testing.T) {
	s := NewTickSmoother(16, false)
	s.SetTeleportThreshold(100)
	s.OnPostTick(1, Transform{X: 0})
	s.OnPostTick(2, Transform{X: 10})
	s.GetSmoothedTransform(1) // start a leg in progress

	s.Reset(Transform{X: 999})
	assert.Equal(t, Transform{X: 999}, s.CurrentTransform())
	assert.Equal(t, 0, s.GetQueueLength())
	assert.False(t, s.HasTickInQueue(2))
}

func TestTickSmootherGetSmoothedTransformInterpolatesTowardQueuedTarget(t *testing.T) {
	s := NewTickSmoother(16, false)
	s.SetTeleportThreshold(100) // keep this test about interpolation, not the teleport path
	s.OnPostTick(1, Transform{X: 0})
	s.OnPostTick(2, Transform{X: 16})

	mid := s.GetSmoothedTransform(8)
	require.InDelta(t, 8.0, mid.X, 1e-6)

	end := s.GetSmoothedTransform(8)
	assert.InDelta(t, 16.0, end.X, 1e-6)
	assert.Equal(t, 0, s.GetQueueLength())
}
