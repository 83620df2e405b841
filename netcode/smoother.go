package netcode

import "math"

// Transform is a rendered entity's visual state: position, rotation and
// non-uniform scale (spec.md §4.6).
type Transform struct {
	X, Y           float64
	Rotation       float64
	ScaleX, ScaleY float64
}

type smootherSample struct {
	tick      Tick
	transform Transform
}

const (
	defaultTeleportThreshold    = 4.0
	defaultInterpolationTicks   = 1.0
	defaultMinInterpolationTicks = 1.0
	defaultMaxInterpolationTicks = 6.0
	defaultAdaptiveGrowStep      = 1.0
	defaultAdaptiveShrinkStep    = 0.25
	defaultExtrapolationCapMs    = 200.0
	easeCorrectionFactor         = 0.5
)

// TickSmoother is a FishNet-style graphical interpolator decoupling
// simulation ticks from render frames (spec.md §4.6). One instance exists
// per rendered entity: the local player ("owner") plus one per remote
// player ("spectator"). It is not safe for concurrent use.
type TickSmoother struct {
	isOwner bool

	current     Transform
	initialized bool

	queue            []smootherSample
	legInProgress    bool
	legStart         Transform
	legTarget        smootherSample
	legElapsedMs     float64
	lastEnqueuedTick Tick
	hasEnqueued      bool
	lastConsumedTick Tick
	hasConsumed      bool

	tickIntervalMs     float64
	teleportThreshold  float64
	interpolationTicks float64
	pendingInterpTicks float64
	minInterpTicks     float64
	maxInterpTicks     float64
	growStep           float64
	shrinkStep         float64

	smoothX, smoothY, smoothRotation, smoothScale bool

	extrapolationEnabled bool
	extrapolationCapMs   float64
	extrapolatedSoFarMs  float64
	lastVelocity         Transform // units per ms
}

// NewTickSmoother creates a smoother for one entity. isOwner marks the
// locally controlled player's smoother, which ignores adaptive interpolation
// resizing (spec.md §4.6 invariants).
func NewTickSmoother(tickIntervalMs float64, isOwner bool) *TickSmoother {
	return &TickSmoother{
		isOwner:              isOwner,
		tickIntervalMs:       tickIntervalMs,
		teleportThreshold:    defaultTeleportThreshold,
		interpolationTicks:   defaultInterpolationTicks,
		pendingInterpTicks:   defaultInterpolationTicks,
		minInterpTicks:       defaultMinInterpolationTicks,
		maxInterpTicks:       defaultMaxInterpolationTicks,
		growStep:             defaultAdaptiveGrowStep,
		shrinkStep:           defaultAdaptiveShrinkStep,
		smoothX:              true,
		smoothY:              true,
		smoothRotation:       true,
		smoothScale:          true,
		extrapolationEnabled: !isOwner,
		extrapolationCapMs:   defaultExtrapolationCapMs,
	}
}

// SetTeleportThreshold overrides the distance beyond which a new sample
// causes an immediate snap and queue flush instead of interpolation.
func (s *TickSmoother) SetTeleportThreshold(d float64) { s.teleportThreshold = d }

// SetAxisSmoothing toggles per-axis smoothing. A disabled axis snaps to the
// target value immediately instead of interpolating.
func (s *TickSmoother) SetAxisSmoothing(x, y, rotation, scale bool) {
	s.smoothX, s.smoothY, s.smoothRotation, s.smoothScale = x, y, rotation, scale
}

// SetExtrapolationCap overrides how long (ms) a spectator smoother may keep
// extrapolating from last observed velocity once its queue runs dry.
func (s *TickSmoother) SetExtrapolationCap(ms float64) { s.extrapolationCapMs = ms }

// OnPostTick feeds one tick's authoritative (or predicted, for the owner)
// sample. The very first call initialises the rendered position without
// enqueueing. Out-of-order and duplicate ticks are discarded; stale ticks
// (<= the most recently consumed tick) are discarded.
func (s *TickSmoother) OnPostTick(tick Tick, t Transform) {
	if !s.initialized {
		s.current = t
		s.initialized = true
		s.lastEnqueuedTick = tick
		s.hasEnqueued = true
		return
	}

	if s.hasEnqueued && tick <= s.lastEnqueuedTick {
		return // out of order or duplicate
	}
	if s.hasConsumed && tick <= s.lastConsumedTick {
		return // stale
	}

	s.queue = append(s.queue, smootherSample{tick: tick, transform: t})
	s.lastEnqueuedTick = tick
	s.hasEnqueued = true

	// Resolved Open Question (SPEC_FULL.md §9): an adaptive resize pending
	// from UpdateAdaptiveInterpolation only takes effect here, on the next
	// enqueue, so an in-flight ease finishes at the window size that was
	// in effect when it started.
	s.interpolationTicks = s.pendingInterpTicks
}

// GetSmoothedTransform advances the rendered transform toward the
// head-of-queue target at a rate of one tick's worth of distance per
// tickIntervalMs; on reaching the target it pops it and continues into the
// next, spending any leftover delta within the same call.
func (s *TickSmoother) GetSmoothedTransform(deltaMs float64) Transform {
	remaining := deltaMs
	for remaining > 1e-9 {
		if !s.legInProgress {
			if len(s.queue) < requiredBufferedSamples(s.interpolationTicks) {
				break
			}
			target := s.queue[0]
			dist := distance(s.current.X, s.current.Y, target.transform.X, target.transform.Y)
			if dist > s.teleportThreshold {
				s.current = target.transform
				s.lastConsumedTick = target.tick
				s.hasConsumed = true
				s.lastVelocity = Transform{}
				s.extrapolatedSoFarMs = 0
				s.queue = nil // flush: a teleport invalidates the rest of the buffered path
				continue
			}
			s.legStart = s.current
			s.legTarget = target
			s.legElapsedMs = 0
			s.legInProgress = true
		}

		legDuration := s.tickIntervalMs
		if legDuration <= 0 {
			legDuration = 1
		}
		timeLeft := legDuration - s.legElapsedMs
		step := remaining
		if step > timeLeft {
			step = timeLeft
		}
		s.legElapsedMs += step
		remaining -= step

		frac := s.legElapsedMs / legDuration
		if frac > 1 {
			frac = 1
		}
		s.current = s.lerp(s.legStart, s.legTarget.transform, frac)

		if frac >= 1-1e-9 {
			s.lastConsumedTick = s.legTarget.tick
			s.hasConsumed = true
			s.lastVelocity = Transform{
				X:        (s.legTarget.transform.X - s.legStart.X) / legDuration,
				Y:        (s.legTarget.transform.Y - s.legStart.Y) / legDuration,
				Rotation: (s.legTarget.transform.Rotation - s.legStart.Rotation) / legDuration,
			}
			s.extrapolatedSoFarMs = 0
			s.queue = s.queue[1:]
			s.legInProgress = false
		}
	}

	if remaining > 1e-9 && !s.legInProgress && len(s.queue) == 0 && s.extrapolationEnabled {
		s.extrapolate(remaining)
	}

	return s.current
}

func requiredBufferedSamples(interpolationTicks float64) int {
	n := int(math.Ceil(interpolationTicks))
	if n < 1 {
		n = 1
	}
	return n
}

func (s *TickSmoother) extrapolate(ms float64) {
	budget := s.extrapolationCapMs - s.extrapolatedSoFarMs
	if budget <= 0 {
		return
	}
	used := ms
	if used > budget {
		used = budget
	}
	s.extrapolatedSoFarMs += used
	if s.smoothX {
		s.current.X += s.lastVelocity.X * used
	}
	if s.smoothY {
		s.current.Y += s.lastVelocity.Y * used
	}
	if s.smoothRotation {
		s.current.Rotation += s.lastVelocity.Rotation * used
	}
}

func (s *TickSmoother) lerp(from, to Transform, frac float64) Transform {
	out := from
	if s.smoothX {
		out.X = from.X + (to.X-from.X)*frac
	} else {
		out.X = to.X
	}
	if s.smoothY {
		out.Y = from.Y + (to.Y-from.Y)*frac
	} else {
		out.Y = to.Y
	}
	if s.smoothRotation {
		out.Rotation = from.Rotation + (to.Rotation-from.Rotation)*frac
	} else {
		out.Rotation = to.Rotation
	}
	if s.smoothScale {
		out.ScaleX = from.ScaleX + (to.ScaleX-from.ScaleX)*frac
		out.ScaleY = from.ScaleY + (to.ScaleY-from.ScaleY)*frac
	} else {
		out.ScaleX = to.ScaleX
		out.ScaleY = to.ScaleY
	}
	return out
}

// EaseCorrection blends a correction into the queued (or in-flight) sample
// tagged tick, returning false when that tick is not present. A fixed
// blend fraction is used per spec.md §9's open question resolution.
func (s *TickSmoother) EaseCorrection(tick Tick, corrected Vec2) bool {
	if s.legInProgress && s.legTarget.tick == tick {
		s.legTarget.transform.X += (corrected.X - s.legTarget.transform.X) * easeCorrectionFactor
		s.legTarget.transform.Y += (corrected.Y - s.legTarget.transform.Y) * easeCorrectionFactor
		return true
	}
	for i := range s.queue {
		if s.queue[i].tick == tick {
			s.queue[i].transform.X += (corrected.X - s.queue[i].transform.X) * easeCorrectionFactor
			s.queue[i].transform.Y += (corrected.Y - s.queue[i].transform.Y) * easeCorrectionFactor
			return true
		}
	}
	return false
}

// HasTickInQueue reports whether tick is present in the in-flight leg or
// the pending queue. EaseCorrection(t, ...) returns true iff
// HasTickInQueue(t) is true (spec.md §8 testable property).
func (s *TickSmoother) HasTickInQueue(tick Tick) bool {
	if s.legInProgress && s.legTarget.tick == tick {
		return true
	}
	for i := range s.queue {
		if s.queue[i].tick == tick {
			return true
		}
	}
	return false
}

// UpdateAdaptiveInterpolation grows or shrinks the interpolation window in
// proportion to measured server-tick lag, subject to a monotone clamp.
// Owner smoothers ignore this call entirely: they are driven by prediction
// corrections, not by the sample stream (spec.md §4.6 invariant).
func (s *TickSmoother) UpdateAdaptiveInterpolation(tickLag float64) {
	if s.isOwner {
		return
	}
	desired := s.minInterpTicks + tickLag
	if desired > s.maxInterpTicks {
		desired = s.maxInterpTicks
	}
	if desired < s.minInterpTicks {
		desired = s.minInterpTicks
	}

	current := s.pendingInterpTicks
	switch {
	case desired > current:
		current += s.growStep
		if current > desired {
			current = desired
		}
	case desired < current:
		current -= s.shrinkStep
		if current < desired {
			current = desired
		}
	}
	if current > s.maxInterpTicks {
		current = s.maxInterpTicks
	}
	if current < s.minInterpTicks {
		current = s.minInterpTicks
	}
	s.pendingInterpTicks = current
}

// GetQueueLength returns the number of buffered samples not yet consumed.
// The sample an in-flight leg is heading toward stays in the queue, and is
// counted, until that leg completes.
func (s *TickSmoother) GetQueueLength() int { return len(s.queue) }

// CurrentTransform returns the rendered transform without advancing time.
func (s *TickSmoother) CurrentTransform() Transform { return s.current }

// ShouldHardReset reports whether a reconciliation correction delta is large
// enough that the smoother should snap instead of ease (spec.md §4.9).
func (s *TickSmoother) ShouldHardReset(delta Vec2) bool {
	return distance(0, 0, delta.X, delta.Y) > s.teleportThreshold
}

// Reset hard-resets the smoother to a new position, clearing the queue and
// any in-flight leg. Used when reconciliation detects a correction beyond
// the teleport threshold (spec.md §4.9).
func (s *TickSmoother) Reset(t Transform) {
	s.current = t
	s.initialized = true
	s.queue = nil
	s.legInProgress = false
	s.hasConsumed = false
	s.extrapolatedSoFarMs = 0
	s.lastVelocity = Transform{}
}

func distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}
