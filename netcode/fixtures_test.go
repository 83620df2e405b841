package netcode

import "time"

// testWorld and testInput are a minimal domain used to exercise the
// generic core (Predictor, Reconciler) against something other than one
// of the bundled example games: a single float position per player,
// advanced by StepLocalOnly and read back by GetLocalPlayerPosition.
type testWorld struct {
	tick Tick
	pos  map[PlayerID]Vec2
}

func newTestWorld(tick Tick, positions map[PlayerID]Vec2) testWorld {
	next := make(map[PlayerID]Vec2, len(positions))
	for id, p := range positions {
		next[id] = p
	}
	return testWorld{tick: tick, pos: next}
}

func (w testWorld) clone() testWorld {
	return newTestWorld(w.tick, w.pos)
}

type testInput struct {
	DX, DY float64
	TS     time.Time
}

func (i testInput) InputTimestamp() time.Time { return i.TS }

// testScope implements PredictionScope[testWorld, testInput] by moving the
// local player by (DX, DY) per millisecond of delta and leaving every other
// player untouched, the simplest possible faithful rendering of "every
// World-producing function returns a new World".
type testScope struct{}

var _ PredictionScope[testWorld, testInput] = testScope{}

func (testScope) StepLocalOnly(world testWorld, localPlayerID PlayerID, input testInput, deltaMs float64) (testWorld, error) {
	next := world.clone()
	p := next.pos[localPlayerID]
	p.X += input.DX * deltaMs
	p.Y += input.DY * deltaMs
	next.pos[localPlayerID] = p
	next.tick++
	return next, nil
}

func (testScope) ExtractLocalPlayer(world testWorld, localPlayerID PlayerID) (any, bool) {
	p, ok := world.pos[localPlayerID]
	return p, ok
}

func (testScope) ReplaceLocalPlayer(world testWorld, localPlayerID PlayerID, playerState any) (testWorld, error) {
	next := world.clone()
	next.pos[localPlayerID] = playerState.(Vec2)
	return next, nil
}

func (testScope) GetLocalPlayerPosition(world testWorld, id PlayerID) (Vec2, bool) {
	p, ok := world.pos[id]
	return p, ok
}

func tsAt(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}
