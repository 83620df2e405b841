package netcode

import "github.com/sirupsen/logrus"

// TickProcessor drains input queues, merges per-client inputs and runs
// Simulate exactly once per tick (spec.md §4.7).
type TickProcessor[W any, I HasTimestamp] struct {
	simulate   Simulator[W, I]
	merger     InputMerger[I]
	idleInput  IdleInputFactory[I]
	tickMs     float64
	log        *logrus.Entry
}

// NewTickProcessor creates a TickProcessor. tickIntervalMs is the fixed
// delta Simulate is invoked with every tick.
func NewTickProcessor[W any, I HasTimestamp](
	simulate Simulator[W, I],
	merger InputMerger[I],
	idleInput IdleInputFactory[I],
	tickIntervalMs float64,
	log *logrus.Entry,
) *TickProcessor[W, I] {
	return &TickProcessor[W, I]{
		simulate:  simulate,
		merger:    merger,
		idleInput: idleInput,
		tickMs:    tickIntervalMs,
		log:       log,
	}
}

// ProcessResult reports what happened in one Process call.
type ProcessResult[W any] struct {
	World     W
	InputAcks map[PlayerID]Seq
}

// Process runs one tick for the given connected client set. batched is the
// tick-time snapshot of pending inputs per client
// (InputQueue.GetAllPendingInputsBatched); connected must include every
// currently connected client, even those with no pending input, so idle
// clients still receive the idle sentinel (spec.md §4.7 contract).
func (p *TickProcessor[W, I]) Process(world W, connected []PlayerID, batched map[PlayerID][]InputMessage[I]) (ProcessResult[W], error) {
	merged := make(map[PlayerID]I, len(connected))
	acks := make(map[PlayerID]Seq, len(connected))

	idleCount := 0
	for _, id := range connected {
		pending := batched[id]
		if len(pending) == 0 {
			merged[id] = p.idleInput()
			idleCount++
			continue
		}
		inputs := make([]I, len(pending))
		highest := pending[0].Seq
		for i, m := range pending {
			inputs[i] = m.Input
			if m.Seq > highest {
				highest = m.Seq
			}
		}
		merged[id] = p.merger(inputs)
		acks[id] = highest
	}

	if p.log != nil {
		p.log.WithFields(logrus.Fields{
			"system_name": "tick_processor",
			"clients":     len(connected),
			"idle":        idleCount,
		}).Debug("processing tick")
	}

	next, err := func() (world W, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &simulatePanicError{recovered: r}
			}
		}()
		return p.simulate.Simulate(world, merged, p.tickMs)
	}()
	if err != nil {
		return ProcessResult[W]{}, err
	}

	return ProcessResult[W]{World: next, InputAcks: acks}, nil
}
