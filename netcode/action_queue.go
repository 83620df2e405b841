package netcode

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QueuedAction is one action pending processing, tagged with the client
// that sent it.
type QueuedAction[A any] struct {
	ClientID PlayerID
	Message  ActionMessage[A]
}

// ActionQueue is the server's single FIFO of received actions, drained at
// the start of every tick before Simulate runs (spec.md §4.12). Enqueue is
// safe to call concurrently from multiple connection goroutines; DrainAll
// is intended for the sole tick-thread consumer.
type ActionQueue[A any] struct {
	mu    sync.Mutex
	queue []QueuedAction[A]
}

// NewActionQueue creates an empty ActionQueue.
func NewActionQueue[A any]() *ActionQueue[A] {
	return &ActionQueue[A]{}
}

// Enqueue appends an action in receipt order.
func (q *ActionQueue[A]) Enqueue(clientID PlayerID, msg ActionMessage[A]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, QueuedAction[A]{ClientID: clientID, Message: msg})
}

// DrainAll returns and clears every queued action, oldest first.
func (q *ActionQueue[A]) DrainAll() []QueuedAction[A] {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.queue
	q.queue = nil
	return drained
}

// Len reports the number of actions currently queued.
func (q *ActionQueue[A]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// ActionOutcome pairs the client that sent a drained action with the
// ActionResult to send back to it.
type ActionOutcome[A any, R any] struct {
	ClientID PlayerID
	Result   ActionResult[R]
}

// ActionProcessor implements spec.md §4.12's three steps: validate against
// a rewound snapshot, apply the effect to the current world on success, and
// produce the ActionResult to send back.
type ActionProcessor[W any, A any, R any] struct {
	validate           ActionValidator[W, A, R]
	applyEffect        ApplyActionEffect[W, A, R]
	lagCompensator     *LagCompensator[W]
	interpolationDelay time.Duration
	log                *logrus.Entry
}

// NewActionProcessor creates an ActionProcessor. applyEffect may be nil for
// games with no server-side action effects (validation-only actions).
func NewActionProcessor[W any, A any, R any](
	validate ActionValidator[W, A, R],
	applyEffect ApplyActionEffect[W, A, R],
	lagCompensator *LagCompensator[W],
	interpolationDelay time.Duration,
	log *logrus.Entry,
) *ActionProcessor[W, A, R] {
	return &ActionProcessor[W, A, R]{
		validate:           validate,
		applyEffect:        applyEffect,
		lagCompensator:     lagCompensator,
		interpolationDelay: interpolationDelay,
		log:                log,
	}
}

// ProcessOne validates one queued action against its rewound snapshot and,
// on success, applies its effect to currentWorld. clockOffset is the
// server-minus-client clock offset estimated for this client (spec.md
// §4.11).
func (p *ActionProcessor[W, A, R]) ProcessOne(currentWorld W, action QueuedAction[A], clockOffset time.Duration) (W, ActionResult[R]) {
	rewound, ok := p.lagCompensator.Rewind(action.Message.ClientTimestamp, clockOffset, p.interpolationDelay)
	if !ok {
		return currentWorld, ActionResult[R]{
			Seq:     action.Message.Seq,
			Success: false,
			Error:   "no retained snapshot to validate against",
		}
	}

	result, err := p.validate(action.Message.Action, rewound.Snapshot.State, action.ClientID)
	if err != nil {
		return currentWorld, ActionResult[R]{
			Seq:     action.Message.Seq,
			Success: false,
			Error:   err.Error(),
		}
	}

	nextWorld := currentWorld
	if p.applyEffect != nil {
		var applyErr error
		nextWorld, applyErr = p.applyEffect(currentWorld, action.Message.Action, action.ClientID, result)
		if applyErr != nil {
			return currentWorld, ActionResult[R]{
				Seq:     action.Message.Seq,
				Success: false,
				Error:   applyErr.Error(),
			}
		}
	}

	if p.log != nil {
		p.log.WithFields(logrus.Fields{
			"system_name": "action_processor",
			"client":      action.ClientID,
			"seq":         action.Message.Seq,
			"clamped":     rewound.ClampedToEarliest,
		}).Debug("action validated and applied")
	}

	return nextWorld, ActionResult[R]{Seq: action.Message.Seq, Success: true, Result: result}
}
