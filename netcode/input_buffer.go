package netcode

import "github.com/sirupsen/logrus"

// inputBufferOverflowLimit is the point past which InputBuffer evicts the
// oldest entries and surfaces a warning: a healthy server acks inputs every
// tick, so unbounded growth here means the server has gone unresponsive
// (spec.md §4.2, §7).
const inputBufferOverflowLimit = 1024

// InputBuffer is the client's ordered sequence of locally generated inputs
// awaiting server acknowledgement (spec.md §4.2). It is not safe for
// concurrent use; callers drive it from the single cooperative scheduler
// thread (spec.md §5).
type InputBuffer[I HasTimestamp] struct {
	entries []InputMessage[I]
	nextSeq Seq
	log     *logrus.Entry
}

// NewInputBuffer creates an empty InputBuffer. log may be nil, in which case
// overflow warnings are discarded.
func NewInputBuffer[I HasTimestamp](log *logrus.Entry) *InputBuffer[I] {
	return &InputBuffer[I]{log: log}
}

// Add assigns the next sequence number to input, appends it, and returns
// the assigned seq.
func (b *InputBuffer[I]) Add(input I) Seq {
	seq := b.nextSeq
	b.nextSeq++
	b.entries = append(b.entries, InputMessage[I]{
		Seq:       seq,
		Input:     input,
		Timestamp: input.InputTimestamp(),
	})
	b.evictIfOverflowing()
	return seq
}

func (b *InputBuffer[I]) evictIfOverflowing() {
	if len(b.entries) <= inputBufferOverflowLimit {
		return
	}
	evicted := len(b.entries) - inputBufferOverflowLimit
	b.entries = b.entries[evicted:]
	if b.log != nil {
		b.log.WithFields(logrus.Fields{
			"system_name": "input_buffer",
			"evicted":     evicted,
			"remaining":   len(b.entries),
		}).Warn("input buffer overflow, oldest entries evicted; server may be unresponsive")
	}
}

// Acknowledge drops all entries with Seq <= lastSeq.
func (b *InputBuffer[I]) Acknowledge(lastSeq Seq) {
	i := 0
	for i < len(b.entries) && b.entries[i].Seq <= lastSeq {
		i++
	}
	if i > 0 {
		b.entries = b.entries[i:]
	}
}

// GetUnacknowledged returns entries with Seq > lastSeq, in order. The
// returned slice is a copy; callers may retain it across further Add calls.
func (b *InputBuffer[I]) GetUnacknowledged(lastSeq Seq) []InputMessage[I] {
	out := make([]InputMessage[I], 0, len(b.entries))
	for _, e := range b.entries {
		if e.Seq > lastSeq {
			out = append(out, e)
		}
	}
	return out
}

// Clear resets both the sequence counter and the contents.
func (b *InputBuffer[I]) Clear() {
	b.entries = nil
	b.nextSeq = 0
}

// Len returns the number of buffered entries.
func (b *InputBuffer[I]) Len() int {
	return len(b.entries)
}

// NextSeq returns the sequence number the next Add call will assign.
func (b *InputBuffer[I]) NextSeq() Seq {
	return b.nextSeq
}
