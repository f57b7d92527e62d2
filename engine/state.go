package engine

import (
	"sync/atomic"

	"github.com/c360/factflow/fact"
)

// ChangeListener observes every state transition the holder applies.
// It is invoked synchronously from the engine's drain step.
type ChangeListener func(old fact.State, removed, added fact.Vector, next fact.State)

// stateHolder owns the single mutable copy of the current truth assignment.
// Only the engine's drain step writes it; the value is stored atomically so
// concurrent readers (State(), observers in other goroutines) always see a
// complete assignment.
type stateHolder struct {
	value    atomic.Uint64
	listener ChangeListener
}

func newStateHolder(initial fact.State, listener ChangeListener) *stateHolder {
	h := &stateHolder{listener: listener}
	h.value.Store(uint64(initial))
	return h
}

// current returns the state as of the most recent apply.
func (h *stateHolder) current() fact.State {
	return fact.State(h.value.Load())
}

// apply computes new = (old - remove) + add and replaces the held value.
// Returns whether the value actually changed. Single writer only.
func (h *stateHolder) apply(remove, add fact.Vector) bool {
	old := h.current()
	next := old.Apply(remove, add)
	if next == old {
		return false
	}
	h.value.Store(uint64(next))
	if h.listener != nil {
		h.listener(old, remove, add, next)
	}
	return true
}
