package fact

import (
	"fmt"
	"math/bits"
	"strings"
)

// Width is the number of distinct facts a single rule base can hold.
// Vectors and states are one machine word, so matching stays O(1).
const Width = 64

// Fact is an atomic boolean proposition with a small integer identity
// assigned by a Registry.
type Fact struct {
	id   int
	name string
}

// ID returns the fact's identity in [0, Width).
func (f Fact) ID() int {
	return f.id
}

// Name returns the display name the fact was registered under.
func (f Fact) Name() string {
	return f.name
}

// Vector returns the single-bit vector for this fact.
func (f Fact) Vector() Vector {
	return Vector(1) << uint(f.id)
}

// String returns the fact's name, or its id if unnamed.
func (f Fact) String() string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("fact(%d)", f.id)
}

// Vector is an immutable set of facts encoded as a bitmask.
type Vector uint64

// EmptyVector is the vector containing no facts.
const EmptyVector Vector = 0

// VectorOf folds one or more facts into a single vector.
func VectorOf(facts ...Fact) Vector {
	v := EmptyVector
	for _, f := range facts {
		v |= f.Vector()
	}
	return v
}

// Union returns the vector containing every fact in v or o.
func (v Vector) Union(o Vector) Vector {
	return v | o
}

// Diff returns the vector containing the facts in v that are not in o.
func (v Vector) Diff(o Vector) Vector {
	return v &^ o
}

// Contains reports whether every fact in o is also in v.
func (v Vector) Contains(o Vector) bool {
	return v&o == o
}

// IsEmpty reports whether the vector contains no facts.
func (v Vector) IsEmpty() bool {
	return v == EmptyVector
}

// Count returns the number of facts in the vector.
func (v Vector) Count() int {
	return bits.OnesCount64(uint64(v))
}

// IDs returns the fact ids set in the vector, in ascending order.
func (v Vector) IDs() []int {
	ids := make([]int, 0, v.Count())
	for w := uint64(v); w != 0; {
		id := bits.TrailingZeros64(w)
		ids = append(ids, id)
		w &^= 1 << uint(id)
	}
	return ids
}

// String returns a compact diagnostic form listing the set fact ids.
func (v Vector) String() string {
	if v.IsEmpty() {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, id := range v.IDs() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", id)
	}
	sb.WriteByte('}')
	return sb.String()
}

// State is the engine's current truth assignment. It uses the same encoding
// as Vector but represents what is currently true rather than a set used in
// a condition or delta.
type State uint64

// VoidState is the state in which no fact holds.
const VoidState State = 0

// StateOf builds a state from the given facts.
func StateOf(facts ...Fact) State {
	return State(VectorOf(facts...))
}

// StateFrom builds the state holding exactly the facts in v.
func StateFrom(v Vector) State {
	return State(v)
}

// Matches reports whether every fact in the clause is currently true.
func (s State) Matches(clause Vector) bool {
	return uint64(s)&uint64(clause) == uint64(clause)
}

// Apply returns the state after removing and then adding the given deltas.
func (s State) Apply(remove, add Vector) State {
	return State((uint64(s) &^ uint64(remove)) | uint64(add))
}

// Vector returns the set of currently true facts.
func (s State) Vector() Vector {
	return Vector(s)
}

// String returns the same diagnostic form as Vector.
func (s State) String() string {
	return Vector(s).String()
}
