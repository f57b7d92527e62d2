// Package fact provides the bit-vector model underlying FactFlow rule bases.
//
// A Fact is an atomic boolean proposition with a small integer identity. A
// Vector is an immutable set of facts packed into a single machine word, and
// a State is the engine's current truth assignment in the same encoding. All
// set operations (union, difference, superset test) are single bitwise
// instructions, which keeps rule matching O(1) regardless of rule base size.
//
// Identities are allocated by a Registry, bounded at Width facts. Each rule
// base owns its own Registry; over-allocation fails at construction time with
// errors.ErrCapacityExceeded, never during evaluation.
//
//	reg := fact.NewRegistry()
//	armed := reg.MustAllocate("armed")
//	airborne := reg.MustAllocate("airborne")
//
//	state := fact.StateOf(armed)
//	state.Matches(fact.VectorOf(armed))           // true
//	state.Matches(fact.VectorOf(armed, airborne)) // false
//	state = state.Apply(fact.EmptyVector, airborne.Vector())
package fact
