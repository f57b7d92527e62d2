package rule

import (
	"context"
	"fmt"

	"github.com/c360/factflow/fact"
)

// Result is the effect of a completed action: the facts it wants removed and
// the facts it wants added, packed as two independent vectors. Removal is
// applied before addition.
type Result struct {
	Remove fact.Vector
	Add    fact.Vector
}

// Void is the result that changes nothing.
var Void = Result{}

// IsVoid reports whether applying the result would leave any state unchanged.
func (r Result) IsVoid() bool {
	return r.Remove.IsEmpty() && r.Add.IsEmpty()
}

// Action computes a rule's effect given the state it was dispatched against.
// Actions run concurrently with the engine loop and with each other; they
// must not mutate shared state and should honor ctx cancellation if they
// block.
type Action func(ctx context.Context, state fact.State) (Result, error)

// Delta returns an action that always produces the given fixed result.
func Delta(remove, add fact.Vector) Action {
	res := Result{Remove: remove, Add: add}
	return func(context.Context, fact.State) (Result, error) {
		return res, nil
	}
}

// Noop is an action with no effect.
func Noop(context.Context, fact.State) (Result, error) {
	return Void, nil
}

// Rule is an immutable condition→action mapping. Conditions are a disjunction
// of AND-clauses that must hold; negative conditions are a disjunction of
// AND-clauses that must NOT hold. Rules are shared read-only between the
// engine and all concurrently executing actions.
type Rule interface {
	fmt.Stringer

	// Conditions returns the positive clauses (OR of AND-clauses). An empty
	// slice is vacuously satisfied.
	Conditions() []fact.Vector

	// NegConditions returns the blocking clauses. An empty slice never blocks.
	NegConditions() []fact.Vector

	// Action returns the action dispatched when the rule fires.
	Action() Action
}

// Eval evaluates a rule's predicate against a state:
// (no conditions OR any condition clause matches) AND no negative clause
// matches. Short-circuits left to right. Pure; safe to call concurrently any
// number of times.
func Eval(r Rule, state fact.State) bool {
	conds := r.Conditions()
	if len(conds) > 0 {
		matched := false
		for _, c := range conds {
			if state.Matches(c) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, n := range r.NegConditions() {
		if state.Matches(n) {
			return false
		}
	}
	return true
}

// baseRule is the canonical Rule implementation produced by the builder.
type baseRule struct {
	conditions    []fact.Vector
	negConditions []fact.Vector
	action        Action
}

func (r *baseRule) Conditions() []fact.Vector {
	return r.conditions
}

func (r *baseRule) NegConditions() []fact.Vector {
	return r.negConditions
}

func (r *baseRule) Action() Action {
	return r.action
}

func (r *baseRule) String() string {
	return fmt.Sprintf("rule(given=%v unless=%v)", r.conditions, r.negConditions)
}
