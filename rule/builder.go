package rule

import "github.com/c360/factflow/fact"

// Builder assembles an immutable Rule from declarative combinators. A typical
// rule reads close to its natural-language statement:
//
//	r := rule.Given(armed, airborne).
//		Unless(landing).
//		Then(startTelemetry)
//
// Each Given/Or clause is an AND of its facts; clauses combine as an OR.
// Unless clauses block the rule whenever any of them holds.
type Builder struct {
	conditions    []fact.Vector
	negConditions []fact.Vector
}

// Given starts a rule with one positive AND-clause over the facts.
func Given(facts ...fact.Fact) *Builder {
	return Always().Or(facts...)
}

// Always starts a rule with no positive conditions; it is vacuously
// satisfied until Unless clauses are added. Combined with a self-gating
// Unless over a fact its own action adds, this builds one-shot rules.
func Always() *Builder {
	return &Builder{}
}

// Or adds an alternative positive AND-clause.
func (b *Builder) Or(facts ...fact.Fact) *Builder {
	b.conditions = append(b.conditions, fact.VectorOf(facts...))
	return b
}

// Unless adds a blocking AND-clause: the rule will not fire while every fact
// in the clause holds.
func (b *Builder) Unless(facts ...fact.Fact) *Builder {
	b.negConditions = append(b.negConditions, fact.VectorOf(facts...))
	return b
}

// Then attaches the action and produces the finished rule. The builder's
// clause slices are copied, so the builder can be discarded or reused without
// affecting the rule.
func (b *Builder) Then(action Action) Rule {
	if action == nil {
		action = Noop
	}
	r := &baseRule{
		conditions:    make([]fact.Vector, len(b.conditions)),
		negConditions: make([]fact.Vector, len(b.negConditions)),
		action:        action,
	}
	copy(r.conditions, b.conditions)
	copy(r.negConditions, b.negConditions)
	return r
}

// ThenDelta attaches a fixed remove/add delta as the action.
func (b *Builder) ThenDelta(remove, add fact.Vector) Rule {
	return b.Then(Delta(remove, add))
}

// ThenAdd attaches an action that adds the given facts.
func (b *Builder) ThenAdd(facts ...fact.Fact) Rule {
	return b.ThenDelta(fact.EmptyVector, fact.VectorOf(facts...))
}

// ThenRemove attaches an action that removes the given facts.
func (b *Builder) ThenRemove(facts ...fact.Fact) Rule {
	return b.ThenDelta(fact.VectorOf(facts...), fact.EmptyVector)
}
