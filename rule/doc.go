// Package rule defines the declarative rule model consumed by the FactFlow
// engine: conditions in disjunctive normal form over bit-vector fact sets,
// blocking negative conditions, and concurrently executed actions.
//
// # Predicate semantics
//
// A rule fires when its positive conditions are satisfied and none of its
// negative conditions hold:
//
//	(no conditions OR any positive clause matches) AND (no negative clause matches)
//
// Each clause is an AND over its facts; clauses combine as an OR. An empty
// conditions list is vacuously satisfied, and an empty negative list never
// blocks. Evaluation is pure and safe under unbounded concurrency.
//
// # Authoring
//
// Rules are built with combinators and optionally named for diagnostics:
//
//	takeoff := rule.Named("takeoff",
//		rule.Given(armed).
//			Unless(airborne).
//			ThenAdd(airborne))
//
// Actions are functions of the dispatched-against state. They may do real
// work (I/O, computation) and return the facts to remove and add; the engine
// serializes applying those deltas. A rule whose positive condition stays
// true and that carries no negative guard refires on every engine pass —
// rules that should fire once gate themselves with Unless over a fact their
// own action adds.
package rule
