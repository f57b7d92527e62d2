// Package factflow is a concurrent forward-chaining production-rule engine
// over boolean facts.
//
// # Model
//
// Facts are boolean propositions with fixed bit identities, packed into
// 64-bit vectors. A state is one such vector: the set of facts currently
// true. Rules pair a predicate over the state (an OR of AND-clauses, plus
// blocking clauses) with an action that computes a remove/add delta. The
// engine repeatedly scans the rules, runs every satisfied rule's action on
// its own goroutine, and folds completed deltas back into the single state
// from one coordinating goroutine.
//
//	┌──────────┐  scan   ┌───────────┐  dispatch  ┌─────────────┐
//	│  State   │────────→│   Rules   │───────────→│   Actions   │
//	│ (facts)  │         │ (rotated) │            │ (goroutines)│
//	└────▲─────┘         └───────────┘            └──────┬──────┘
//	     │                                               │
//	     └────────────── apply deltas ◄── results ◄──────┘
//
// External systems participate two ways: deltas arriving on a NATS subject
// are injected as if produced by a virtual rule, and every state transition
// can publish back out as JSON.
//
// # Packages
//
// Core:
//   - fact: facts, vectors, states, and the name registry
//   - rule: rule predicates, actions, and the builder
//   - engine: the concurrent evaluation scheduler
//
// Infrastructure:
//   - loader: JSON rule definition files
//   - config: application configuration
//   - natsclient: NATS connection management
//   - input/natsfacts: NATS-to-engine fact bridge
//   - metric: Prometheus metrics
//   - errors: structured error handling
//
// # Binary
//
// Build and run the daemon:
//
//	go build ./cmd/factflow
//	./factflow --config configs/factflow.json
//
// Facts can then be injected at runtime:
//
//	nats pub factflow.facts.delta '{"add": ["armed"]}'
package factflow
