// Package engine implements the concurrent forward-chaining scheduler that
// drives factflow.
//
// # Overview
//
// An Engine holds an immutable rule list and the single mutable fact state.
// Evaluate repeatedly scans the rules in rotated order, launches the action
// of every satisfied rule on its own goroutine, and drains completed results
// through one channel, applying each delta from exactly one goroutine. The
// result channel is sized so every rule can hold one pending result without
// blocking its sender.
//
// # Scheduling
//
// Each scan starts just past the index of the most recently completed rule,
// so a rule that keeps refiring cannot starve the ones after it. Rules whose
// condition stays satisfied after their action completes fire again on the
// next scan; there is no per-firing memory.
//
// A pass that finds no rule active and none in flight is a stall. The engine
// reports it to the optional StallHandler and otherwise waits, since
// externally injected facts (ApplyExternalFacts) can wake the system at any
// time. Termination is always external: context cancellation or a stall
// handler error.
package engine
