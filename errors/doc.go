// Package errors provides standardized error handling patterns for FactFlow components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// This classification enables intelligent error handling strategies throughout
// FactFlow, allowing components to make informed decisions about retries,
// graceful degradation, and failure escalation without hardcoded error string
// matching.
//
// The classification system integrates with Go's standard error handling
// patterns, supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if reg.Count() >= fact.Width {
//	    return errors.ErrCapacityExceeded
//	}
//
// Wrap errors with context for debugging:
//
//	if err := bridge.connect(ctx); err != nil {
//	    return errors.WrapTransient(err, "Bridge", "Start", "connect")
//	}
//
// Check classification for handling decisions:
//
//	if err := op(); err != nil {
//	    if errors.IsTransient(err) {
//	        // safe to retry
//	    } else if errors.IsFatal(err) {
//	        // stop processing, escalate
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // retryable
//	errors.WrapInvalid(err, "Component", "Method", "action")    // validation
//	errors.WrapFatal(err, "Component", "Method", "action")      // unrecoverable
//
// The generic Wrap() function adds context without forcing a classification.
//
// # Standard Error Variables
//
// Pre-defined error variables cover the common conditions, organized by category:
//
//   - Engine lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrShuttingDown
//   - Fact and rule base: ErrCapacityExceeded, ErrUnknownFact, ErrDuplicateFact, ErrNoRules
//   - Connection issues: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout
//   - Data handling: ErrInvalidData, ErrParsingFailed
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// Use these variables instead of creating custom error messages so callers can
// test conditions with errors.Is().
package errors
