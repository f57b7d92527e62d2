package engine

import (
	"log/slog"

	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/metric"
)

// StallHandler is invoked with the current state whenever a scan pass finds
// no rule fired and none in flight. Returning an error (conventionally one
// wrapping ErrStalled) terminates the run; returning nil lets the engine keep
// waiting, typically for externally injected facts.
type StallHandler func(state fact.State) error

// IterationHook observes the state at an iteration boundary. Hooks run
// synchronously on the coordinator goroutine.
type IterationHook func(state fact.State)

// Option configures an Engine at construction.
type Option func(*Engine)

// WithStallHandler installs the stall handler.
func WithStallHandler(h StallHandler) Option {
	return func(e *Engine) {
		e.stallHandler = h
	}
}

// WithIterationBegin installs a hook invoked with the state at the top of
// each evaluation pass.
func WithIterationBegin(h IterationHook) Option {
	return func(e *Engine) {
		e.onIterationBegin = h
	}
}

// WithIterationEnd installs a hook invoked with the state after each pass has
// drained and applied its results.
func WithIterationEnd(h IterationHook) Option {
	return func(e *Engine) {
		e.onIterationEnd = h
	}
}

// WithChangeListener installs a listener for every applied state transition.
func WithChangeListener(l ChangeListener) Option {
	return func(e *Engine) {
		e.changeListener = l
	}
}

// WithLogger replaces the default slog logger used for rule-fire,
// rule-complete and result-application trace lines.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("component", "engine")
		}
	}
}

// WithMetricsRegistry enables Prometheus metrics on the provided registry.
// Without it the engine carries no metrics (nil input = nil feature).
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(registry)
	}
}
