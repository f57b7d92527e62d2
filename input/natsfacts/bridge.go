// Package natsfacts bridges NATS subjects to a running engine: inbound JSON
// deltas become externally injected facts, and state transitions publish back
// out as JSON.
package natsfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/metric"
	"github.com/c360/factflow/natsclient"
	"github.com/c360/factflow/rule"
)

// Metrics holds Prometheus metrics for the NATS fact bridge
type Metrics struct {
	deltasReceived prometheus.Counter
	deltasRejected prometheus.Counter
	deltasInjected prometheus.Counter
	statesPublished prometheus.Counter
	publishErrors  prometheus.Counter
	lastActivity   prometheus.Gauge
}

// newMetrics creates and registers bridge metrics
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	m := &Metrics{
		deltasReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "deltas_received_total",
			Help:      "Total delta messages received",
		}),
		deltasRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "deltas_rejected_total",
			Help:      "Delta messages rejected as unparseable or naming unknown facts",
		}),
		deltasInjected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "deltas_injected_total",
			Help:      "Deltas handed to the engine",
		}),
		statesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "states_published_total",
			Help:      "State transitions published",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "publish_errors_total",
			Help:      "Failed state publications",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "factflow",
			Subsystem: "natsfacts",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received delta",
		}),
	}

	registry.RegisterCounter("natsfacts", "deltas_received", m.deltasReceived)
	registry.RegisterCounter("natsfacts", "deltas_rejected", m.deltasRejected)
	registry.RegisterCounter("natsfacts", "deltas_injected", m.deltasInjected)
	registry.RegisterCounter("natsfacts", "states_published", m.statesPublished)
	registry.RegisterCounter("natsfacts", "publish_errors", m.publishErrors)
	registry.RegisterGauge("natsfacts", "last_activity", m.lastActivity)

	return m
}

// DeltaMessage is the inbound wire shape: fact names to remove and add.
type DeltaMessage struct {
	Remove []string `json:"remove,omitempty"`
	Add    []string `json:"add,omitempty"`
}

// StateMessage is the outbound wire shape emitted on every state transition.
type StateMessage struct {
	Facts   []string `json:"facts"`
	Removed []string `json:"removed,omitempty"`
	Added   []string `json:"added,omitempty"`
}

// Injector receives resolved deltas. The engine satisfies it.
type Injector interface {
	ApplyExternalFacts(rule.Result) error
}

// BridgeConfig holds configuration for the NATS fact bridge
type BridgeConfig struct {
	// DeltaSubject is the subject inbound fact deltas arrive on.
	DeltaSubject string `json:"delta_subject"`
	// StateSubject is the subject state transitions publish to. Empty
	// disables publication.
	StateSubject string `json:"state_subject,omitempty"`
}

// DefaultConfig returns sensible defaults for the bridge
func DefaultConfig() BridgeConfig {
	return BridgeConfig{
		DeltaSubject: "factflow.facts.delta",
		StateSubject: "factflow.facts.state",
	}
}

// Validate checks the configuration
func (c *BridgeConfig) Validate() error {
	if c.DeltaSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"BridgeConfig", "Validate", "delta subject validation")
	}
	return nil
}

// BridgeDeps holds runtime dependencies for the bridge
type BridgeDeps struct {
	Config          BridgeConfig
	Registry        *fact.Registry
	Injector        Injector
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Bridge subscribes to fact deltas and forwards them into the engine.
// Lifecycle: Initialize, Start(ctx), Stop(timeout).
type Bridge struct {
	config     BridgeConfig
	registry   *fact.Registry
	injector   Injector
	natsClient *natsclient.Client
	logger     *slog.Logger

	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex

	received atomic.Int64
	rejected atomic.Int64

	metrics *Metrics
}

// NewBridge creates a bridge from its dependencies.
func NewBridge(deps BridgeDeps) *Bridge {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "natsfacts")
	}

	return &Bridge{
		config:     deps.Config,
		registry:   deps.Registry,
		injector:   deps.Injector,
		natsClient: deps.NATSClient,
		logger:     logger,
		metrics:    newMetrics(deps.MetricsRegistry),
	}
}

// Initialize validates the wiring but opens nothing.
func (b *Bridge) Initialize() error {
	if err := b.config.Validate(); err != nil {
		return err
	}
	if b.registry == nil {
		return errors.WrapInvalid(fmt.Errorf("nil fact registry"),
			"natsfacts", "Initialize", "registry validation")
	}
	if b.injector == nil {
		return errors.WrapInvalid(fmt.Errorf("nil injector"),
			"natsfacts", "Initialize", "injector validation")
	}
	if b.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"natsfacts", "Initialize", "NATS client validation")
	}
	return nil
}

// Start subscribes to the delta subject. Idempotent while running.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return nil
	}

	if err := b.natsClient.Subscribe(ctx, b.config.DeltaSubject, b.handleDelta); err != nil {
		return errors.WrapTransient(err, "natsfacts", "Start", "subscribe to delta subject")
	}

	b.running.Store(true)
	b.startTime = time.Now()
	b.logger.Info("Fact bridge started",
		"delta_subject", b.config.DeltaSubject,
		"state_subject", b.config.StateSubject)
	return nil
}

// Stop marks the bridge stopped. The subscription itself is owned by the
// NATS client and torn down with it.
func (b *Bridge) Stop(_ time.Duration) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	b.logger.Info("Fact bridge stopped",
		"deltas_received", b.received.Load(),
		"deltas_rejected", b.rejected.Load())
	return nil
}

// handleDelta parses one inbound message and injects it. Rejections are
// counted and logged, never fatal.
func (b *Bridge) handleDelta(_ context.Context, data []byte) {
	if !b.running.Load() {
		return
	}

	b.received.Add(1)
	if b.metrics != nil {
		b.metrics.deltasReceived.Inc()
		b.metrics.lastActivity.Set(float64(time.Now().Unix()))
	}

	res, err := b.parseDelta(data)
	if err != nil {
		b.rejected.Add(1)
		if b.metrics != nil {
			b.metrics.deltasRejected.Inc()
		}
		b.logger.Error("Rejected fact delta", "error", err)
		return
	}

	if err := b.injector.ApplyExternalFacts(res); err != nil {
		b.rejected.Add(1)
		if b.metrics != nil {
			b.metrics.deltasRejected.Inc()
		}
		b.logger.Error("Failed to inject fact delta", "error", err)
		return
	}

	if b.metrics != nil {
		b.metrics.deltasInjected.Inc()
	}
}

// parseDelta resolves a wire message against the registry. Unknown fact
// names reject the whole message; the registry is sealed once rules are
// built, so a name it lacks is a producer error, not a new fact.
func (b *Bridge) parseDelta(data []byte) (rule.Result, error) {
	var msg DeltaMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return rule.Void, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"natsfacts", "parseDelta", "unmarshal delta")
	}

	remove, err := b.resolve(msg.Remove)
	if err != nil {
		return rule.Void, err
	}
	add, err := b.resolve(msg.Add)
	if err != nil {
		return rule.Void, err
	}

	return rule.Result{Remove: remove, Add: add}, nil
}

func (b *Bridge) resolve(names []string) (fact.Vector, error) {
	v := fact.EmptyVector
	for _, name := range names {
		f, ok := b.registry.Lookup(name)
		if !ok {
			return fact.EmptyVector, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownFact, name),
				"natsfacts", "resolve", "resolve fact name")
		}
		v = v.Union(f.Vector())
	}
	return v, nil
}

// ChangeListener returns a listener that publishes every state transition to
// the configured state subject. Returns nil when publication is disabled.
func (b *Bridge) ChangeListener() func(fact.State, fact.Vector, fact.Vector, fact.State) {
	if b.config.StateSubject == "" {
		return nil
	}

	return func(old fact.State, _, _ fact.Vector, next fact.State) {
		// Report actual transitions, not the requested delta, which may have
		// overlapped facts already held or already absent.
		msg := StateMessage{
			Facts:   b.registry.Names(next.Vector()),
			Removed: b.registry.Names(old.Vector().Diff(next.Vector())),
			Added:   b.registry.Names(next.Vector().Diff(old.Vector())),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			b.logger.Error("Failed to encode state message", "error", err)
			return
		}

		if err := b.natsClient.Publish(context.Background(), b.config.StateSubject, data); err != nil {
			if b.metrics != nil {
				b.metrics.publishErrors.Inc()
			}
			b.logger.Error("Failed to publish state", "error", err)
			return
		}
		if b.metrics != nil {
			b.metrics.statesPublished.Inc()
		}
	}
}
