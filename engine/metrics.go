package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/factflow/metric"
)

// engineMetrics holds Prometheus metrics for the evaluation loop
type engineMetrics struct {
	iterationsTotal  prometheus.Counter
	dispatchesTotal  *prometheus.CounterVec
	completionsTotal *prometheus.CounterVec
	stallsTotal      prometheus.Counter
	externalResults  prometheus.Counter
	deltasApplied    prometheus.Counter
	actionDuration   *prometheus.HistogramVec
	rulesInFlight    prometheus.Gauge
	factsHeld        prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics
func newEngineMetrics(registry *metric.MetricsRegistry) *engineMetrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &engineMetrics{
		iterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "iterations_total",
			Help:      "Total evaluation loop iterations",
		}),

		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "dispatches_total",
			Help:      "Total rule actions dispatched",
		}, []string{"rule"}),

		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "completions_total",
			Help:      "Total rule action completions",
		}, []string{"rule", "status"}),

		stallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "stalls_total",
			Help:      "Scan passes where no rule fired and none was in flight",
		}),

		externalResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "external_results_total",
			Help:      "Externally injected fact deltas consumed",
		}),

		deltasApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "deltas_applied_total",
			Help:      "Result deltas that changed the fact state",
		}),

		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "action_duration_seconds",
			Help:      "Time spent executing rule actions",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"rule"}),

		rulesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "rules_in_flight",
			Help:      "Rules whose action is currently executing",
		}),

		factsHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "factflow",
			Subsystem: "engine",
			Name:      "facts_held",
			Help:      "Number of facts currently true",
		}),
	}

	// Register metrics with Prometheus registry
	registry.PrometheusRegistry().MustRegister(
		metrics.iterationsTotal,
		metrics.dispatchesTotal,
		metrics.completionsTotal,
		metrics.stallsTotal,
		metrics.externalResults,
		metrics.deltasApplied,
		metrics.actionDuration,
		metrics.rulesInFlight,
		metrics.factsHeld,
	)

	return metrics
}

func (m *engineMetrics) recordIteration() {
	if m == nil {
		return
	}
	m.iterationsTotal.Inc()
}

func (m *engineMetrics) recordDispatch(rule string) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(rule).Inc()
	m.rulesInFlight.Inc()
}

func (m *engineMetrics) recordCompletion(rule string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.completionsTotal.WithLabelValues(rule, status).Inc()
	m.actionDuration.WithLabelValues(rule).Observe(seconds)
	m.rulesInFlight.Dec()
}

func (m *engineMetrics) recordStall() {
	if m == nil {
		return
	}
	m.stallsTotal.Inc()
}

func (m *engineMetrics) recordExternal() {
	if m == nil {
		return
	}
	m.externalResults.Inc()
}

func (m *engineMetrics) recordApply(changed bool, factCount int) {
	if m == nil {
		return
	}
	if changed {
		m.deltasApplied.Inc()
	}
	m.factsHeld.Set(float64(factCount))
}
