package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metric namespace used when none is configured.
const DefaultNamespace = "avaegress"

// Metrics holds all Prometheus metrics for the override engine.
type Metrics struct {
	evaluationsTotal    *prometheus.CounterVec
	rules               *prometheus.GaugeVec
	strategyInvocations *prometheus.CounterVec
	payloadUpdates      *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
	buildInfo           *prometheus.GaugeVec
	startTime           prometheus.Gauge
	registry            *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help: "Total number of component evaluations " +
				"by rule and outcome",
		},
		[]string{"rule", "outcome"},
	)

	m.rules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rules",
			Help:      "Number of registered rules by state",
		},
		[]string{"state"},
	)

	m.strategyInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_invocations_total",
			Help: "Total number of intercepted calls " +
				"by rule and strategy kind",
		},
		[]string{"rule", "kind"},
	)

	m.payloadUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_updates_total",
			Help:      "Total number of override payload updates by key",
		},
		[]string{"key"},
	)

	m.breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of proxy circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the process in unix seconds",
		},
	)

	m.registerCollectors()

	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.evaluationsTotal,
		m.rules,
		m.strategyInvocations,
		m.payloadUpdates,
		m.breakerTransitions,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// RecordEvaluation records one rule evaluation with its outcome.
func (m *Metrics) RecordEvaluation(rule, outcome string) {
	m.evaluationsTotal.WithLabelValues(rule, outcome).Inc()
}

// SetRules sets the active and disabled rule gauges.
func (m *Metrics) SetRules(active, disabled int) {
	m.rules.WithLabelValues("active").Set(float64(active))
	m.rules.WithLabelValues("disabled").Set(float64(disabled))
}

// RecordStrategyInvocation records one intercepted call.
func (m *Metrics) RecordStrategyInvocation(rule, kind string) {
	m.strategyInvocations.WithLabelValues(rule, kind).Inc()
}

// RecordPayloadUpdate records a payload update for the given key.
func (m *Metrics) RecordPayloadUpdate(key string) {
	m.payloadUpdates.WithLabelValues(key).Inc()
}

// RecordBreakerTransition records a proxy circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(from, to string) {
	m.breakerTransitions.WithLabelValues(from, to).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(
	version, commit, buildTime string,
) {
	m.buildInfo.WithLabelValues(
		version, commit, buildTime,
	).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCollector registers an additional collector with the custom
// registry.
func (m *Metrics) RegisterCollector(c prometheus.Collector) error {
	return m.registry.Register(c)
}
