// Package metrics holds the agent's prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hwa"

// Request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRejected    = "rejected"
	OutcomeUnsupported = "unsupported"
	OutcomeInvalid     = "invalid_params"
	OutcomeCancelled   = "cancelled"
	OutcomePanic       = "panic"
)

type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	proposals       *prometheus.CounterVec
	inFlight        prometheus.Gauge
	state           *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Signing requests by namespace, method and outcome.",
		}, []string{"namespace", "method", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "request_duration_seconds",
			Help:      "Time from receipt to response, operator wait included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"namespace"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session transitions by name and result.",
		}, []string{"transition", "result"}),
		proposals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "proposals_total",
			Help:      "Session proposals by outcome.",
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "requests_in_flight",
			Help:      "Signing requests currently being handled.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
	}
}

func (m *Metrics) ObserveRequest(ns, method, outcome string, started time.Time) {
	if m == nil {
		return
	}
	if ns == "" {
		ns = "none"
	}
	m.requests.WithLabelValues(ns, method, outcome).Inc()
	m.requestDuration.WithLabelValues(ns).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Transition(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(name, result).Inc()
}

func (m *Metrics) Proposal(outcome string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RequestStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) RequestDone() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// SetState marks current as the only active state among all.
func (m *Metrics) SetState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
