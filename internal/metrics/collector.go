// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the engine's Prometheus metrics.
type Collector struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsActive   prometheus.Gauge

	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	creditsDebited *prometheus.CounterVec
	debitsRefused  prometheus.Counter

	eventsEmitted *prometheus.CounterVec
}

// NewCollector registers the engine metrics on reg under the given
// namespace. Pass prometheus.DefaultRegisterer in production wiring and a
// fresh registry in tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_runs_started_total",
			Help:      "Total number of conversation runs started",
		}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_runs_finished_total",
			Help:      "Total number of conversation runs finished, by terminal reason",
		}, []string{"reason"}),
		runsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_runs_active",
			Help:      "Number of conversation runs currently executing",
		}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Total number of generated agent turns",
		}, []string{"provider", "model", "status"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_turn_duration_seconds",
			Help:      "Agent turn generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		creditsDebited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Total credits debited for generated turns",
		}, []string{"provider", "model"}),
		debitsRefused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_debits_refused_total",
			Help:      "Total debits refused for insufficient balance",
		}),
		eventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_emitted_total",
			Help:      "Total stream events emitted to consumers",
		}, []string{"type"}),
	}
}

// RunStarted records the start of a conversation run.
func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
	c.runsActive.Inc()
}

// RunFinished records a run reaching a terminal state.
func (c *Collector) RunFinished(reason string) {
	c.runsFinished.WithLabelValues(reason).Inc()
	c.runsActive.Dec()
}

// TurnObserved records one generation attempt.
func (c *Collector) TurnObserved(provider, model string, ok bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	c.turnsTotal.WithLabelValues(provider, model, status).Inc()
	c.turnDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// CreditsDebited records a successful debit.
func (c *Collector) CreditsDebited(provider, model string, amount int64) {
	c.creditsDebited.WithLabelValues(provider, model).Add(float64(amount))
}

// DebitRefused records a debit rejected for insufficient balance.
func (c *Collector) DebitRefused() {
	c.debitsRefused.Inc()
}

// EventEmitted records one event delivered to a stream consumer.
func (c *Collector) EventEmitted(eventType string) {
	c.eventsEmitted.WithLabelValues(eventType).Inc()
}
