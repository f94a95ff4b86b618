package handler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/0xmhha/bridge-listener/internal/constants"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// Metrics holds the handler's Prometheus metrics
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates the handler metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Subsystem: "handler",
			Name:      "events_total",
			Help:      "Total number of handled events by outcome",
		}, []string{"outcome"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: constants.MetricsNamespace,
			Subsystem: "handler",
			Name:      "dispatch_duration_seconds",
			Help:      "Action sink dispatch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	// Expose every outcome at zero from the start
	for _, o := range bridge.Outcomes {
		m.EventsTotal.WithLabelValues(o.String())
	}
	return m
}

// RecordOutcome increments the counter for o
func (m *Metrics) RecordOutcome(o bridge.Outcome) {
	m.EventsTotal.WithLabelValues(o.String()).Inc()
}

// ObserveDispatch records one sink dispatch duration
func (m *Metrics) ObserveDispatch(d time.Duration) {
	m.DispatchDuration.Observe(d.Seconds())
}
