package listener

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/0xmhha/bridge-listener/fetch"
	"github.com/0xmhha/bridge-listener/internal/constants"
)

// Metrics holds the listener loop's Prometheus metrics
type Metrics struct {
	// Gauges (current values)
	State            *prometheus.GaugeVec
	CheckpointHeight prometheus.Gauge
	LatestHeight     prometheus.Gauge

	// Counters (cumulative values)
	WindowsTotal            *prometheus.CounterVec
	LogsSkippedTotal        prometheus.Counter
	PollErrorsTotal         prometheus.Counter
	CheckpointFailuresTotal prometheus.Counter

	// Histograms (distributions)
	WindowDuration prometheus.Histogram
}

// NewMetrics creates the listener metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	namespace := constants.MetricsNamespace
	subsystem := constants.MetricsSubsystem

	m := &Metrics{
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "Current loop state (1 for the active state)",
		}, []string{"state"}),
		CheckpointHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoint_height",
			Help:      "Last processed source height",
		}),
		LatestHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "latest_height",
			Help:      "Latest source height observed",
		}),
		WindowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "windows_total",
			Help:      "Total number of fetched windows by result",
		}, []string{"status"}),
		LogsSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logs_skipped_total",
			Help:      "Total number of logs that could not be decoded",
		}),
		PollErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_errors_total",
			Help:      "Total number of failed latest height queries",
		}),
		CheckpointFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoint_save_failures_total",
			Help:      "Total number of failed checkpoint writes",
		}),
		WindowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "window_duration_seconds",
			Help:      "Time to fetch, dispatch and checkpoint one window",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
	}

	for _, s := range []fetch.Status{fetch.StatusEvents, fetch.StatusEmpty, fetch.StatusFault} {
		m.WindowsTotal.WithLabelValues(s.String())
	}
	return m
}

// SetState marks s as the active state
func (m *Metrics) SetState(s State) {
	for _, st := range States {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(st.String()).Set(v)
	}
}

// RecordWindow records one window fetch result
func (m *Metrics) RecordWindow(res fetch.Result, d time.Duration) {
	m.WindowsTotal.WithLabelValues(res.Status.String()).Inc()
	m.LogsSkippedTotal.Add(float64(res.Skipped))
	m.WindowDuration.Observe(d.Seconds())
}
