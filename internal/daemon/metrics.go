package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	Passes       *prometheus.CounterVec
	Emitted      *prometheus.CounterVec
	Suppressed   *prometheus.CounterVec
	PassDuration prometheus.Histogram
	TicksDropped prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg builds
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_passes_total",
			Help: "Evaluation passes by final status.",
		}, []string{"status"}),
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_alerts_emitted_total",
			Help: "Alerts emitted to the sink by rule.",
		}, []string{"rule"}),
		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_alerts_suppressed_total",
			Help: "Alert candidates suppressed by dedup or failure, by rule.",
		}, []string{"rule"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifesignal_pass_duration_seconds",
			Help:    "Wall-clock duration of evaluation passes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		TicksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "lifesignal_ticks_dropped_total",
			Help: "Ticks and triggers dropped because a pass was already running.",
		}),
	}
}
