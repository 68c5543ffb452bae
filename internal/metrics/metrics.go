// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	trackedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalise_tracked_events_total",
			Help: "Tracking writes by event kind and outcome (recorded or dropped)",
		},
		[]string{"kind", "outcome"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalise_generations_total",
			Help: "Image generation attempts by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metalise_query_duration_seconds",
			Help:    "Duration of analytics queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	liveUniqueDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metalise_live_unique_visitors_drift",
			Help: "Live unique visitor count minus the stored rollup value for today",
		},
	)
)

func init() {
	prometheus.MustRegister(trackedEvents)
	prometheus.MustRegister(generations)
	prometheus.MustRegister(queryDuration)
	prometheus.MustRegister(liveUniqueDrift)
}

// TrackedEvent counts one tracking write.
func TrackedEvent(kind, outcome string) {
	trackedEvents.WithLabelValues(kind, outcome).Inc()
}

// Generation counts one model call.
func Generation(model, outcome string) {
	generations.WithLabelValues(model, outcome).Inc()
}

// ObserveQuery records how long an analytics query took.
func ObserveQuery(queryType string, started time.Time) {
	queryDuration.WithLabelValues(queryType).Observe(time.Since(started).Seconds())
}

// SetLiveUniqueDrift publishes the latest reconciliation result.
func SetLiveUniqueDrift(drift int64) {
	liveUniqueDrift.Set(float64(drift))
}
