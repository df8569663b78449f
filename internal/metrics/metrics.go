// Package metrics exposes Prometheus instrumentation for ingestion and analytics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion outcomes
const (
	OutcomeOK            = "ok"
	OutcomeHistoryFailed = "history_failed"
	OutcomeStatusFailed  = "status_failed"
)

// Metrics groups the collectors used by the engine
type Metrics struct {
	ingestions       *prometheus.CounterVec
	statusSkipped    *prometheus.CounterVec
	fleetSkipped     prometheus.Counter
	summaryDuration  *prometheus.HistogramVec
	healthClassified *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ev_telemetry",
			Name:      "ingestions_total",
			Help:      "Telemetry ingestions by device class and outcome.",
		}, []string{"device_class", "outcome"}),
		statusSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ev_telemetry",
			Name:      "status_writes_skipped_total",
			Help:      "Status upserts the store skipped because nothing changed or the reading was older.",
		}, []string{"device_class"}),
		fleetSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ev_telemetry",
			Name:      "fleet_vehicles_skipped_total",
			Help:      "Vehicles left out of a fleet summary because their status disappeared.",
		}),
		summaryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ev_telemetry",
			Name:      "analytics_duration_seconds",
			Help:      "Latency of analytics computations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		healthClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ev_telemetry",
			Name:      "health_classifications_total",
			Help:      "Vehicle performance summaries by health status.",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(m.ingestions, m.statusSkipped, m.fleetSkipped, m.summaryDuration, m.healthClassified)
	}
	return m
}

// ObserveIngestion counts one ingestion attempt
func (m *Metrics) ObserveIngestion(deviceClass, outcome string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(deviceClass, outcome).Inc()
}

// ObserveStatusSkipped counts a status upsert that did not change the row
func (m *Metrics) ObserveStatusSkipped(deviceClass string) {
	if m == nil {
		return
	}
	m.statusSkipped.WithLabelValues(deviceClass).Inc()
}

// ObserveFleetSkip counts a vehicle skipped during fleet aggregation
func (m *Metrics) ObserveFleetSkip() {
	if m == nil {
		return
	}
	m.fleetSkipped.Inc()
}

// ObserveHealth counts a computed health classification
func (m *Metrics) ObserveHealth(status string) {
	if m == nil {
		return
	}
	m.healthClassified.WithLabelValues(status).Inc()
}

// ObserveDuration records how long an analytics operation took since start
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.summaryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
