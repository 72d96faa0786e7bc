// Package metrics provides Prometheus metrics collection for the aggregation
// and payout pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Source fetch metrics
	SourceFetchesTotal   *prometheus.CounterVec
	SourceFetchDuration  *prometheus.HistogramVec
	SourcesUnhealthy     *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Resolver metrics
	ConflictsTotal  *prometheus.CounterVec
	QualityScore    *prometheus.HistogramVec

	// Monitor metrics
	MonitorCyclesTotal    prometheus.Counter
	PoliciesEvaluated     prometheus.Counter
	PoliciesTriggered     *prometheus.CounterVec
	EvaluationFailures    prometheus.Counter

	// Payout metrics
	PayoutsTotal   *prometheus.CounterVec
	PayoutDuration prometheus.Histogram

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SourceFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_fetches_total",
				Help: "Total provider fetch attempts by domain, source, and outcome",
			},
			[]string{"domain", "source", "outcome"},
		),
		SourceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_fetch_duration_seconds",
				Help:    "Provider fetch duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"domain", "source"},
		),
		SourcesUnhealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sources_unhealthy",
				Help: "Sources currently excluded by the health table",
			},
			[]string{"domain"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_cache_hits_total",
				Help: "Cache hits by aggregator domain",
			},
			[]string{"domain"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_cache_misses_total",
				Help: "Cache misses by aggregator domain",
			},
			[]string{"domain"},
		),
		ConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_conflicts_total",
				Help: "Field conflicts detected during merge",
			},
			[]string{"domain", "field"},
		),
		QualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_quality_score",
				Help:    "Data quality score of resolved records",
				Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
			},
			[]string{"domain"},
		),
		MonitorCyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_cycles_total",
				Help: "Completed policy monitor cycles",
			},
		),
		PoliciesEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_policies_evaluated_total",
				Help: "Policies evaluated across all cycles",
			},
		),
		PoliciesTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_policies_triggered_total",
				Help: "Policies whose trigger predicate fired, by coverage type",
			},
			[]string{"coverage_type"},
		),
		EvaluationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_evaluation_failures_total",
				Help: "Per-policy evaluation failures swallowed by the monitor",
			},
		),
		PayoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payouts_total",
				Help: "Payout attempts by outcome",
			},
			[]string{"outcome"},
		),
		PayoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payout_duration_seconds",
				Help:    "End-to-end duration of one policy payout",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SourceFetchesTotal,
			m.SourceFetchDuration,
			m.SourcesUnhealthy,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.ConflictsTotal,
			m.QualityScore,
			m.MonitorCyclesTotal,
			m.PoliciesEvaluated,
			m.PoliciesTriggered,
			m.EvaluationFailures,
			m.PayoutsTotal,
			m.PayoutDuration,
			m.RequestsTotal,
			m.RequestDuration,
		)
	}
	return m
}

// ObserveFetch records one provider fetch attempt.
func (m *Metrics) ObserveFetch(domain, source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetchesTotal.WithLabelValues(domain, source, outcome).Inc()
	m.SourceFetchDuration.WithLabelValues(domain, source).Observe(elapsed.Seconds())
}
