// Package metrics provides Prometheus metrics for the document QA service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	RunsInFlight    prometheus.Gauge
	QuestionsTotal  *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ChunksPerRun    prometheus.Histogram
	SynthesisWarned prometheus.Counter

	// Extraction metrics
	ExtractionsTotal *prometheus.CounterVec

	// Infrastructure metrics
	CacheLookups  *prometheus.CounterVec
	EventsTotal   *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
	ServerStarted time.Time
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_run_duration_seconds",
			Help:    "Duration of complete pipeline runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docqa_runs_in_flight",
			Help: "Number of pipeline runs currently being processed",
		}),
		QuestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_questions_total",
			Help: "Total number of answered questions by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqa_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ChunksPerRun: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_chunks_per_run",
			Help:    "Number of chunks indexed per run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		SynthesisWarned: factory.NewCounter(prometheus.CounterOpts{
			Name: "docqa_synthesis_slow_total",
			Help: "Answer syntheses that exceeded the soft time budget",
		}),
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_extractions_total",
			Help: "Extraction results by document kind, strategy and status",
		}, []string{"kind", "strategy", "status"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_cache_lookups_total",
			Help: "Answer cache lookups by result",
		}, []string{"result"}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_run_events_total",
			Help: "Run events published by outcome",
		}, []string{"outcome"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docqa_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
		ServerStarted: time.Now(),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage records how long a named pipeline stage took.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
