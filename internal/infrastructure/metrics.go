package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecasting pipeline.
type Metrics struct {
	FeatureRowsUpserted *prometheus.CounterVec // labels: crop
	ForecastsProduced   *prometheus.CounterVec // labels: crop, model_type
	SourceFailures      *prometheus.CounterVec // labels: source
	UnitFailures        *prometheus.CounterVec // labels: crop
	RunActive           prometheus.Gauge

	StageDuration *prometheus.HistogramVec // labels: stage
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the given
// registerer (pass prometheus.DefaultRegisterer in production).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeatureRowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropcast",
			Name:      "feature_rows_upserted_total",
			Help:      "Feature vector rows upserted, by crop.",
		}, []string{"crop"}),
		ForecastsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropcast",
			Name:      "forecasts_produced_total",
			Help:      "Forecast rows persisted, by crop and model type.",
		}, []string{"crop", "model_type"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropcast",
			Name:      "source_failures_total",
			Help:      "External source query failures that degraded a feature group.",
		}, []string{"source"}),
		UnitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropcast",
			Name:      "unit_failures_total",
			Help:      "Per-(state,crop) unit failures isolated during a run.",
		}, []string{"crop"}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cropcast",
			Name:      "run_active",
			Help:      "1 while a weekly run is executing.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cropcast",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each orchestrator stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cropcast",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete weekly run.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
		}),
	}

	reg.MustRegister(
		m.FeatureRowsUpserted,
		m.ForecastsProduced,
		m.SourceFailures,
		m.UnitFailures,
		m.RunActive,
		m.StageDuration,
		m.RunDuration,
	)

	return m
}

// NewTestMetrics creates metrics on a private registry for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
