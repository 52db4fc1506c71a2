// Package metrics provides Prometheus metrics collection for the trader insights
// service. It defines the prediction, dashboard, and HTTP metrics exposed on the
// Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal     *prometheus.CounterVec // Predictions served, by predicted label
	PredictionFailures   prometheus.Counter     // Predictions that failed in the classifier
	PredictionLatency    prometheus.Histogram   // End-to-end prediction latency in seconds
	PredictionConfidence prometheus.Histogram   // Distribution of confidence percentages
	ModelAge             prometheus.Gauge       // Seconds since the model artifact was loaded

	// Dashboard metrics
	SummaryComputations prometheus.Counter   // Dashboard summaries computed from the datasets
	SummaryCacheHits    prometheus.Counter   // Summaries served from the cache
	SummaryCacheMisses  prometheus.Counter   // Summary lookups that missed the cache
	SummaryLatency      prometheus.Histogram // Time to compute a summary in seconds
	DatasetRows         *prometheus.GaugeVec // Rows loaded per dataset

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request duration by route
	WSClients    prometheus.Gauge         // Open WebSocket prediction sessions

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served, by predicted label",
		}, []string{"label"}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of predictions that failed in the classifier",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		PredictionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence_percent",
			Help:    "Distribution of prediction confidence percentages",
			Buckets: prometheus.LinearBuckets(50, 5, 11),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the model artifact in seconds when it was loaded",
		}),
		SummaryComputations: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_summary_computations_total",
			Help: "Total number of dashboard summaries computed from the datasets",
		}),
		SummaryCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_summary_cache_hits_total",
			Help: "Total number of dashboard summaries served from the cache",
		}),
		SummaryCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_summary_cache_misses_total",
			Help: "Total number of dashboard summary cache misses",
		}),
		SummaryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_summary_seconds",
			Help:    "Time to compute a dashboard summary in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		DatasetRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dataset_rows",
			Help: "Number of rows loaded per dataset",
		}, []string{"dataset"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_prediction_clients",
			Help: "Number of open WebSocket prediction sessions",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
