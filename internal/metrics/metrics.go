// Package metrics provides Prometheus metrics for the scoring and
// calibration pipeline, exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scorer.
type Metrics struct {
	// Scoring metrics
	ScoresTotal    prometheus.Counter   // Total scoring passes
	SignalsEmitted prometheus.Counter   // Total signal records emitted
	Confidence     prometheus.Histogram // Distribution of final confidences

	// Calibrator metrics
	TrainingRuns     prometheus.Counter   // Total successful training runs
	TrainingSamples  *prometheus.GaugeVec // Sample count behind each serving model
	ModelAccuracy    *prometheus.GaugeVec // In-sample accuracy of each serving model
	Predictions      prometheus.Counter   // Total ML predictions served
	Abstentions      prometheus.Counter   // Predictions skipped for lack of a model
	PredictionScores prometheus.Histogram // Distribution of predicted probabilities

	// Data metrics
	BarsFetched prometheus.Counter // Total bars fetched from the market data API
	CacheHits   prometheus.Counter // Bar requests served from the on-disk cache

	// System metrics
	ErrorsTotal prometheus.Counter // Total errors encountered
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ScoresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scores_total",
			Help: "Total scoring passes",
		}),
		SignalsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_emitted_total",
			Help: "Total signal records emitted across all scoring passes",
		}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "score_confidence",
			Help:    "Distribution of final score confidences",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total successful calibrator training runs",
		}),
		TrainingSamples: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "training_samples",
			Help: "Sample count behind each serving model",
		}, []string{"model"}),
		ModelAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "In-sample accuracy of each serving model",
		}, []string{"model"}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total ML predictions served",
		}),
		Abstentions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_abstentions_total",
			Help: "Predictions skipped because no usable model was available",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		BarsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "bars_fetched_total",
			Help: "Total bars fetched from the market data API",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "bar_cache_hits_total",
			Help: "Bar requests served from the on-disk cache",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
