// Package metrics defines the Prometheus metrics exposed by the classifier
// service on its metrics listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes.
const (
	OutcomeRecognized    = "recognized"
	OutcomeNotRecognized = "not_recognized"
)

// Metrics holds the service's counters and histograms.
type Metrics struct {
	Predictions       *prometheus.CounterVec // Predictions served, by outcome
	Rejections        *prometheus.CounterVec // Client requests rejected, by reason
	Failures          prometheus.Counter     // Inference failures
	InferenceLatency  prometheus.Histogram   // Preprocess + classify latency
	ConfidenceScores  prometheus.Histogram   // Distribution of top-1 confidence
	ClassPredictions  *prometheus.CounterVec // Recognized predictions, by label
	LabelTableEntries prometheus.Gauge       // Size of the loaded label table
	UploadFormats     *prometheus.CounterVec // Decoded uploads, by sniffed format

	gatherer prometheus.Gatherer
}

// New registers metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers metrics on a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}, []string{"outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_rejections_total",
			Help: "Total number of prediction requests rejected as invalid",
		}, []string{"reason"}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of inference failures",
		}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Preprocessing and classification latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ConfidenceScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of top-1 prediction confidence",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		ClassPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "class_predictions_total",
			Help: "Total number of recognized predictions per label",
		}, []string{"label"}),
		LabelTableEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "label_table_entries",
			Help: "Number of labels in the loaded label table",
		}),
		UploadFormats: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_formats_total",
			Help: "Total number of decoded uploads per sniffed image format",
		}, []string{"format"}),
		gatherer: gatherer,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePrediction(label string, recognized bool, confidence, seconds float64) {
	m.InferenceLatency.Observe(seconds)
	m.ConfidenceScores.Observe(confidence)
	if recognized {
		m.Predictions.WithLabelValues(OutcomeRecognized).Inc()
		m.ClassPredictions.WithLabelValues(label).Inc()
		return
	}
	m.Predictions.WithLabelValues(OutcomeNotRecognized).Inc()
}

func (m *Metrics) ObserveRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveFailure() {
	m.Failures.Inc()
}

func (m *Metrics) ObserveUpload(format string) {
	m.UploadFormats.WithLabelValues(format).Inc()
}
