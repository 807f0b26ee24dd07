package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for finished submissions
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the preprocessing collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	submissionDuration prometheus.Histogram
	validationFailures *prometheus.CounterVec
	inFlight           prometheus.Gauge
	uploadedDatasets   prometheus.Counter
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goprep",
			Name:      "submissions_total",
			Help:      "Preprocessing submissions by outcome.",
		}, []string{"outcome"}),
		submissionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "goprep",
			Name:      "submission_duration_seconds",
			Help:      "Wall time of preprocessing submissions that reached the execution service.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goprep",
			Name:      "validation_failures_total",
			Help:      "Pre-flight validation failures by error code.",
		}, []string{"code"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goprep",
			Name:      "submissions_in_flight",
			Help:      "Submissions currently running.",
		}),
		uploadedDatasets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goprep",
			Name:      "uploaded_datasets_total",
			Help:      "Datasets accepted by the upload endpoint.",
		}),
	}

	m.registry.MustRegister(
		m.submissions,
		m.submissionDuration,
		m.validationFailures,
		m.inFlight,
		m.uploadedDatasets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SubmissionStarted marks a submission as running
func (m *Metrics) SubmissionStarted() {
	m.inFlight.Inc()
}

// SubmissionFinished records the outcome of a running submission
func (m *Metrics) SubmissionFinished(outcome string, elapsed time.Duration) {
	m.inFlight.Dec()
	m.submissions.WithLabelValues(outcome).Inc()
	m.submissionDuration.Observe(elapsed.Seconds())
}

// SubmissionRejected counts a submission refused before reaching the service
func (m *Metrics) SubmissionRejected(code string) {
	m.submissions.WithLabelValues(OutcomeRejected).Inc()
	m.validationFailures.WithLabelValues(code).Inc()
}

// DatasetUploaded counts an accepted upload
func (m *Metrics) DatasetUploaded() {
	m.uploadedDatasets.Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
