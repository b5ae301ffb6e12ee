package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	registry           *prom.Registry
	jobDuration        prom.Histogram
	jobOutcome         *prom.CounterVec
	validationFailures *prom.CounterVec
	stageDuration      *prom.HistogramVec
	pollRetries        prom.Counter
	pollExhausted      prom.Counter
	certResults        *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.jobDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "datapub",
			Name:      "job_duration_seconds",
			Help:      "Total publish job duration",
			Buckets:   prom.DefBuckets,
		})
		pr.jobOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "datapub",
			Name:      "job_outcomes_total",
			Help:      "Publish job outcomes by final status",
		}, []string{"outcome"})
		pr.validationFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "datapub",
			Name:      "validation_failures_total",
			Help:      "Validation failures by kind",
		}, []string{"kind"})
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "datapub",
			Name:      "publish_stage_duration_seconds",
			Help:      "Duration of individual publish pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.pollRetries = prom.NewCounter(prom.CounterOpts{
			Namespace: "datapub",
			Name:      "build_poll_retries_total",
			Help:      "Page-build status poll retries",
		})
		pr.pollExhausted = prom.NewCounter(prom.CounterOpts{
			Namespace: "datapub",
			Name:      "build_poll_exhausted_total",
			Help:      "Page-build polls that hit the overall deadline",
		})
		pr.certResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "datapub",
			Name:      "certificate_results_total",
			Help:      "Certificate issuance results",
		}, []string{"result"})

		reg.MustRegister(
			pr.jobDuration,
			pr.jobOutcome,
			pr.validationFailures,
			pr.stageDuration,
			pr.pollRetries,
			pr.pollExhausted,
			pr.certResults,
		)
	})
	return pr
}

func (pr *PrometheusRecorder) ObserveJobDuration(d time.Duration) {
	pr.jobDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncJobOutcome(outcome OutcomeLabel) {
	pr.jobOutcome.WithLabelValues(string(outcome)).Inc()
}

func (pr *PrometheusRecorder) IncValidationFailure(kind string) {
	pr.validationFailures.WithLabelValues(kind).Inc()
}

func (pr *PrometheusRecorder) ObservePublishStageDuration(stage string, d time.Duration) {
	pr.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncBuildPollRetry() {
	pr.pollRetries.Inc()
}

func (pr *PrometheusRecorder) IncBuildPollExhausted() {
	pr.pollExhausted.Inc()
}

func (pr *PrometheusRecorder) IncCertificateResult(issued bool) {
	result := "issued"
	if !issued {
		result = "missing"
	}
	pr.certResults.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler exposing the recorder's registry.
func (pr *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{})
}
