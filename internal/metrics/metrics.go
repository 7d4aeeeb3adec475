// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal    *prometheus.CounterVec
	fetchRetriesTotal     prometheus.Counter
	fetchBytesTotal       prometheus.Counter
	trialsTotal           *prometheus.CounterVec
	backoffWaitSeconds    prometheus.Histogram
	pacingWaitSeconds     prometheus.Histogram
	documentsExtractTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Total number of retried requests.",
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fetch_bytes_total",
				Help: "Total number of response bytes fetched.",
			},
		)

		trialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_trials_total",
				Help: "Total number of trials processed, labeled by status.",
			},
			[]string{"status"},
		)

		backoffWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_backoff_wait_seconds",
				Help:    "Histogram of backoff wait durations before retries.",
				Buckets: []float64{1, 5, 10, 30, 60, 150, 300},
			},
		)

		pacingWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_pacing_wait_seconds",
				Help:    "Histogram of waits imposed by the inter-request pacing floor.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		documentsExtractTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_documents_extracted_total",
				Help: "Total number of protocol documents extracted, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt records one fetch attempt and its response size.
func ObserveFetchAttempt(outcome string, bytesFetched int) {
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveTrial increments the trial counter for the given status.
func ObserveTrial(status string) {
	trialsTotal.WithLabelValues(status).Inc()
}

// ObserveBackoffWait records the duration of a backoff wait.
func ObserveBackoffWait(d time.Duration) {
	backoffWaitSeconds.Observe(d.Seconds())
}

// ObservePacingWait records the duration of a pacing-floor wait.
func ObservePacingWait(d time.Duration) {
	pacingWaitSeconds.Observe(d.Seconds())
}

// ObserveExtraction records one document extraction outcome.
func ObserveExtraction(outcome string) {
	documentsExtractTotal.WithLabelValues(outcome).Inc()
}
