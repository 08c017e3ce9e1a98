package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// FetchAttempts counts HTTP attempts issued by the fetcher, by outcome.
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contestguard_fetch_attempts_total",
			Help: "Total number of fetch attempts",
		},
		[]string{"outcome"},
	)

	// FetchExhausted counts requests that ran out of retries.
	FetchExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contestguard_fetch_exhausted_total",
			Help: "Total number of requests that exhausted their retry budget",
		},
	)

	// SubmissionsAcquired counts submissions fetched with code, by outcome.
	SubmissionsAcquired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contestguard_submissions_total",
			Help: "Submissions processed by the crawler",
		},
		[]string{"outcome"},
	)

	// MatchesDetected counts directional similarity matches.
	MatchesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contestguard_matches_total",
			Help: "Directional similarity matches emitted by the engine",
		},
		[]string{"language"},
	)

	// GroupDuration measures similarity detection time per group.
	GroupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contestguard_group_detection_seconds",
			Help:    "Similarity detection duration per (question, language) group",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	// RunCount counts pipeline runs by final status.
	RunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contestguard_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// RunDuration measures full pipeline duration.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contestguard_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	// RequestCount counts API requests.
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contestguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// InitPrometheus registers all collectors with the default registry. Safe to call more than once.
func InitPrometheus() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FetchAttempts,
			FetchExhausted,
			SubmissionsAcquired,
			MatchesDetected,
			GroupDuration,
			RunCount,
			RunDuration,
			RequestCount,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
