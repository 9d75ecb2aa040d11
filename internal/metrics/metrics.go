package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "actionboard"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// GitHub API metrics
	GitHubAPIRequests       *prometheus.CounterVec
	GitHubAPIDuration       *prometheus.HistogramVec
	GitHubAPIRateLimit      prometheus.Gauge
	GitHubAPIRateLimitReset prometheus.Gauge

	// Retry metrics
	RetryAttempts  *prometheus.CounterVec
	RetryExhausted *prometheus.CounterVec

	// Poller metrics
	DiscoveryCycles  *prometheus.CounterVec
	SnapshotsEmitted prometheus.Counter
	SnapshotRuns     prometheus.Histogram

	// Stream metrics
	StreamsActive  *prometheus.GaugeVec
	StreamSessions *prometheus.CounterVec

	// System metrics
	BuildInfo *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		// GitHub API metrics
		GitHubAPIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "github_api_requests_total",
				Help:      "Total number of GitHub API requests",
			},
			[]string{"endpoint", "status"},
		),
		GitHubAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "github_api_duration_seconds",
				Help:      "Duration of GitHub API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		GitHubAPIRateLimit: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "github_api_rate_limit_remaining",
				Help:      "Remaining GitHub API rate limit",
			},
		),
		GitHubAPIRateLimitReset: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "github_api_rate_limit_reset_timestamp",
				Help:      "GitHub API rate limit reset time (Unix timestamp)",
			},
		),

		// Retry metrics
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retried operations",
			},
			[]string{"operation"},
		),
		RetryExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_exhausted_total",
				Help:      "Total number of operations that used up their retry budget",
			},
			[]string{"operation"},
		),

		// Poller metrics
		DiscoveryCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_cycles_total",
				Help:      "Total number of repository discovery cycles",
			},
			[]string{"result"},
		),
		SnapshotsEmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_emitted_total",
				Help:      "Total number of snapshots handed to consumers",
			},
		),
		SnapshotRuns: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_runs",
				Help:      "Distribution of runs per snapshot",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		// Stream metrics
		StreamsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams_active",
				Help:      "Number of connected stream clients",
			},
			[]string{"transport"},
		),
		StreamSessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_sessions_total",
				Help:      "Total number of finished stream sessions",
			},
			[]string{"transport", "result"},
		),

		// System metrics
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Information about the running build",
			},
			[]string{"version"},
		),
	}

	return m
}
