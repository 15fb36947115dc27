// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Scraper metrics
	ScraperRequestsTotal   *prometheus.CounterVec
	ScraperDurationSeconds *prometheus.HistogramVec

	// Directory metrics
	CohortFetchesTotal      *prometheus.CounterVec
	RefreshDurationSeconds  *prometheus.HistogramVec
	DirectoryEntries        prometheus.Gauge
	DirectoryCohorts        prometheus.Gauge
	DirectoryReady          prometheus.Gauge
	SingleflightDedupTotal  *prometheus.CounterVec
	SearchResultsHistogram  *prometheus.HistogramVec
	SnapshotOperationsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimiterDropped      *prometheus.CounterVec
	RateLimiterUsers        prometheus.Gauge

	// Background jobs
	JobRunsTotal *prometheus.CounterVec

	// LogRecordsDropped counts records the remote log queue had no room for.
	LogRecordsDropped prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ScraperRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_scraper_requests_total",
				Help: "Total number of scraper requests by module and status",
			},
			[]string{"module", "status"}, // status: success, error, timeout, not_found
		),

		ScraperDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ntpu_scraper_duration_seconds",
				Help:    "Scraper request duration in seconds by module",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"module"},
		),

		CohortFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_directory_cohort_fetches_total",
				Help: "Cohort fetches by result",
			},
			[]string{"result"}, // result: success, error, unreachable
		),

		RefreshDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ntpu_directory_refresh_duration_seconds",
				Help:    "Duration of directory refresh passes",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"result"}, // result: success, partial, unreachable
		),

		DirectoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ntpu_directory_entries",
			Help: "Number of students currently held in the directory index",
		}),

		DirectoryCohorts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ntpu_directory_cohorts",
			Help: "Number of (year, department) cohorts fetched at least once",
		}),

		DirectoryReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ntpu_directory_ready",
			Help: "1 once the first directory refresh pass completed",
		}),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		SearchResultsHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ntpu_search_results",
				Help:    "Number of results returned per search",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500},
			},
			[]string{"kind"}, // kind: id, name, fragment, cohort
		),

		SnapshotOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_snapshot_operations_total",
				Help: "Directory snapshot operations by operation and status",
			},
			[]string{"operation", "status"}, // operation: save, load, upload, download
		),

		WebhookDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ntpu_webhook_duration_seconds",
				Help:    "Webhook processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"event_type"}, // event_type: message, postback, follow, join
		),

		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_webhook_requests_total",
				Help: "Total number of webhook requests by event type and status",
			},
			[]string{"event_type", "status"},
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: timeout, rate_limit, invalid_signature, etc.
		),

		RateLimiterWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ntpu_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"limiter_type"}, // limiter_type: scraper, global
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global
		),

		RateLimiterUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ntpu_rate_limiter_active_users",
			Help: "Number of users currently tracked by the per-user limiter",
		}),

		JobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ntpu_job_runs_total",
				Help: "Background job runs by job and status",
			},
			[]string{"job", "status"},
		),

		LogRecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntpu_log_records_dropped_total",
			Help: "Log records dropped because the Better Stack queue was full",
		}),
	}
}

// RecordScraperRequest records a scraper request with status
func (m *Metrics) RecordScraperRequest(module, status string, duration float64) {
	m.ScraperRequestsTotal.WithLabelValues(module, status).Inc()
	m.ScraperDurationSeconds.WithLabelValues(module).Observe(duration)
}

// RecordCohortFetch records the outcome of one cohort fetch.
func (m *Metrics) RecordCohortFetch(result string) {
	m.CohortFetchesTotal.WithLabelValues(result).Inc()
}

// RecordRefresh records a completed refresh pass.
func (m *Metrics) RecordRefresh(result string, duration float64) {
	m.RefreshDurationSeconds.WithLabelValues(result).Observe(duration)
}

// SetDirectorySize updates the entry and cohort gauges.
func (m *Metrics) SetDirectorySize(entries, cohorts int) {
	m.DirectoryEntries.Set(float64(entries))
	m.DirectoryCohorts.Set(float64(cohorts))
}

// SetDirectoryReady flips the readiness gauge.
func (m *Metrics) SetDirectoryReady(ready bool) {
	if ready {
		m.DirectoryReady.Set(1)
		return
	}
	m.DirectoryReady.Set(0)
}

// RecordSingleflightDedup records a request served by an in-flight call.
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordSearch records the size of a search result.
func (m *Metrics) RecordSearch(kind string, results int) {
	m.SearchResultsHistogram.WithLabelValues(kind).Observe(float64(results))
}

// RecordSnapshot records a snapshot operation.
func (m *Metrics) RecordSnapshot(operation, status string) {
	m.SnapshotOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterWait records time spent waiting for a token
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimiterDrop records a dropped request
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterUsers updates the active user gauge.
func (m *Metrics) SetRateLimiterUsers(n int) {
	m.RateLimiterUsers.Set(float64(n))
}

// RecordJob records a background job run.
func (m *Metrics) RecordJob(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordLogDropped counts one log record lost on the way to Better Stack.
func (m *Metrics) RecordLogDropped() {
	m.LogRecordsDropped.Inc()
}
