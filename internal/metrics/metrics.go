// Package metrics provides Prometheus metrics for monitoring the nightly status aggregator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nightlies_upstream_requests_total",
			Help: "Total number of GitHub API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	WorkflowFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nightlies_workflow_fetch_failures_total",
			Help: "Total number of isolated run-history fetch failures",
		},
		[]string{"repo"},
	)
	FailuresClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nightlies_failures_classified_total",
			Help: "Total number of failed runs classified, by reason",
		},
		[]string{"reason"},
	)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nightlies_cache_lookups_total",
			Help: "Total number of snapshot cache lookups by result",
		},
		[]string{"result"},
	)
	CacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nightlies_cache_write_failures_total",
			Help: "Total number of snapshot cache writes that failed",
		},
	)
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nightlies_aggregation_duration_seconds",
			Help:    "Duration of a full fetch, classify and compute cycle",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	GuidePassRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nightlies_guide_pass_rate",
			Help: "Pass rate percentage of the most recent runs per monitored workflow",
		},
		[]string{"workflow", "guide", "platform"},
	)
	CacheUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nightlies_cache_up",
			Help: "Whether the snapshot cache backend answered the last probe (1) or not (0)",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nightlies_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nightlies_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordUpstreamRequest(endpoint, outcome string) {
	UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

func RecordWorkflowFetchFailure(repo string) {
	WorkflowFetchFailures.WithLabelValues(repo).Inc()
}

func RecordFailureClassified(reason string) {
	FailuresClassified.WithLabelValues(reason).Inc()
}

func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

func RecordCacheWriteFailure() {
	CacheWriteFailures.Inc()
}

func RecordAggregation(duration time.Duration) {
	AggregationDuration.Observe(duration.Seconds())
}

// UpdateGuidePassRate keys the series by workflow, the registry identity; guide and platform are display
// labels that may repeat across workflows.
func UpdateGuidePassRate(workflow, guide, platform string, passRate int) {
	GuidePassRate.WithLabelValues(workflow, guide, platform).Set(float64(passRate))
}

func UpdateCacheUp(up bool) {
	if up {
		CacheUp.Set(1)
		return
	}
	CacheUp.Set(0)
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
