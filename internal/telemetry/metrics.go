// Package telemetry unifies OpenTelemetry tracing and Prometheus metrics.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_fetch_total",
			Help: "Total number of source fetches, labeled by source and status.",
		},
		[]string{"source", "status"},
	)

	sourceFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_source_fetch_duration_seconds",
			Help:    "Histogram of source fetch latencies including retries, labeled by source.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	sourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_retries_total",
			Help: "Total number of retried source requests, labeled by source.",
		},
		[]string{"source"},
	)

	deliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_delivery_total",
			Help: "Total number of delivery attempts, labeled by HTTP code (0 for transport errors).",
		},
		[]string{"code"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_runs_total",
			Help: "Total number of pipeline runs, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations, labeled by host.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveSourceFetch records the final status of one source fetch.
func ObserveSourceFetch(source, status string, duration time.Duration) {
	sourceFetchTotal.WithLabelValues(source, status).Inc()
	sourceFetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveSourceRetry counts one retried request.
func ObserveSourceRetry(source string) {
	sourceRetriesTotal.WithLabelValues(source).Inc()
}

// ObserveDelivery records a delivery attempt by status code.
func ObserveDelivery(code int) {
	deliveryTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveRun records the outcome of a pipeline run.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
