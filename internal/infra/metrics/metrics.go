// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		httpRequestsTotal,
		httpRequestDuration,
		rateLimitedTotal,
		idempotentReplaysTotal,
	)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API handler latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"route"},
	)

	idempotentReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotent_requests_total",
			Help: "Requests carrying an Idempotency-Key by outcome.",
		},
		[]string{"outcome"}, // 'first', 'replayed', 'conflict', 'in_progress'
	)
)

func ObserveHTTPRequest(route, method string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func IncRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}

func IncIdempotent(outcome string) {
	idempotentReplaysTotal.WithLabelValues(norm(outcome)).Inc()
}
