package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// API server metrics, registered on first use with the singleton registry
var (
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpActiveConnections prometheus.Gauge

	httpMetricsOnce sync.Once
)

func initializeHTTPMetrics() {
	httpMetricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordapi_http_requests_total",
				Help: "Total number of HTTP requests served by the record API",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recordapi_http_request_duration_seconds",
				Help:    "Duration of record API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		httpActiveConnections = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recordapi_http_active_connections",
				Help: "Number of in-flight record API requests",
			},
		)

		GetInstance().registry.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			httpActiveConnections,
		)
	})
}

// RecordHTTPRequest records metrics for an API request
func RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if !Enabled() {
		return
	}
	initializeHTTPMetrics()

	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveConnections increments in-flight requests
func IncActiveConnections() {
	if !Enabled() {
		return
	}
	initializeHTTPMetrics()
	httpActiveConnections.Inc()
}

// DecActiveConnections decrements in-flight requests
func DecActiveConnections() {
	if !Enabled() {
		return
	}
	initializeHTTPMetrics()
	httpActiveConnections.Dec()
}
