package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// API server metrics
var (
	// HTTPRequestDuration tracks API request latency by route
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal counts API requests by route and status
	HTTPRequestsTotal *prometheus.CounterVec

	// WebSocketClients is the number of connected run-event subscribers
	WebSocketClients prometheus.Gauge
)

func initHTTPMetrics() {
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dircrawl_http_request_duration_seconds",
		Help:    "Duration of API requests in seconds.",
		Buckets: CheckBuckets,
	}, []string{"route", "method", "status"})

	HTTPRequestsTotal = NewCounterVec(
		"dircrawl_http_requests_total",
		"API requests by route, method and status.",
		[]string{"route", "method", "status"},
	)

	WebSocketClients = NewGauge(
		"dircrawl_websocket_clients",
		"Connected run event subscribers.",
	)
}

func registerHTTPMetrics() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(WebSocketClients)
}
