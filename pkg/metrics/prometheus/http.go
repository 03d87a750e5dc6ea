// Package prometheus implements the DittoDAV metrics interfaces on the
// global registry of package metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittodav/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	responseBytes    *prometheus.CounterVec
	rateLimited      prometheus.Counter
}

// NewHTTPMetrics returns Prometheus-backed HTTP metrics, or a no-op
// implementation when metrics are not enabled.
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return newHTTPMetrics(metrics.GetRegistry())
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodav_http_requests_total",
				Help: "Total number of WebDAV requests by method and status code",
			},
			[]string{"method", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittodav_http_request_duration_milliseconds",
				Help: "Duration of WebDAV requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittodav_http_requests_in_flight",
				Help: "Current number of WebDAV requests being served",
			},
			[]string{"method"},
		),
		responseBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodav_http_response_bytes_total",
				Help: "Total response body bytes written",
			},
			[]string{"method"},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittodav_http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration, bytes int64) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000)
	m.responseBytes.WithLabelValues(method).Add(float64(bytes))
}

func (m *httpMetrics) RecordRequestStart(method string) {
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *httpMetrics) RecordRequestEnd(method string) {
	m.requestsInFlight.WithLabelValues(method).Dec()
}

func (m *httpMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
