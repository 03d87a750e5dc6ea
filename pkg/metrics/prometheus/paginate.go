package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// paginateMetrics is the Prometheus implementation of paginate.Metrics.
type paginateMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	entrySize   prometheus.Histogram
	cleanedUp   prometheus.Counter
	pagesServed *prometheus.CounterVec
}

// NewPaginateMetrics returns Prometheus-backed pagination metrics, or nil
// when metrics are not enabled. paginate.NewPlugin and gc.NewCollector
// treat nil as no-op.
func NewPaginateMetrics(backend string) paginate.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newPaginateMetrics(metrics.GetRegistry(), backend)
}

func newPaginateMetrics(reg prometheus.Registerer, backend string) *paginateMetrics {
	reg = prometheus.WrapRegistererWith(prometheus.Labels{"backend": backend}, reg)

	return &paginateMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodav_paginate_operations_total",
				Help: "Total number of pagination store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittodav_paginate_operation_duration_seconds",
				Help: "Duration of pagination store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"operation"},
		),
		items: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodav_paginate_items_total",
				Help: "Total number of result items written to or read from the store",
			},
			[]string{"operation"},
		),
		entrySize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittodav_paginate_entry_items",
				Help:    "Distribution of the number of items per stored listing",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		cleanedUp: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittodav_paginate_expired_entries_removed_total",
				Help: "Total number of expired listings removed by cleanup",
			},
		),
		pagesServed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodav_paginate_pages_served_total",
				Help: "Total number of paginated responses by path (first, cached, degraded)",
			},
			[]string{"path"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *paginateMetrics) observe(op string, d time.Duration, err error) {
	m.operations.WithLabelValues(op, status(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *paginateMetrics) ObserveStore(items int, d time.Duration, err error) {
	m.observe("store", d, err)
	if err == nil {
		m.items.WithLabelValues("store").Add(float64(items))
		m.entrySize.Observe(float64(items))
	}
}

func (m *paginateMetrics) ObserveGet(items int, d time.Duration, err error) {
	m.observe("get", d, err)
	m.items.WithLabelValues("get").Add(float64(items))
}

func (m *paginateMetrics) ObserveCleanup(removed int, d time.Duration, err error) {
	m.observe("cleanup", d, err)
	m.cleanedUp.Add(float64(removed))
}

func (m *paginateMetrics) RecordPage(path string) {
	m.pagesServed.WithLabelValues(path).Inc()
}
