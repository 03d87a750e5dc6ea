package paginate

import "time"

// Page paths reported to Metrics.RecordPage.
const (
	PageFirst    = "first"
	PageCached   = "cached"
	PageDegraded = "degraded"
)

// Metrics provides observability for the pagination overlay.
//
// This is optional. When PluginConfig.Metrics is nil, metrics collection is
// skipped.
type Metrics interface {
	// ObserveStore records one Store call and the number of items it persisted.
	ObserveStore(items int, duration time.Duration, err error)

	// ObserveGet records one Get call and the number of items it returned.
	ObserveGet(items int, duration time.Duration, err error)

	// ObserveCleanup records one Cleanup pass.
	ObserveCleanup(removed int, duration time.Duration, err error)

	// RecordPage counts a response served through the given path.
	RecordPage(path string)
}

// noopMetrics is the default no-op implementation.
type noopMetrics struct{}

func (noopMetrics) ObserveStore(items int, duration time.Duration, err error)     {}
func (noopMetrics) ObserveGet(items int, duration time.Duration, err error)       {}
func (noopMetrics) ObserveCleanup(removed int, duration time.Duration, err error) {}
func (noopMetrics) RecordPage(path string)                                        {}

// NewNoopMetrics returns a Metrics that records nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}
