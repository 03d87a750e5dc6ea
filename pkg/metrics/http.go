package metrics

import "time"

// HTTPMetrics provides observability for the WebDAV HTTP adapter.
//
// This interface is optional. Without it the adapter uses a no-op
// implementation.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: HTTP method (e.g. "PROPFIND")
	//   - status: response status code
	//   - duration: time spent serving the request
	//   - bytes: response body size
	RecordRequest(method string, status int, duration time.Duration, bytes int64)

	// RecordRequestStart increments the in-flight gauge for method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for method.
	RecordRequestEnd(method string)

	// RecordRateLimited counts a request rejected by the rate limiter.
	RecordRateLimited()
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration, bytes int64) {
}
func (noopHTTPMetrics) RecordRequestStart(method string) {}
func (noopHTTPMetrics) RecordRequestEnd(method string)   {}
func (noopHTTPMetrics) RecordRateLimited()               {}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}
