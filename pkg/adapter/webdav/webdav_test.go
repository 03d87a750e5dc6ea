package webdav

import (
	"context"
	"io"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
)

func testServer() *dav.Server {
	return dav.NewServer(dav.ListerFunc(func(ctx context.Context, req *dav.PropfindRequest) (iter.Seq2[dav.ResultItem, error], error) {
		return dav.Items(dav.ResultItem{
			Href:   "/a",
			Groups: map[int]davxml.Properties{dav.StatusOK: {{Name: dav.PropDisplayName, Value: "a"}}},
		}), nil
	}), nil)
}

type recordedRequest struct {
	method string
	status int
}

type fakeMetrics struct {
	mu          sync.Mutex
	requests    []recordedRequest
	inFlight    int
	rateLimited int
}

func (m *fakeMetrics) RecordRequest(method string, status int, d time.Duration, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method: method, status: status})
}

func (m *fakeMetrics) RecordRequestStart(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *fakeMetrics) RecordRequestEnd(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func (m *fakeMetrics) RecordRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

func propfind(h http.Handler, remote string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(dav.MethodPropfind, "/", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AssignsRequestID(t *testing.T) {
	a := New(Config{}, nil)
	a.SetServer(testServer())

	rec := propfind(a.Handler(), "192.0.2.1:1000")
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	rec = propfind(a.Handler(), "192.0.2.1:1000", HeaderRequestID, "client-id")
	assert.Equal(t, "client-id", rec.Header().Get(HeaderRequestID))
}

func TestHandler_RecordsMetrics(t *testing.T) {
	m := &fakeMetrics{}
	a := New(Config{}, m)
	a.SetServer(testServer())

	propfind(a.Handler(), "192.0.2.1:1000")

	req := httptest.NewRequest(http.MethodDelete, "/a", nil)
	a.Handler().ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []recordedRequest{
		{method: dav.MethodPropfind, status: http.StatusMultiStatus},
		{method: http.MethodDelete, status: http.StatusMethodNotAllowed},
	}, m.requests)
	assert.Equal(t, 0, m.inFlight)
}

func TestHandler_RateLimitPerClient(t *testing.T) {
	m := &fakeMetrics{}
	a := New(Config{RateLimit: RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}}, m)
	a.SetServer(testServer())
	h := a.Handler()

	assert.Equal(t, http.StatusMultiStatus, propfind(h, "192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusMultiStatus, propfind(h, "192.0.2.1:1001").Code)

	limited := propfind(h, "192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.NotEmpty(t, limited.Header().Get(HeaderRequestID))

	assert.Equal(t, http.StatusMultiStatus, propfind(h, "198.51.100.7:1000").Code)
	assert.Equal(t, 1, m.rateLimited)
}

func TestHandler_WithoutServer(t *testing.T) {
	a := New(Config{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, propfind(a.Handler(), "192.0.2.1:1").Code)
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{}, nil)
	assert.Equal(t, 8080, a.Port())
	assert.Equal(t, "WebDAV", a.Protocol())
	assert.Equal(t, 30*time.Second, a.config.ShutdownTimeout)
	assert.Nil(t, a.Addr())
}

func TestNew_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() { New(Config{Port: 70000}, nil) })
}

func TestServeListener_GracefulShutdown(t *testing.T) {
	a := New(Config{}, nil)
	a.SetServer(testServer())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, ln) }()

	req, err := http.NewRequest(dav.MethodPropfind, "http://"+ln.Addr().String()+"/", strings.NewReader(""))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, string(body), "<d:href>/a</d:href>")
	assert.Equal(t, ln.Addr().String(), a.Addr().String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not return after cancellation")
	}
	assert.NoError(t, a.Stop(context.Background()))
}
