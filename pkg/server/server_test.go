package server

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/paginate"
	"github.com/marmos91/dittodav/pkg/paginate/memory"
)

// fakeAdapter blocks in Serve until its context is done or fail is closed.
type fakeAdapter struct {
	protocol string
	port     int
	fail     chan error
	srv      *dav.Server
	stops    atomic.Int32
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, fail: make(chan error, 1)}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.fail:
		return err
	}
}

func (f *fakeAdapter) SetServer(srv *dav.Server)      { f.srv = srv }
func (f *fakeAdapter) Stop(ctx context.Context) error { f.stops.Add(1); return nil }
func (f *fakeAdapter) Protocol() string               { return f.protocol }
func (f *fakeAdapter) Port() int                      { return f.port }

// closeTracker records whether the store was closed.
type closeTracker struct {
	inner  paginate.Store
	closed atomic.Bool
}

var _ paginate.Store = (*closeTracker)(nil)

func (c *closeTracker) Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (string, int, error) {
	return c.inner.Store(ctx, url, items)
}

func (c *closeTracker) Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error) {
	return c.inner.Get(ctx, url, token, offset, count)
}

func (c *closeTracker) Cleanup(ctx context.Context) (int, error) { return c.inner.Cleanup(ctx) }
func (c *closeTracker) Clear(ctx context.Context) error          { return c.inner.Clear(ctx) }

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return c.inner.Close()
}

func newTestServer() (*DittoServer, *closeTracker) {
	store := &closeTracker{inner: memory.New(paginate.Options{})}
	return New(dav.NewServer(nil, nil), store), store
}

func TestAddAdapter_Conflicts(t *testing.T) {
	s, _ := newTestServer()

	a := newFakeAdapter("WebDAV", 8080)
	require.NoError(t, s.AddAdapter(a))
	assert.NotNil(t, a.srv)

	assert.ErrorContains(t, s.AddAdapter(newFakeAdapter("WebDAV", 8081)), "already registered")
	assert.ErrorContains(t, s.AddAdapter(newFakeAdapter("Other", 8080)), "port 8080")
	assert.Error(t, s.AddAdapter(nil))
	assert.Len(t, s.Adapters(), 1)
}

func TestServe_NoAdapters(t *testing.T) {
	s, _ := newTestServer()
	assert.Error(t, s.Serve(context.Background()))
}

func TestServe_CancelStopsEverything(t *testing.T) {
	s, store := newTestServer()
	a := newFakeAdapter("WebDAV", 8080)
	require.NoError(t, s.AddAdapter(a))
	s.SetCollector(gc.NewCollector(store, gc.Config{Enabled: true, Interval: time.Hour}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, int32(1), a.stops.Load())
	assert.True(t, store.closed.Load())
	assert.Error(t, s.Serve(context.Background()), "second Serve must fail")
	assert.Error(t, s.AddAdapter(newFakeAdapter("Late", 1)))
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	s, store := newTestServer()
	failing := newFakeAdapter("WebDAV", 8080)
	healthy := newFakeAdapter("Other", 8081)
	require.NoError(t, s.AddAdapter(failing))
	require.NoError(t, s.AddAdapter(healthy))

	failing.fail <- errors.New("address in use")

	err := s.Serve(context.Background())
	assert.ErrorContains(t, err, "WebDAV adapter: address in use")
	assert.Equal(t, int32(1), healthy.stops.Load())
	assert.True(t, store.closed.Load())
}

func TestServe_UnexpectedExitIsAnError(t *testing.T) {
	s, _ := newTestServer()
	a := newFakeAdapter("WebDAV", 8080)
	require.NoError(t, s.AddAdapter(a))
	a.fail <- nil

	assert.ErrorContains(t, s.Serve(context.Background()), "exited unexpectedly")
}

func TestNew_PanicsWithoutDAVServer(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}
