package testing

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// StoreTestSuite checks the paginate.Store contract. It only goes through the
// interface, so every backend runs the same tests.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T, opts paginate.Options) paginate.Store {
//	            return mystore.New(opts)
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. The suite passes
	// its own clock and TTL through opts; implementations must honour them.
	NewStore func(t *testing.T, opts paginate.Options) paginate.Store

	// SkipConcurrency disables the concurrency tests for slow backends.
	SkipConcurrency bool
}

// TestTTL is the TTL the suite configures.
const TestTTL = 10 * time.Minute

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("Expiration", suite.RunExpirationTests)
	if !suite.SkipConcurrency {
		t.Run("Concurrency", suite.RunConcurrencyTests)
	}
}

func (suite *StoreTestSuite) newStore(t *testing.T) (paginate.Store, *Clock) {
	t.Helper()
	clock := NewClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	store := suite.NewStore(t, paginate.Options{TTL: TestTTL, Clock: clock})
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func testContext() context.Context {
	return context.Background()
}

// Clock is a manually advanced paginate.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MakeItems builds n serialized items with a mix of plain value types.
func MakeItems(prefix string, n int) []dav.ResultItem {
	items := make([]dav.ResultItem, n)
	for i := range items {
		items[i] = dav.ResultItem{
			Href: fmt.Sprintf("/%s/file-%03d.txt", prefix, i),
			Groups: map[int]davxml.Properties{
				dav.StatusOK: {
					{Name: dav.PropDisplayName, Value: fmt.Sprintf("file-%03d.txt", i)},
					{Name: dav.PropGetContentLength, Value: int64(i * 100)},
					{Name: dav.PropResourceType, Value: nil},
					{Name: "{http://example.com/ns}score", Value: float64(i) + 0.5},
					{Name: "{http://example.com/ns}favorite", Value: i%2 == 0},
					{Name: "{http://example.com/ns}rank", Value: i},
					{Name: "{http://example.com/ns}inode", Value: uint64(1<<40 + i)},
					{Name: "{http://example.com/ns}tags", Value: davxml.Properties{
						{Name: "{http://example.com/ns}tag", Value: "a"},
						{Name: "{http://example.com/ns}tag", Value: "b"},
					}},
				},
				dav.StatusNotFound: {
					{Name: "{http://example.com/ns}missing"},
				},
			},
		}
	}
	return items
}

// Seq turns a slice into a fallible sequence.
func Seq(items []dav.ResultItem) iter.Seq2[dav.ResultItem, error] {
	return dav.Items(items...)
}

// mustStore stores items and checks the reported total.
func mustStore(t *testing.T, store paginate.Store, url string, items []dav.ResultItem) string {
	t.Helper()
	token, total, err := store.Store(testContext(), url, Seq(items))
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, len(items), total)
	return token
}

func mustGet(t *testing.T, store paginate.Store, url, token string, offset, count int) []dav.ResultItem {
	t.Helper()
	got, err := store.Get(testContext(), url, token, offset, count)
	require.NoError(t, err)
	return got
}
