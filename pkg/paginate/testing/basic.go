package testing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// RunBasicTests covers Store, Get and Clear.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Store_RoundTrip", suite.testStoreRoundTrip)
	t.Run("Store_Empty", suite.testStoreEmpty)
	t.Run("Store_DistinctTokens", suite.testStoreDistinctTokens)
	t.Run("Store_SourceError", suite.testStoreSourceError)
	t.Run("Get_Slices", suite.testGetSlices)
	t.Run("Get_ExampleSlices", suite.testGetExampleSlices)
	t.Run("Get_WrongURL", suite.testGetWrongURL)
	t.Run("Get_UnknownToken", suite.testGetUnknownToken)
	t.Run("Get_EmptyWindows", suite.testGetEmptyWindows)
	t.Run("Clear", suite.testClear)
}

// ============================================================================
// Store Tests
// ============================================================================

func (suite *StoreTestSuite) testStoreRoundTrip(t *testing.T) {
	store, _ := suite.newStore(t)
	items := MakeItems("docs", 7)

	token := mustStore(t, store, "/docs", items)

	assert.Equal(t, items, mustGet(t, store, "/docs", token, 0, len(items)))
}

func (suite *StoreTestSuite) testStoreEmpty(t *testing.T) {
	store, _ := suite.newStore(t)

	token, total, err := store.Store(testContext(), "/empty", Seq(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 0, total)

	assert.Empty(t, mustGet(t, store, "/empty", token, 0, 10))
}

func (suite *StoreTestSuite) testStoreDistinctTokens(t *testing.T) {
	store, _ := suite.newStore(t)
	first := MakeItems("first", 3)
	second := MakeItems("second", 2)

	t1 := mustStore(t, store, "/same", first)
	t2 := mustStore(t, store, "/same", second)
	require.NotEqual(t, t1, t2)

	assert.Equal(t, first, mustGet(t, store, "/same", t1, 0, 10))
	assert.Equal(t, second, mustGet(t, store, "/same", t2, 0, 10))
}

func (suite *StoreTestSuite) testStoreSourceError(t *testing.T) {
	store, _ := suite.newStore(t)
	boom := errors.New("listing failed")
	items := MakeItems("broken", 3)

	_, _, err := store.Store(testContext(), "/broken", func(yield func(dav.ResultItem, error) bool) {
		for _, it := range items[:2] {
			if !yield(it, nil) {
				return
			}
		}
		yield(dav.ResultItem{}, boom)
	})
	require.ErrorIs(t, err, boom)
}

// ============================================================================
// Get Tests
// ============================================================================

func (suite *StoreTestSuite) testGetSlices(t *testing.T) {
	store, _ := suite.newStore(t)
	items := MakeItems("slices", 5)
	token := mustStore(t, store, "/slices", items)

	for offset := 0; offset <= len(items); offset++ {
		for count := 1; count <= len(items)+1; count++ {
			got := mustGet(t, store, "/slices", token, offset, count)

			end := min(offset+count, len(items))
			if offset >= len(items) {
				assert.Empty(t, got, "offset=%d count=%d", offset, count)
				continue
			}
			assert.Equal(t, items[offset:end], got, "offset=%d count=%d", offset, count)
		}
	}
}

func (suite *StoreTestSuite) testGetExampleSlices(t *testing.T) {
	store, _ := suite.newStore(t)
	items := []dav.ResultItem{
		{Href: "/u/foo", Groups: map[int]davxml.Properties{dav.StatusOK: {{Name: "{DAV:}displayname", Value: "foo"}}}},
		{Href: "/u/bar", Groups: map[int]davxml.Properties{dav.StatusOK: {{Name: "{DAV:}displayname", Value: "bar"}}}},
		{Href: "/u/asd", Groups: map[int]davxml.Properties{dav.StatusOK: {{Name: "{DAV:}displayname", Value: "asd"}}}},
	}

	token := mustStore(t, store, "/u", items)

	assert.Equal(t, items, mustGet(t, store, "/u", token, 0, 5))
	assert.Equal(t, items[1:2], mustGet(t, store, "/u", token, 1, 1))
}

func (suite *StoreTestSuite) testGetWrongURL(t *testing.T) {
	store, _ := suite.newStore(t)
	token := mustStore(t, store, "/private", MakeItems("private", 3))
	mustStore(t, store, "/other", MakeItems("other", 3))

	assert.Empty(t, mustGet(t, store, "/other", token, 0, 10))
	assert.Empty(t, mustGet(t, store, "/private/", token, 0, 10))
	assert.Len(t, mustGet(t, store, "/private", token, 0, 10), 3)
}

func (suite *StoreTestSuite) testGetUnknownToken(t *testing.T) {
	store, _ := suite.newStore(t)
	mustStore(t, store, "/docs", MakeItems("docs", 3))

	random, err := paginate.RandomToken()
	require.NoError(t, err)

	assert.Empty(t, mustGet(t, store, "/docs", random, 0, 10))
	assert.Empty(t, mustGet(t, store, "/docs", "", 0, 10))
}

func (suite *StoreTestSuite) testGetEmptyWindows(t *testing.T) {
	store, _ := suite.newStore(t)
	token := mustStore(t, store, "/docs", MakeItems("docs", 3))

	assert.Empty(t, mustGet(t, store, "/docs", token, 3, 1), "offset at end")
	assert.Empty(t, mustGet(t, store, "/docs", token, 100, 1), "offset past end")
	assert.Empty(t, mustGet(t, store, "/docs", token, -1, 2), "negative offset")
	assert.Empty(t, mustGet(t, store, "/docs", token, 0, 0), "zero count")
	assert.Empty(t, mustGet(t, store, "/docs", token, 0, -5), "negative count")
}

func (suite *StoreTestSuite) testClear(t *testing.T) {
	store, _ := suite.newStore(t)
	t1 := mustStore(t, store, "/a", MakeItems("a", 2))
	t2 := mustStore(t, store, "/b", MakeItems("b", 2))

	require.NoError(t, store.Clear(testContext()))

	assert.Empty(t, mustGet(t, store, "/a", t1, 0, 10))
	assert.Empty(t, mustGet(t, store, "/b", t2, 0, 10))

	// The store stays usable.
	t3 := mustStore(t, store, "/a", MakeItems("a", 1))
	assert.Len(t, mustGet(t, store, "/a", t3, 0, 10), 1)
}
