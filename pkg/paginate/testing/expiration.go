package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunExpirationTests covers TTL handling in Get and Cleanup.
func (suite *StoreTestSuite) RunExpirationTests(t *testing.T) {
	t.Run("Get_BeforeTTL", suite.testGetBeforeTTL)
	t.Run("Get_AtTTL", suite.testGetAtTTL)
	t.Run("Get_DoesNotExtend", suite.testGetDoesNotExtend)
	t.Run("Cleanup_RemovesExpired", suite.testCleanupRemovesExpired)
	t.Run("Cleanup_NothingExpired", suite.testCleanupNothingExpired)
}

func (suite *StoreTestSuite) testGetBeforeTTL(t *testing.T) {
	store, clock := suite.newStore(t)
	items := MakeItems("docs", 3)
	token := mustStore(t, store, "/docs", items)

	clock.Advance(TestTTL - time.Second)

	assert.Equal(t, items, mustGet(t, store, "/docs", token, 0, 3))
}

func (suite *StoreTestSuite) testGetAtTTL(t *testing.T) {
	store, clock := suite.newStore(t)
	token := mustStore(t, store, "/docs", MakeItems("docs", 3))

	// Valid while age < TTL; age == TTL is expired even before Cleanup.
	clock.Advance(TestTTL)

	assert.Empty(t, mustGet(t, store, "/docs", token, 0, 3))
}

func (suite *StoreTestSuite) testGetDoesNotExtend(t *testing.T) {
	store, clock := suite.newStore(t)
	token := mustStore(t, store, "/docs", MakeItems("docs", 3))

	clock.Advance(TestTTL - time.Second)
	require.Len(t, mustGet(t, store, "/docs", token, 0, 3), 3)

	clock.Advance(time.Second)
	assert.Empty(t, mustGet(t, store, "/docs", token, 0, 3))
}

func (suite *StoreTestSuite) testCleanupRemovesExpired(t *testing.T) {
	store, clock := suite.newStore(t)
	old := mustStore(t, store, "/docs", MakeItems("old", 3))

	clock.Advance(TestTTL / 2)
	fresh := MakeItems("fresh", 2)
	freshToken := mustStore(t, store, "/docs", fresh)

	clock.Advance(TestTTL/2 + time.Second)

	removed, err := store.Cleanup(testContext())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.Empty(t, mustGet(t, store, "/docs", old, 0, 3))
	assert.Equal(t, fresh, mustGet(t, store, "/docs", freshToken, 0, 2))

	clock.Advance(TestTTL)
	removed, err = store.Cleanup(testContext())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func (suite *StoreTestSuite) testCleanupNothingExpired(t *testing.T) {
	store, clock := suite.newStore(t)
	token := mustStore(t, store, "/docs", MakeItems("docs", 2))

	clock.Advance(TestTTL - time.Second)

	removed, err := store.Cleanup(testContext())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, mustGet(t, store, "/docs", token, 0, 2), 2)
}
