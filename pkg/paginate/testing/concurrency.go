package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConcurrencyTests runs Store, Get and Cleanup from several goroutines.
// Run them with -race to get the most out of them.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("ConcurrentStoreGet", suite.testConcurrentStoreGet)
	t.Run("CleanupDuringGet", suite.testCleanupDuringGet)
}

func (suite *StoreTestSuite) testConcurrentStoreGet(t *testing.T) {
	store, _ := suite.newStore(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := fmt.Sprintf("/worker-%d", w)
			items := MakeItems(url[1:], 4)

			token, total, err := store.Store(testContext(), url, Seq(items))
			if err != nil {
				errs <- err
				return
			}
			if total != len(items) {
				errs <- fmt.Errorf("%s: total %d, want %d", url, total, len(items))
				return
			}

			got, err := store.Get(testContext(), url, token, 1, 2)
			if err != nil {
				errs <- err
				return
			}
			if len(got) != 2 || got[0].Href != items[1].Href {
				errs <- fmt.Errorf("%s: unexpected page %v", url, got)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

// testCleanupDuringGet checks that a Get racing with the Cleanup deleting its
// entry sees either the whole page or nothing.
func (suite *StoreTestSuite) testCleanupDuringGet(t *testing.T) {
	store, clock := suite.newStore(t)
	items := MakeItems("race", 6)
	token := mustStore(t, store, "/race", items)
	clock.Advance(TestTTL)

	var wg sync.WaitGroup
	pages := make(chan int, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Get(testContext(), "/race", token, 0, len(items))
			if err == nil {
				pages <- len(got)
			}
		}()
	}

	removed, err := store.Cleanup(testContext())
	wg.Wait()
	close(pages)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	for n := range pages {
		assert.Zero(t, n, "expired entry must never be partially visible")
	}
}
