//go:build integration

package badger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
	"github.com/marmos91/dittodav/pkg/paginate"
	"github.com/marmos91/dittodav/pkg/paginate/badger"
	storetesting "github.com/marmos91/dittodav/pkg/paginate/testing"
)

func listing(n int) []dav.ResultItem {
	items := make([]dav.ResultItem, n)
	for i := range items {
		items[i] = dav.ResultItem{
			Href: "/dir/file-" + string(rune('a'+i)),
			Groups: map[int]davxml.Properties{
				dav.StatusOK: {
					{Name: dav.PropGetContentLength, Value: int64(i * 100)},
					{Name: dav.PropDisplayName, Value: "file"},
				},
			},
		}
	}
	return items
}

// TestBadgerPaginationStore_Persistence verifies that stored listings
// survive a restart of the database and still expire afterwards.
//
// Prerequisites:
//   - None (BadgerDB is embedded, no external services needed)
//   - Run with: go test -tags=integration ./test/integration/badger/...
func TestBadgerPaginationStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "paginate")
	clock := storetesting.NewClock(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	opts := paginate.Options{TTL: time.Minute, Clock: clock}

	for _, codecName := range []string{paginate.CodecXDR, paginate.CodecMsgpack} {
		t.Run(codecName, func(t *testing.T) {
			codec, err := paginate.NewCodec(codecName)
			require.NoError(t, err)

			items := listing(5)

			store, err := badger.New(ctx, badger.Config{DBPath: dbPath + "-" + codecName}, codec, opts)
			require.NoError(t, err)
			token, total, err := store.Store(ctx, "/dir", dav.Items(items...))
			require.NoError(t, err)
			require.Equal(t, 5, total)
			require.NoError(t, store.Close())

			// Reopen the same directory.
			store, err = badger.New(ctx, badger.Config{DBPath: dbPath + "-" + codecName}, codec, opts)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()

			got, err := store.Get(ctx, "/dir", token, 2, 2)
			require.NoError(t, err)
			assert.Equal(t, items[2:4], got)

			clock.Advance(time.Minute)
			got, err = store.Get(ctx, "/dir", token, 0, 5)
			require.NoError(t, err)
			assert.Empty(t, got)

			removed, err := store.Cleanup(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			clock.Advance(-time.Minute)
		})
	}
}
