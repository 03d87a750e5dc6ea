package s3

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/paginate"
	storetesting "github.com/marmos91/dittodav/pkg/paginate/testing"
)

func newTestStore(t *testing.T, client Client, opts paginate.Options) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{Client: client, Bucket: "test", KeyPrefix: "paginate/"}, nil, opts)
	require.NoError(t, err)
	return store
}

func TestS3Store(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T, opts paginate.Options) paginate.Store {
			return newTestStore(t, newFakeClient(), opts)
		},
	}
	suite.Run(t)
}

func TestS3Store_ObjectLayout(t *testing.T) {
	client := newFakeClient()
	clock := storetesting.NewClock(time.Unix(1700000000, 0))
	store := newTestStore(t, client, paginate.Options{TTL: time.Minute, Clock: clock, NewToken: func() (string, error) {
		return "TOKEN", nil
	}})

	_, _, err := store.Store(context.Background(), "/docs", storetesting.Seq(storetesting.MakeItems("docs", 2)))
	require.NoError(t, err)

	h := urlHash("/docs")
	assert.Equal(t, []string{
		"paginate/data/" + h + "/TOKEN",
		"paginate/expiry/01700000000000000000/" + h + "/TOKEN",
		"paginate/index/" + h + "/TOKEN",
	}, client.keys("paginate/"))
}

func TestS3Store_GetUsesOneRangedRead(t *testing.T) {
	client := newFakeClient()
	store := newTestStore(t, client, paginate.Options{})
	items := storetesting.MakeItems("docs", 20)

	token, _, err := store.Store(context.Background(), "/docs", storetesting.Seq(items))
	require.NoError(t, err)

	got, err := store.Get(context.Background(), "/docs", token, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, items[5:9], got)
	assert.Equal(t, 1, client.ranged)
}

func TestS3Store_MissingDataLooksExpired(t *testing.T) {
	client := newFakeClient()
	store := newTestStore(t, client, paginate.Options{})
	token, _, err := store.Store(context.Background(), "/docs", storetesting.Seq(storetesting.MakeItems("docs", 3)))
	require.NoError(t, err)

	// Cleanup deletes the index first; simulate a Get that already read it.
	require.NoError(t, store.deleteKeys(context.Background(), []string{store.dataKey("/docs", token)}))

	got, err := store.Get(context.Background(), "/docs", token, 0, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestS3Store_FailedStoreRollsBack(t *testing.T) {
	client := newFakeClient()
	client.failPut = func(key string) error {
		if strings.HasPrefix(key, "paginate/expiry/") {
			return errors.New("throttled")
		}
		return nil
	}
	store := newTestStore(t, client, paginate.Options{})

	_, _, err := store.Store(context.Background(), "/docs", storetesting.Seq(storetesting.MakeItems("docs", 3)))

	var se *paginate.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "s3", se.Backend)
	assert.Empty(t, client.keys("paginate/"))
}

func TestS3Store_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Client: newFakeClient()}, nil, paginate.Options{})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Bucket: "b"}, nil, paginate.Options{})
	assert.Error(t, err)
}

func TestParseExpiryKey(t *testing.T) {
	created, hash, token, ok := parseExpiryKey("00000000000000000042/abcd/TOK")
	require.True(t, ok)
	assert.Equal(t, int64(42), created)
	assert.Equal(t, "abcd", hash)
	assert.Equal(t, "TOK", token)

	_, _, _, ok = parseExpiryKey("garbage")
	assert.False(t, ok)
}
