// Package badger stores pagination entries in BadgerDB.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/dustin/go-humanize"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/paginate"
)

const backendName = "badger"

// Config configures the BadgerDB store.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path" validate:"required_without=InMemory"`

	// InMemory keeps the database in memory only.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB sizes badger's block cache. Default 64.
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"omitempty,gte=0"`
}

// Store is a paginate.Store backed by BadgerDB.
//
// Every entry is one header key plus one key per item, see keys.go. Store
// writes the items before the header, so an entry becomes visible only once
// complete. Cleanup removes the header before the items; Get reads the header
// and the items from a single snapshot, so a concurrent Cleanup makes the
// entry disappear as a whole.
//
// Keys also carry a badger TTL of twice the entry TTL. It only matters for
// items orphaned by a failed Store, which no header points to and Cleanup
// therefore never sees.
type Store struct {
	db    *badger.DB
	codec paginate.Codec
	opts  paginate.Options
}

// header is the XDR-encoded value of a header key.
type header struct {
	URL       string
	CreatedAt int64
	Total     uint32
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config, codec paginate.Codec, opts paginate.Options) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.ApplyDefaults()
	if codec == nil {
		codec = paginate.XDRCodec{}
	}

	bopts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}

	cacheMB := cfg.BlockCacheSizeMB
	if cacheMB == 0 {
		cacheMB = 64
	}
	bopts = bopts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(cacheMB << 20)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, paginate.NewStoreError(backendName, "open", err)
	}

	logger.Info("Pagination store: badger at %q (in-memory=%v, block cache %s, codec %s)",
		cfg.DBPath, cfg.InMemory, humanize.IBytes(uint64(cacheMB<<20)), codec.Name())

	return &Store{db: db, codec: codec, opts: opts}, nil
}

func (s *Store) Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (string, int, error) {
	token, err := s.opts.NewToken()
	if err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}

	keyTTL := 2 * s.opts.TTL
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	total := 0
	var written uint64
	fail := func(err error) (string, int, error) {
		wb.Cancel()
		if total > 0 {
			_ = s.deletePrefix(keyItemPrefix(url, token))
		}
		return "", 0, err
	}

	for it, err := range items {
		if err != nil {
			return fail(err)
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		data, err := s.codec.Encode(it)
		if err != nil {
			return fail(err)
		}
		if err := wb.SetEntry(badger.NewEntry(keyItem(url, token, total), data).WithTTL(keyTTL)); err != nil {
			return fail(paginate.NewStoreError(backendName, "store", err))
		}
		total++
		written += uint64(len(data))
	}
	if err := wb.Flush(); err != nil {
		return fail(paginate.NewStoreError(backendName, "store", err))
	}

	var buf bytes.Buffer
	h := header{URL: url, CreatedAt: s.opts.Clock.Now().UnixNano(), Total: uint32(total)}
	if _, err := xdr.Marshal(&buf, &h); err != nil {
		return fail(paginate.NewStoreError(backendName, "store", err))
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(keyHeader(url, token), buf.Bytes()).WithTTL(keyTTL))
	})
	if err != nil {
		return fail(paginate.NewStoreError(backendName, "store", err))
	}

	logger.Debug("Pagination store: stored %d items (%s) for %s", total, humanize.IBytes(written), url)
	return token, total, nil
}

func (s *Store) Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error) {
	if token == "" {
		return nil, nil
	}

	var out []dav.ResultItem
	err := s.db.View(func(txn *badger.Txn) error {
		h, ok, err := readHeader(txn, keyHeader(url, token))
		if err != nil || !ok {
			return err
		}
		if h.URL != url || s.opts.Expired(time.Unix(0, h.CreatedAt)) {
			return nil
		}

		start, end, ok := paginate.Window(int(h.Total), offset, count)
		if !ok {
			return nil
		}

		prefix := keyItemPrefix(url, token)
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		iopts.PrefetchSize = min(end-start, 100)
		it := txn.NewIterator(iopts)
		defer it.Close()

		page := make([]dav.ResultItem, 0, end-start)
		for it.Seek(keyItem(url, token, start)); it.ValidForPrefix(prefix) && len(page) < end-start; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := s.codec.Decode(data)
			if err != nil {
				return err
			}
			page = append(page, item)
		}

		// Items expired under their badger TTL: treat the entry as gone.
		if len(page) != end-start {
			return nil
		}
		out = page
		return nil
	})
	if err != nil {
		return nil, paginate.NewStoreError(backendName, "get", err)
	}
	return out, nil
}

func readHeader(txn *badger.Txn, key []byte) (header, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return header{}, false, nil
	}
	if err != nil {
		return header{}, false, err
	}

	var h header
	err = item.Value(func(val []byte) error {
		_, err := xdr.Unmarshal(bytes.NewReader(val), &h)
		return err
	})
	if err != nil {
		return header{}, false, fmt.Errorf("decode header: %w", err)
	}
	return h, true, nil
}

type expiredEntry struct {
	headerKey []byte
	url       string
	token     string
}

// Cleanup scans the headers and removes every expired entry, each one in its
// own transactions.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	var expired []expiredEntry

	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte(prefixHeader)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var h header
			err := item.Value(func(val []byte) error {
				_, err := xdr.Unmarshal(bytes.NewReader(val), &h)
				return err
			})
			if err != nil {
				return fmt.Errorf("decode header %s: %w", item.Key(), err)
			}
			if !s.opts.Expired(time.Unix(0, h.CreatedAt)) {
				continue
			}

			key := item.KeyCopy(nil)
			// Key is ph:<hash>:<token>; the token is everything after the hash.
			token := string(key[len(prefixHeader)+16+1:])
			expired = append(expired, expiredEntry{headerKey: key, url: h.URL, token: token})
		}
		return nil
	})
	if err != nil {
		return 0, paginate.NewStoreError(backendName, "cleanup", err)
	}

	removed := 0
	for _, e := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(e.headerKey)
		})
		if err != nil {
			return removed, paginate.NewStoreError(backendName, "cleanup", err)
		}
		if err := s.deletePrefix(keyItemPrefix(e.url, e.token)); err != nil {
			return removed, paginate.NewStoreError(backendName, "cleanup", err)
		}
		removed++
	}
	return removed, nil
}

// deletePrefix removes every key starting with prefix.
func (s *Store) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.DropAll(); err != nil {
		return paginate.NewStoreError(backendName, "clear", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
