// Package memory provides an in-process paginate.Store.
package memory

import (
	"context"
	"iter"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/paginate"
)

const shardCount = 32

// Store keeps result sets in sharded maps keyed by token. Each shard has its
// own lock, so Cleanup never blocks the whole store.
type Store struct {
	opts   paginate.Options
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*paginate.Entry
}

// New returns an empty store.
func New(opts paginate.Options) *Store {
	opts.ApplyDefaults()
	s := &Store{opts: opts}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*paginate.Entry)
	}
	return s
}

func (s *Store) shardFor(token string) *shard {
	return &s.shards[xxhash.Sum64String(token)%shardCount]
}

func (s *Store) Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (string, int, error) {
	var collected []dav.ResultItem
	for it, err := range items {
		if err != nil {
			return "", 0, err
		}
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		collected = append(collected, it)
	}

	token, err := s.opts.NewToken()
	if err != nil {
		return "", 0, paginate.NewStoreError("memory", "store", err)
	}

	entry := &paginate.Entry{
		URL:       url,
		Token:     token,
		CreatedAt: s.opts.Clock.Now(),
		Items:     collected,
	}

	sh := s.shardFor(token)
	sh.mu.Lock()
	sh.entries[token] = entry
	sh.mu.Unlock()

	return token, len(collected), nil
}

func (s *Store) Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error) {
	sh := s.shardFor(token)
	sh.mu.RLock()
	entry, ok := sh.entries[token]
	sh.mu.RUnlock()

	if !ok || entry.URL != url || s.opts.Expired(entry.CreatedAt) {
		return nil, nil
	}

	start, end, ok := paginate.Window(len(entry.Items), offset, count)
	if !ok {
		return nil, nil
	}

	// Entries are immutable; a copy of the slice header is enough.
	out := make([]dav.ResultItem, end-start)
	copy(out, entry.Items[start:end])
	return out, nil
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		sh := &s.shards[i]
		sh.mu.Lock()
		for token, entry := range sh.entries {
			if s.opts.Expired(entry.CreatedAt) {
				delete(sh.entries, token)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *Store) Clear(ctx context.Context) error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		clear(sh.entries)
		sh.mu.Unlock()
	}
	return nil
}

// Len returns the number of entries, expired or not.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (s *Store) Close() error {
	return nil
}
