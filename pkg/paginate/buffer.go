package paginate

import "iter"

// Buffer presents one single-pass source as two views: All, a replay of
// every element exactly once, and First, a restartable view of the first k
// elements.
//
// Both views share one pull cursor into the source and one append-only head
// buffer capped at k entries. Elements past k are handed to All directly and
// never retained.
//
// A source error is not retried. It is returned to the consumer that
// triggered the pull and to every later consumer needing an element that was
// not buffered before the failure.
//
// Buffer is not safe for concurrent use.
type Buffer[T any] struct {
	next func() (T, error, bool)
	stop func()

	k      int
	head   []T
	pulled int
	done   bool
	err    error
}

// NewBuffer wraps source. A negative k is treated as 0.
func NewBuffer[T any](source iter.Seq2[T, error], k int) *Buffer[T] {
	if k < 0 {
		k = 0
	}
	next, stop := iter.Pull2(source)
	return &Buffer[T]{next: next, stop: stop, k: k}
}

// pull advances the shared cursor by one element.
func (b *Buffer[T]) pull() (T, error, bool) {
	var zero T
	if b.err != nil {
		return zero, b.err, true
	}
	if b.done {
		return zero, nil, false
	}

	v, err, ok := b.next()
	if !ok {
		b.done = true
		b.stop()
		return zero, nil, false
	}
	if err != nil {
		b.err = err
		b.stop()
		return zero, err, true
	}

	if b.pulled < b.k {
		b.head = append(b.head, v)
	}
	b.pulled++
	return v, nil, true
}

// All yields the source in order. Positions below k come from the head
// buffer, the rest is pulled from the source.
//
// All is meant to be traversed once. Calling it again yields the head
// followed by whatever the source has left.
func (b *Buffer[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p := 0; ; p++ {
			if p < len(b.head) {
				if !yield(b.head[p], nil) {
					return
				}
				continue
			}

			v, err, ok := b.pull()
			if !ok {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// First yields the first min(k, N) elements. Every call yields the same
// elements, however far All has advanced.
func (b *Buffer[T]) First() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p := 0; p < b.k; p++ {
			if p < len(b.head) {
				if !yield(b.head[p], nil) {
					return
				}
				continue
			}

			v, err, ok := b.pull()
			if !ok {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Pulled returns the number of elements taken from the source so far.
func (b *Buffer[T]) Pulled() int {
	return b.pulled
}

// Stop releases the source. Later pulls behave as if the source ended.
func (b *Buffer[T]) Stop() {
	b.done = true
	b.stop()
}
