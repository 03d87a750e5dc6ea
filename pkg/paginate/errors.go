package paginate

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store closed")

// StoreError wraps a persistence failure with the operation and backend that
// produced it.
type StoreError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("paginate %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError returns nil when err is nil.
func NewStoreError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Backend: backend, Err: err}
}
