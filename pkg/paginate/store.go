package paginate

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"iter"
	"time"

	"github.com/marmos91/dittodav/pkg/dav"
)

// DefaultTTL is how long a stored result set stays readable.
const DefaultTTL = 30 * time.Minute

// Store persists full result sets under random tokens scoped to the URL that
// produced them.
//
// Implementations must be safe for concurrent use. Expired entries must
// never be returned by Get, whether or not Cleanup already removed them, and
// a Cleanup racing with a Get must look to that Get like the entry just
// expired.
type Store interface {
	// Store consumes items once, persists all of them and returns a fresh
	// token together with the number of items stored. An error from items
	// aborts the call; nothing readable is left behind.
	Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (token string, total int, err error)

	// Get returns items [offset, offset+count) of the entry matching both
	// url and token. It returns an empty slice, not an error, when there is
	// no such entry, the entry expired, or the range is empty.
	Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error)

	// Cleanup deletes every entry whose age reached the TTL.
	Cleanup(ctx context.Context) (removed int, err error)

	// Clear deletes every entry.
	Clear(ctx context.Context) error

	Close() error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// TokenSource generates entry tokens.
type TokenSource func() (string, error)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RandomToken returns 256 bits from crypto/rand, base32 encoded.
func RandomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tokenEncoding.EncodeToString(b[:]), nil
}

// Options are shared by every Store implementation.
type Options struct {
	// TTL is the age at which an entry expires. Zero means DefaultTTL.
	TTL time.Duration

	// Clock defaults to SystemClock.
	Clock Clock

	// NewToken defaults to RandomToken.
	NewToken TokenSource
}

// ApplyDefaults fills unset fields.
func (o *Options) ApplyDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.NewToken == nil {
		o.NewToken = RandomToken
	}
}

// Expired reports whether an entry created at createdAt has reached the TTL.
// An entry is valid while its age is strictly below the TTL.
func (o Options) Expired(createdAt time.Time) bool {
	return o.Clock.Now().Sub(createdAt) >= o.TTL
}

// Cutoff returns the creation time at or before which entries are expired.
func (o Options) Cutoff() time.Time {
	return o.Clock.Now().Add(-o.TTL)
}

// Window clamps [offset, offset+count) to a result set of total items. ok is
// false when the window is empty.
func Window(total, offset, count int) (start, end int, ok bool) {
	if offset < 0 || count <= 0 || offset >= total {
		return 0, 0, false
	}
	end = total
	if count < total-offset {
		end = offset + count
	}
	return offset, end, true
}

// Entry is a stored result set.
type Entry struct {
	URL       string
	Token     string
	CreatedAt time.Time
	Items     []dav.ResultItem
}
