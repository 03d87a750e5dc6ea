package badger

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key layout
//
//	ph:<urlhash>:<token>          -> entry header (url, created time, total)
//	pi:<urlhash>:<token>:<index>  -> one encoded item, index zero-padded
//
// The url hash keeps keys short; the header stores the full url and Get
// compares it, so hash collisions cannot leak another url's entry. Zero
// padding makes byte order match item order, which lets Get seek directly to
// the first item of a page.
const (
	prefixHeader = "ph:"
	prefixItem   = "pi:"
)

func urlHash(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

func keyHeader(url, token string) []byte {
	return []byte(prefixHeader + urlHash(url) + ":" + token)
}

func keyItemPrefix(url, token string) []byte {
	return []byte(prefixItem + urlHash(url) + ":" + token + ":")
}

func keyItem(url, token string, index int) []byte {
	return fmt.Appendf(keyItemPrefix(url, token), "%010d", index)
}
