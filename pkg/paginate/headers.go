package paginate

import (
	"net/http"
	"strconv"
	"strings"
)

// Header names exchanged with the client.
const (
	HeaderPaginate = "Paginate"
	HeaderToken    = "Paginate-Token"
	HeaderOffset   = "Paginate-Offset"
	HeaderCount    = "Paginate-Count"
	HeaderTotal    = "Paginate-Total"
)

// Request is the pagination state a client sent in its headers.
type Request struct {
	OptIn  bool
	Token  string
	Offset int
	Count  int

	// valid is false when Paginate-Offset or Paginate-Count did not parse.
	valid bool
}

// ParseRequest reads the pagination headers of h. A missing Paginate-Offset
// means 0 and a missing Paginate-Count means defaultCount. Values that do not
// parse leave the request unpaged.
func ParseRequest(h http.Header, defaultCount int) Request {
	req := Request{
		OptIn: parseBool(h.Get(HeaderPaginate)),
		Token: strings.TrimSpace(h.Get(HeaderToken)),
		Count: defaultCount,
		valid: true,
	}

	if v := strings.TrimSpace(h.Get(HeaderOffset)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			req.valid = false
		}
		req.Offset = n
	}
	if v := strings.TrimSpace(h.Get(HeaderCount)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			req.valid = false
		}
		req.Count = n
	}
	return req
}

// Paged reports whether the request asks for a window of a stored listing.
func (r Request) Paged() bool {
	return r.valid && r.Token != "" && r.Offset >= 0 && r.Count > 0
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
