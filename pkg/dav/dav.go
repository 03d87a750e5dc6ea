// Package dav implements a small WebDAV PROPFIND host.
//
// The server parses listing requests, asks a Lister for a lazy sequence of
// ResultItem values and renders them as a 207 Multi-Status document. Plugins
// can intercept a request before dispatch (BeforeMethodHook) or replace the
// result sequence before it is rendered (PropfindResultsHook).
package dav

import (
	"context"
	"errors"
	"iter"

	"github.com/marmos91/dittodav/pkg/davxml"
)

// ErrNotFound is returned by a Lister when the requested path does not exist.
var ErrNotFound = errors.New("resource not found")

const (
	// StatusOK is the status group holding properties that were found.
	StatusOK = 200

	// StatusNotFound is the status group holding requested properties the
	// resource does not have.
	StatusNotFound = 404
)

// ResultItem is one member of a listing: its href plus its properties
// grouped by status code.
type ResultItem struct {
	Href   string
	Groups map[int]davxml.Properties
}

// PropfindMode selects what a PROPFIND request asks for.
type PropfindMode int

const (
	PropfindAllProp PropfindMode = iota
	PropfindPropName
	PropfindProp
)

func (m PropfindMode) String() string {
	switch m {
	case PropfindAllProp:
		return "allprop"
	case PropfindPropName:
		return "propname"
	case PropfindProp:
		return "prop"
	default:
		return "unknown"
	}
}

// PropfindRequest is a parsed PROPFIND request.
type PropfindRequest struct {
	// Path is the cleaned request path.
	Path string

	// Depth is 0 (the resource only) or 1 (the resource and its members).
	Depth int

	Mode PropfindMode

	// Props lists the requested property names in Clark notation when Mode
	// is PropfindProp.
	Props []string
}

// Lister is the listing engine: it produces the result items of a PROPFIND.
//
// The returned sequence is lazy; property lookup for a member should happen
// when that member is pulled. Errors that prevent listing at all (missing
// path) are returned directly, errors for individual members go through the
// sequence.
type Lister interface {
	List(ctx context.Context, req *PropfindRequest) (iter.Seq2[ResultItem, error], error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, req *PropfindRequest) (iter.Seq2[ResultItem, error], error)

func (f ListerFunc) List(ctx context.Context, req *PropfindRequest) (iter.Seq2[ResultItem, error], error) {
	return f(ctx, req)
}

// Items returns a sequence yielding the given items without errors.
func Items(items ...ResultItem) iter.Seq2[ResultItem, error] {
	return func(yield func(ResultItem, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Collect drains seq, stopping at the first error.
func Collect(seq iter.Seq2[ResultItem, error]) ([]ResultItem, error) {
	var out []ResultItem
	for it, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
	return out, nil
}
