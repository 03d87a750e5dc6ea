package paginate

import (
	"fmt"
	"iter"
	"maps"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
)

// SerializeResults lazily converts the found-properties group of every item
// into plain values. Href and the other status groups pass through as they
// are. A serialization failure is yielded with the item that caused it and
// ends the sequence.
func SerializeResults(seq iter.Seq2[dav.ResultItem, error], reg *davxml.Registry) iter.Seq2[dav.ResultItem, error] {
	return func(yield func(dav.ResultItem, error) bool) {
		for it, err := range seq {
			if err != nil {
				yield(dav.ResultItem{}, err)
				return
			}

			out, err := SerializeItem(it, reg)
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

// SerializeItem converts a single item. The input item is not modified.
func SerializeItem(it dav.ResultItem, reg *davxml.Registry) (dav.ResultItem, error) {
	group, ok := it.Groups[dav.StatusOK]
	if !ok || len(group) == 0 {
		return it, nil
	}

	plain, err := davxml.Serialize(reg, group)
	if err != nil {
		return dav.ResultItem{}, fmt.Errorf("serialize properties of %s: %w", it.Href, err)
	}

	props, ok := plain.(davxml.Properties)
	if !ok {
		// A group rendering no elements at all, or only text.
		return dav.ResultItem{}, fmt.Errorf("serialize properties of %s: %w: group rendered %T",
			it.Href, davxml.ErrUnsupportedPropertyType, plain)
	}

	groups := maps.Clone(it.Groups)
	groups[dav.StatusOK] = props
	return dav.ResultItem{Href: it.Href, Groups: groups}, nil
}
