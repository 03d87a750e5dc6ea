// Package davxml implements the write-event protocol used to render WebDAV
// property values.
//
// A property value is either a plain value (string, bool, int, int64, uint64,
// float64, nil, or a Properties tree of them) or a structured value that knows
// how to render itself. Structured values render through a Writer using three
// events: StartElement, Write and EndElement.
//
// Two Writers share the same dispatch:
//
//   - XMLWriter emits the multistatus XML body of a normal response.
//   - ArrayWriter records the same events as a plain Properties tree, which is
//     safe to encode and store in a cache.
//
// Because both writers resolve values through the same Registry, a property
// renders identically whether it is streamed to a client or cached for a later
// page.
//
// Teaching the package a new value type:
//
//	// Preferred: implement Renderer on the type.
//	func (r ResourceType) RenderDAV(w davxml.Writer) error { ... }
//
//	// For types you don't own:
//	davxml.DefaultRegistry.Register(time.Time{}, func(w davxml.Writer, v any) error {
//	    return w.Write(v.(time.Time).UTC().Format(http.TimeFormat))
//	})
//
// Anything that is neither plain, a Renderer, registered, nor a slice of those
// fails with ErrUnsupportedPropertyType. Silently dropping a property would
// corrupt cached pages.
package davxml
