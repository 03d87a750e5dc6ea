package davxml

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry maps runtime types to render functions for values that do not
// implement Renderer themselves.
//
// Thread Safety:
// Safe for concurrent use. Registration normally happens during init, lookups
// happen on every rendered property.
type Registry struct {
	mu    sync.RWMutex
	funcs map[reflect.Type]RenderFunc
}

// DefaultRegistry is shared by the XML response path and the cache
// serializer so both render the same value the same way.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[reflect.Type]RenderFunc)}
}

// Register associates the dynamic type of sample with fn. Registering the
// same type twice replaces the previous function.
func (r *Registry) Register(sample any, fn RenderFunc) {
	if sample == nil || fn == nil {
		panic("davxml: Register requires a non-nil sample and function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[reflect.TypeOf(sample)] = fn
}

// Lookup returns the render function registered for the dynamic type of v.
func (r *Registry) Lookup(v any) (RenderFunc, bool) {
	if r == nil || v == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[reflect.TypeOf(v)]
	return fn, ok
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for t, fn := range r.funcs {
		c.funcs[t] = fn
	}
	return c
}

// dispatch routes a value written through w.
//
// Plain scalars go to text, the writer's own handling of character data.
// Structured values recurse through w so that nested values hit the same
// dispatch again.
func (r *Registry) dispatch(w Writer, value any, text func(any) error) error {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool, int, int64, uint64, float64:
		return text(v)
	case Renderer:
		return v.RenderDAV(w)
	case []Node:
		return Properties(v).RenderDAV(w)
	case []any:
		for _, elem := range v {
			if err := w.Write(elem); err != nil {
				return err
			}
		}
		return nil
	}

	if fn, ok := r.Lookup(value); ok {
		return fn(w, value)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if err := w.Write(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %T", ErrUnsupportedPropertyType, value)
}
