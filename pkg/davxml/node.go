package davxml

import "strings"

// Node is one element of a property tree.
//
// Name uses Clark notation ("{DAV:}getetag"). Value is a plain scalar, nil,
// a Properties slice of child nodes, or (before serialization) any value the
// Registry can render.
type Node struct {
	Name  string
	Value any
}

// Properties is an ordered list of nodes. A status group of a listing result
// is a Properties value whose nodes are the individual properties.
type Properties []Node

// RenderDAV writes the node as an element wrapping its value.
func (n Node) RenderDAV(w Writer) error {
	if err := w.StartElement(n.Name); err != nil {
		return err
	}
	if err := w.Write(n.Value); err != nil {
		return err
	}
	return w.EndElement()
}

// RenderDAV writes every node in order.
func (p Properties) RenderDAV(w Writer) error {
	for _, n := range p {
		if err := n.RenderDAV(w); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of the first node with the given name.
func (p Properties) Get(name string) (any, bool) {
	for _, n := range p {
		if n.Name == name {
			return n.Value, true
		}
	}
	return nil, false
}

// Names returns the node names in order.
func (p Properties) Names() []string {
	names := make([]string, len(p))
	for i, n := range p {
		names[i] = n.Name
	}
	return names
}

// SplitName splits a Clark-notation name into namespace and local part.
// Names without a namespace return an empty namespace.
func SplitName(name string) (space, local string) {
	if strings.HasPrefix(name, "{") {
		if end := strings.IndexByte(name, '}'); end > 0 {
			return name[1:end], name[end+1:]
		}
	}
	return "", name
}

// JoinName builds a Clark-notation name.
func JoinName(space, local string) string {
	if space == "" {
		return local
	}
	return "{" + space + "}" + local
}

// IsScalar reports whether v is one of the plain scalar types.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, uint64, float64:
		return true
	default:
		return false
	}
}
