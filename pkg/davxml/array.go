package davxml

import (
	"fmt"
	"io"
)

// ArrayWriter records write events as a plain Properties tree.
//
// Each StartElement pushes a frame; EndElement pops it and appends
// Node{Name, Value} to the parent frame, or to the document when no parent
// is open. A frame's value is its scalar text if it only received text, its
// child nodes if it only received elements, or nil if it is empty.
//
// The resulting tree contains only plain values and can be encoded by any
// cache codec. Calls with no plain-tree meaning return ErrUnsupportedOperation
// regardless of their arguments.
//
// An ArrayWriter is single-use and not safe for concurrent use.
type ArrayWriter struct {
	registry *Registry
	stack    []*frame
	document Properties
}

type frame struct {
	name     string
	text     any
	hasText  bool
	children Properties
}

func (f *frame) value() any {
	if f.hasText {
		return f.text
	}
	if len(f.children) > 0 {
		return f.children
	}
	return nil
}

// NewArrayWriter returns an empty writer resolving values through reg.
// A nil registry means DefaultRegistry.
func NewArrayWriter(reg *Registry) *ArrayWriter {
	if reg == nil {
		reg = DefaultRegistry
	}
	return &ArrayWriter{registry: reg}
}

// StartElement opens a new frame.
func (a *ArrayWriter) StartElement(name string) error {
	a.stack = append(a.stack, &frame{name: name})
	return nil
}

// EndElement closes the current frame and attaches it to its parent.
func (a *ArrayWriter) EndElement() error {
	if len(a.stack) == 0 {
		return fmt.Errorf("%w: EndElement without StartElement", ErrUnbalanced)
	}

	top := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	node := Node{Name: top.name, Value: top.value()}

	if len(a.stack) == 0 {
		a.document = append(a.document, node)
		return nil
	}

	parent := a.stack[len(a.stack)-1]
	if parent.hasText {
		return fmt.Errorf("%w: element %s inside text of %s", ErrMixedContent, top.name, parent.name)
	}
	parent.children = append(parent.children, node)
	return nil
}

// Write renders value into the current frame.
func (a *ArrayWriter) Write(value any) error {
	return a.registry.dispatch(a, value, a.text)
}

// text stores a scalar in the current frame. A second scalar in the same
// frame is concatenated as character data, like consecutive XML text nodes.
func (a *ArrayWriter) text(v any) error {
	if len(a.stack) == 0 {
		return fmt.Errorf("%w: text outside of an element", ErrUnbalanced)
	}

	top := a.stack[len(a.stack)-1]
	if len(top.children) > 0 {
		return fmt.Errorf("%w: text inside %s after child elements", ErrMixedContent, top.name)
	}

	if !top.hasText {
		top.text = v
		top.hasText = true
		return nil
	}
	top.text = formatScalar(top.text) + formatScalar(v)
	return nil
}

// Document returns the nodes closed at the root level.
func (a *ArrayWriter) Document() Properties {
	return a.document
}

// Depth returns the number of currently open elements.
func (a *ArrayWriter) Depth() int {
	return len(a.stack)
}

func unsupported(op string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
}

func (a *ArrayWriter) StartElementNS(prefix, local, uri string) error {
	return unsupported("StartElementNS")
}

func (a *ArrayWriter) WriteAttribute(name, value string) error {
	return unsupported("WriteAttribute")
}

func (a *ArrayWriter) WriteComment(text string) error {
	return unsupported("WriteComment")
}

func (a *ArrayWriter) WriteProcessingInstruction(target, content string) error {
	return unsupported("WriteProcessingInstruction")
}

func (a *ArrayWriter) WriteRaw(content string) error {
	return unsupported("WriteRaw")
}

func (a *ArrayWriter) WriteCData(content string) error {
	return unsupported("WriteCData")
}

func (a *ArrayWriter) WriteDTD(name, publicID, systemID, subset string) error {
	return unsupported("WriteDTD")
}

func (a *ArrayWriter) OpenURI(uri string) error {
	return unsupported("OpenURI")
}

func (a *ArrayWriter) SetOutput(w io.Writer) error {
	return unsupported("SetOutput")
}

// Serialize renders value under a synthetic root element and returns the
// plain value that element ended up with.
func Serialize(reg *Registry, value any) (any, error) {
	w := NewArrayWriter(reg)
	if err := w.StartElement("root"); err != nil {
		return nil, err
	}
	if err := w.Write(value); err != nil {
		return nil, err
	}
	if err := w.EndElement(); err != nil {
		return nil, err
	}

	doc := w.Document()
	if len(doc) != 1 {
		return nil, fmt.Errorf("%w: expected one root node, got %d", ErrUnbalanced, len(doc))
	}
	return doc[0].Value, nil
}
