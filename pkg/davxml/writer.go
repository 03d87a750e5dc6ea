package davxml

import "io"

// Writer is the write-event protocol property values render through.
//
// StartElement, Write and EndElement are the core events every Writer
// supports. The remaining calls mirror what a full XML writer can do; writers
// that cannot represent them (ArrayWriter) must fail rather than ignore them.
type Writer interface {
	// StartElement opens an element named in Clark notation.
	StartElement(name string) error

	// EndElement closes the most recently opened element.
	EndElement() error

	// Write renders a value into the current element.
	Write(value any) error

	StartElementNS(prefix, local, uri string) error
	WriteAttribute(name, value string) error
	WriteComment(text string) error
	WriteProcessingInstruction(target, content string) error
	WriteRaw(content string) error
	WriteCData(content string) error
	WriteDTD(name, publicID, systemID, subset string) error

	// OpenURI and SetOutput redirect the writer's output stream.
	OpenURI(uri string) error
	SetOutput(w io.Writer) error
}

// Renderer is implemented by structured property values that know how to
// render themselves.
type Renderer interface {
	RenderDAV(w Writer) error
}

// RenderFunc renders a value of a registered type.
type RenderFunc func(w Writer, value any) error
