package davxml

import "errors"

var (
	// ErrUnsupportedPropertyType is returned when a value has no plain form,
	// does not implement Renderer and has no registered RenderFunc.
	ErrUnsupportedPropertyType = errors.New("unsupported property type")

	// ErrUnsupportedOperation is returned by ArrayWriter for write-protocol
	// calls that have no meaning in a plain tree (namespaces, attributes,
	// comments, processing instructions, raw or CDATA output, DTDs, output
	// targets).
	ErrUnsupportedOperation = errors.New("unsupported write operation")

	// ErrMixedContent is returned when text and child elements are written
	// into the same element of an ArrayWriter.
	ErrMixedContent = errors.New("mixed text and element content")

	// ErrUnbalanced is returned when EndElement has no matching StartElement,
	// or text is written outside of any element.
	ErrUnbalanced = errors.New("unbalanced element events")
)

var (
	// ErrAttributeAfterContent is returned by XMLWriter when an attribute is
	// written after the current element already received content.
	ErrAttributeAfterContent = errors.New("attribute written after element content")

	// ErrOutputStarted is returned when the output of an XMLWriter is
	// redirected after the first token was written.
	ErrOutputStarted = errors.New("output already started")
)
