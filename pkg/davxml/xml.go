package davxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DAVNamespace is the namespace of the core WebDAV elements.
const DAVNamespace = "DAV:"

// XMLWriter renders write events as an XML document.
//
// Element names are given in Clark notation and mapped to prefixes on first
// use: the DAV: namespace is bound to "d", every other namespace to ns1, ns2,
// and so on. Declarations are scoped to the element that introduced them.
//
// A start tag is held back until the element receives content so that
// WriteAttribute can still add to it.
type XMLWriter struct {
	registry *Registry
	enc      *xml.Encoder
	out      io.Writer
	owned    io.Closer

	stack   []*xmlFrame
	pending *xml.StartElement
	started bool
	nextNS  int
}

type xmlFrame struct {
	name  xml.Name
	decls map[string]string // prefix -> namespace
}

// NewXMLWriter returns a writer emitting to out. A nil registry means
// DefaultRegistry.
func NewXMLWriter(out io.Writer, reg *Registry) *XMLWriter {
	if reg == nil {
		reg = DefaultRegistry
	}
	return &XMLWriter{
		registry: reg,
		enc:      xml.NewEncoder(out),
		out:      out,
	}
}

// WriteHeader emits the XML declaration. It must be the first call.
func (x *XMLWriter) WriteHeader() error {
	return x.WriteProcessingInstruction("xml", `version="1.0" encoding="UTF-8"`)
}

func (x *XMLWriter) StartElement(name string) error {
	space, local := SplitName(name)
	return x.start(space, local, "")
}

func (x *XMLWriter) StartElementNS(prefix, local, uri string) error {
	return x.start(uri, local, prefix)
}

func (x *XMLWriter) start(space, local, prefix string) error {
	if err := x.flushPending(); err != nil {
		return err
	}

	fr := &xmlFrame{decls: make(map[string]string)}
	x.stack = append(x.stack, fr)

	var attrs []xml.Attr
	qualified := local
	if space != "" {
		p, declared := x.prefixFor(space, prefix)
		if !declared {
			fr.decls[p] = space
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: space})
		}
		qualified = p + ":" + local
	}

	fr.name = xml.Name{Local: qualified}
	x.pending = &xml.StartElement{Name: fr.name, Attr: attrs}
	x.started = true
	return nil
}

// prefixFor resolves the prefix bound to space in the current scope. When
// want is set, only that prefix is acceptable.
func (x *XMLWriter) prefixFor(space, want string) (string, bool) {
	for i := len(x.stack) - 1; i >= 0; i-- {
		for p, uri := range x.stack[i].decls {
			if uri == space && (want == "" || want == p) {
				return p, true
			}
		}
	}

	if want != "" {
		return want, false
	}
	if space == DAVNamespace {
		return "d", false
	}
	x.nextNS++
	return "ns" + strconv.Itoa(x.nextNS), false
}

func (x *XMLWriter) EndElement() error {
	if len(x.stack) == 0 {
		return fmt.Errorf("%w: EndElement without StartElement", ErrUnbalanced)
	}
	if err := x.flushPending(); err != nil {
		return err
	}

	top := x.stack[len(x.stack)-1]
	x.stack = x.stack[:len(x.stack)-1]
	return x.enc.EncodeToken(xml.EndElement{Name: top.name})
}

func (x *XMLWriter) Write(value any) error {
	return x.registry.dispatch(x, value, x.text)
}

func (x *XMLWriter) text(v any) error {
	if len(x.stack) == 0 {
		return fmt.Errorf("%w: text outside of an element", ErrUnbalanced)
	}
	if err := x.flushPending(); err != nil {
		return err
	}
	return x.enc.EncodeToken(xml.CharData(formatScalar(v)))
}

func formatScalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (x *XMLWriter) WriteAttribute(name, value string) error {
	if x.pending == nil {
		return ErrAttributeAfterContent
	}

	space, local := SplitName(name)
	if space != "" {
		p, declared := x.prefixFor(space, "")
		if !declared {
			x.stack[len(x.stack)-1].decls[p] = space
			x.pending.Attr = append(x.pending.Attr, xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: space})
		}
		local = p + ":" + local
	}
	x.pending.Attr = append(x.pending.Attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	return nil
}

func (x *XMLWriter) WriteComment(text string) error {
	if err := x.flushPending(); err != nil {
		return err
	}
	x.started = true
	return x.enc.EncodeToken(xml.Comment(text))
}

func (x *XMLWriter) WriteProcessingInstruction(target, content string) error {
	if err := x.flushPending(); err != nil {
		return err
	}
	x.started = true
	return x.enc.EncodeToken(xml.ProcInst{Target: target, Inst: []byte(content)})
}

func (x *XMLWriter) WriteDTD(name, publicID, systemID, subset string) error {
	if err := x.flushPending(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("DOCTYPE ")
	b.WriteString(name)
	switch {
	case publicID != "":
		fmt.Fprintf(&b, " PUBLIC %q %q", publicID, systemID)
	case systemID != "":
		fmt.Fprintf(&b, " SYSTEM %q", systemID)
	}
	if subset != "" {
		b.WriteString(" [" + subset + "]")
	}

	x.started = true
	return x.enc.EncodeToken(xml.Directive(b.String()))
}

// WriteRaw writes content unescaped.
func (x *XMLWriter) WriteRaw(content string) error {
	return x.writeDirect(content)
}

func (x *XMLWriter) WriteCData(content string) error {
	// "]]>" cannot appear inside a section; split it across two.
	escaped := strings.ReplaceAll(content, "]]>", "]]]]><![CDATA[>")
	return x.writeDirect("<![CDATA[" + escaped + "]]>")
}

func (x *XMLWriter) writeDirect(s string) error {
	if err := x.flushPending(); err != nil {
		return err
	}
	if err := x.enc.Flush(); err != nil {
		return err
	}
	x.started = true
	_, err := io.WriteString(x.out, s)
	return err
}

// OpenURI redirects output to a local file. Only plain paths and file://
// URIs are supported.
func (x *XMLWriter) OpenURI(uri string) error {
	if x.started {
		return ErrOutputStarted
	}

	path := strings.TrimPrefix(uri, "file://")
	if strings.Contains(path, "://") {
		return fmt.Errorf("unsupported output uri %q", uri)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open output %s: %w", uri, err)
	}
	if err := x.SetOutput(f); err != nil {
		_ = f.Close()
		return err
	}
	x.owned = f
	return nil
}

func (x *XMLWriter) SetOutput(w io.Writer) error {
	if x.started {
		return ErrOutputStarted
	}
	if x.owned != nil {
		_ = x.owned.Close()
		x.owned = nil
	}
	x.out = w
	x.enc = xml.NewEncoder(w)
	return nil
}

func (x *XMLWriter) flushPending() error {
	if x.pending == nil {
		return nil
	}
	start := *x.pending
	x.pending = nil
	return x.enc.EncodeToken(start)
}

// Flush writes buffered output.
func (x *XMLWriter) Flush() error {
	if err := x.flushPending(); err != nil {
		return err
	}
	return x.enc.Flush()
}

// Close flushes and closes an output opened with OpenURI.
func (x *XMLWriter) Close() error {
	err := x.Flush()
	if x.owned != nil {
		if cerr := x.owned.Close(); err == nil {
			err = cerr
		}
		x.owned = nil
	}
	return err
}
