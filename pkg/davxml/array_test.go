package davxml

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hrefList renders one {DAV:}href element per entry.
type hrefList []string

func (h hrefList) RenderDAV(w Writer) error {
	for _, p := range h {
		if err := w.StartElement("{DAV:}href"); err != nil {
			return err
		}
		if err := w.Write(p); err != nil {
			return err
		}
		if err := w.EndElement(); err != nil {
			return err
		}
	}
	return nil
}

type opaque struct{ n int }

func TestSerialize_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "foo"},
		{"empty string", ""},
		{"bool", true},
		{"int", 42},
		{"int64", int64(1 << 40)},
		{"uint64", uint64(1 << 63)},
		{"float64", 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(nil, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestSerialize_Nil(t *testing.T) {
	got, err := Serialize(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSerialize_Renderer(t *testing.T) {
	got, err := Serialize(nil, hrefList{"/a", "/b"})
	require.NoError(t, err)

	assert.Equal(t, Properties{
		{Name: "{DAV:}href", Value: "/a"},
		{Name: "{DAV:}href", Value: "/b"},
	}, got)
}

func TestSerialize_PropertiesNested(t *testing.T) {
	in := Properties{
		{Name: "{DAV:}displayname", Value: "report.pdf"},
		{Name: "{DAV:}resourcetype", Value: Properties{{Name: "{DAV:}collection"}}},
		{Name: "{DAV:}getcontentlength", Value: int64(1024)},
	}

	got, err := Serialize(nil, in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestSerialize_PlainNodeSlice(t *testing.T) {
	in := []Node{{Name: "{DAV:}getetag", Value: `"abc"`}}

	got, err := Serialize(nil, in)
	require.NoError(t, err)
	assert.Equal(t, Properties(in), got)
}

func TestSerialize_SequenceOfValues(t *testing.T) {
	got, err := Serialize(nil, []any{
		Node{Name: "{DAV:}a", Value: 1},
		hrefList{"/x"},
	})
	require.NoError(t, err)

	assert.Equal(t, Properties{
		{Name: "{DAV:}a", Value: 1},
		{Name: "{DAV:}href", Value: "/x"},
	}, got)
}

func TestSerialize_RegisteredType(t *testing.T) {
	reg := NewRegistry()
	reg.Register(time.Time{}, func(w Writer, v any) error {
		return w.Write(v.(time.Time).UTC().Format(time.RFC3339))
	})

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := Serialize(reg, Properties{{Name: "{DAV:}creationdate", Value: ts}})
	require.NoError(t, err)

	assert.Equal(t, Properties{{Name: "{DAV:}creationdate", Value: "2024-03-01T12:00:00Z"}}, got)
}

func TestSerialize_UnsupportedType(t *testing.T) {
	_, err := Serialize(NewRegistry(), Properties{{Name: "{DAV:}x", Value: opaque{n: 1}}})
	require.ErrorIs(t, err, ErrUnsupportedPropertyType)
	assert.Contains(t, err.Error(), "davxml.opaque")

	_, err = Serialize(NewRegistry(), map[string]string{"a": "b"})
	require.ErrorIs(t, err, ErrUnsupportedPropertyType)
}

func TestArrayWriter_TextConcatenation(t *testing.T) {
	w := NewArrayWriter(nil)
	require.NoError(t, w.StartElement("{DAV:}getetag"))
	require.NoError(t, w.Write(`"v`))
	require.NoError(t, w.Write(7))
	require.NoError(t, w.Write(`"`))
	require.NoError(t, w.EndElement())

	assert.Equal(t, Properties{{Name: "{DAV:}getetag", Value: `"v7"`}}, w.Document())
}

func TestArrayWriter_TextConcatenationMatchesXML(t *testing.T) {
	write := func(w Writer) {
		require.NoError(t, w.StartElement("{DAV:}quota-used-bytes"))
		require.NoError(t, w.Write(1e21))
		require.NoError(t, w.Write(" / "))
		require.NoError(t, w.Write(0.5))
		require.NoError(t, w.EndElement())
	}

	aw := NewArrayWriter(nil)
	write(aw)
	assert.Equal(t, Properties{{Name: "{DAV:}quota-used-bytes", Value: "1000000000000000000000 / 0.5"}}, aw.Document())

	xw, buf := newTestXMLWriter()
	write(xw)
	require.NoError(t, xw.Flush())
	assert.Contains(t, buf.String(), ">1000000000000000000000 / 0.5<")
}

func TestArrayWriter_EmptyElement(t *testing.T) {
	w := NewArrayWriter(nil)
	require.NoError(t, w.StartElement("{DAV:}collection"))
	require.NoError(t, w.EndElement())

	doc := w.Document()
	require.Len(t, doc, 1)
	assert.Nil(t, doc[0].Value)
	assert.Equal(t, 0, w.Depth())
}

func TestArrayWriter_MultipleRoots(t *testing.T) {
	w := NewArrayWriter(nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, w.StartElement(name))
		require.NoError(t, w.EndElement())
	}
	assert.Equal(t, []string{"a", "b", "c"}, w.Document().Names())
}

func TestArrayWriter_MixedContent(t *testing.T) {
	t.Run("element after text", func(t *testing.T) {
		w := NewArrayWriter(nil)
		require.NoError(t, w.StartElement("outer"))
		require.NoError(t, w.Write("text"))
		require.NoError(t, w.StartElement("inner"))
		assert.ErrorIs(t, w.EndElement(), ErrMixedContent)
	})

	t.Run("text after element", func(t *testing.T) {
		w := NewArrayWriter(nil)
		require.NoError(t, w.StartElement("outer"))
		require.NoError(t, w.StartElement("inner"))
		require.NoError(t, w.EndElement())
		assert.ErrorIs(t, w.Write("text"), ErrMixedContent)
	})
}

func TestArrayWriter_Unbalanced(t *testing.T) {
	w := NewArrayWriter(nil)
	assert.ErrorIs(t, w.EndElement(), ErrUnbalanced)
	assert.ErrorIs(t, w.Write("orphan"), ErrUnbalanced)

	// Values that produce no text are fine at the root.
	assert.NoError(t, w.Write(nil))
}

func TestArrayWriter_UnsupportedOperations(t *testing.T) {
	ops := map[string]func(w *ArrayWriter) error{
		"StartElementNS":             func(w *ArrayWriter) error { return w.StartElementNS("d", "prop", "DAV:") },
		"StartElementNS empty":       func(w *ArrayWriter) error { return w.StartElementNS("", "", "") },
		"WriteAttribute":             func(w *ArrayWriter) error { return w.WriteAttribute("lang", "en") },
		"WriteComment":               func(w *ArrayWriter) error { return w.WriteComment("note") },
		"WriteProcessingInstruction": func(w *ArrayWriter) error { return w.WriteProcessingInstruction("xml-stylesheet", "") },
		"WriteRaw":                   func(w *ArrayWriter) error { return w.WriteRaw("<x/>") },
		"WriteRaw empty":             func(w *ArrayWriter) error { return w.WriteRaw("") },
		"WriteCData":                 func(w *ArrayWriter) error { return w.WriteCData("data") },
		"WriteDTD":                   func(w *ArrayWriter) error { return w.WriteDTD("html", "", "", "") },
		"OpenURI":                    func(w *ArrayWriter) error { return w.OpenURI("file:///tmp/out.xml") },
		"SetOutput":                  func(w *ArrayWriter) error { return w.SetOutput(&bytes.Buffer{}) },
		"SetOutput nil":              func(w *ArrayWriter) error { return w.SetOutput(nil) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			outside := NewArrayWriter(nil)
			assert.ErrorIs(t, op(outside), ErrUnsupportedOperation)

			inside := NewArrayWriter(nil)
			require.NoError(t, inside.StartElement("root"))
			assert.ErrorIs(t, op(inside), ErrUnsupportedOperation)
		})
	}
}

func TestArrayWriter_RendererErrorPropagates(t *testing.T) {
	w := NewArrayWriter(nil)
	require.NoError(t, w.StartElement("root"))

	err := w.Write(Properties{{Name: "{DAV:}ok", Value: "x"}, {Name: "{DAV:}bad", Value: opaque{}}})
	require.ErrorIs(t, err, ErrUnsupportedPropertyType)
}
