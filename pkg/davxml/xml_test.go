package davxml

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestXMLWriter() (*XMLWriter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewXMLWriter(&buf, nil), &buf
}

func TestXMLWriter_DAVPrefix(t *testing.T) {
	w, buf := newTestXMLWriter()

	require.NoError(t, w.StartElement("{DAV:}multistatus"))
	require.NoError(t, w.StartElement("{DAV:}response"))
	require.NoError(t, w.StartElement("{DAV:}href"))
	require.NoError(t, w.Write("/files/a.txt"))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.EndElement())
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Equal(t,
		`<d:multistatus xmlns:d="DAV:"><d:response><d:href>/files/a.txt</d:href></d:response></d:multistatus>`,
		buf.String())
}

func TestXMLWriter_ForeignNamespace(t *testing.T) {
	w, buf := newTestXMLWriter()

	require.NoError(t, w.StartElement("{DAV:}prop"))
	require.NoError(t, w.StartElement("{http://example.com/ns}color"))
	require.NoError(t, w.Write("red"))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.StartElement("{http://example.com/ns}size"))
	require.NoError(t, w.Write(3))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	// Siblings each declare the namespace: declarations are element scoped.
	assert.Equal(t,
		`<d:prop xmlns:d="DAV:">`+
			`<ns1:color xmlns:ns1="http://example.com/ns">red</ns1:color>`+
			`<ns2:size xmlns:ns2="http://example.com/ns">3</ns2:size>`+
			`</d:prop>`,
		buf.String())
}

func TestXMLWriter_ScalarFormatting(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{"a<b&c", "a&lt;b&amp;c"},
		{true, "true"},
		{int64(-12), "-12"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{1.5, "1.5"},
	}

	for _, tt := range tests {
		w, buf := newTestXMLWriter()
		require.NoError(t, w.StartElement("v"))
		require.NoError(t, w.Write(tt.value))
		require.NoError(t, w.EndElement())
		require.NoError(t, w.Flush())
		assert.Equal(t, "<v>"+tt.want+"</v>", buf.String())
	}
}

func TestXMLWriter_RendersSameTreeAsArrayWriter(t *testing.T) {
	value := Properties{
		{Name: "{DAV:}resourcetype", Value: Properties{{Name: "{DAV:}collection"}}},
		{Name: "{DAV:}lockdiscovery", Value: hrefList{"/lock"}},
	}

	w, buf := newTestXMLWriter()
	require.NoError(t, w.StartElement("{DAV:}prop"))
	require.NoError(t, w.Write(value))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Equal(t,
		`<d:prop xmlns:d="DAV:">`+
			`<d:resourcetype><d:collection></d:collection></d:resourcetype>`+
			`<d:lockdiscovery><d:href>/lock</d:href></d:lockdiscovery>`+
			`</d:prop>`,
		buf.String())
}

func TestXMLWriter_Attributes(t *testing.T) {
	w, buf := newTestXMLWriter()

	require.NoError(t, w.StartElement("{DAV:}displayname"))
	require.NoError(t, w.WriteAttribute("lang", "en"))
	require.NoError(t, w.WriteAttribute("{http://example.com/ns}origin", "upload"))
	require.NoError(t, w.Write("Report"))
	assert.ErrorIs(t, w.WriteAttribute("late", "x"), ErrAttributeAfterContent)
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Equal(t,
		`<d:displayname xmlns:d="DAV:" lang="en" xmlns:ns1="http://example.com/ns" ns1:origin="upload">Report</d:displayname>`,
		buf.String())
}

func TestXMLWriter_ExplicitPrefix(t *testing.T) {
	w, buf := newTestXMLWriter()

	require.NoError(t, w.StartElementNS("oc", "size", "http://owncloud.org/ns"))
	require.NoError(t, w.Write(10))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Equal(t, `<oc:size xmlns:oc="http://owncloud.org/ns">10</oc:size>`, buf.String())
}

func TestXMLWriter_DocumentLevelTokens(t *testing.T) {
	w, buf := newTestXMLWriter()

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteDTD("note", "", "note.dtd", ""))
	require.NoError(t, w.WriteComment(" listing "))
	require.NoError(t, w.StartElement("note"))
	require.NoError(t, w.WriteCData("1 < 2 ]]> done"))
	require.NoError(t, w.WriteRaw("<b>raw</b>"))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<!DOCTYPE note SYSTEM "note.dtd">`+
			`<!-- listing -->`+
			`<note><![CDATA[1 < 2 ]]]]><![CDATA[> done]]><b>raw</b></note>`,
		buf.String())
}

func TestXMLWriter_Unbalanced(t *testing.T) {
	w, _ := newTestXMLWriter()
	assert.ErrorIs(t, w.EndElement(), ErrUnbalanced)
	assert.ErrorIs(t, w.Write("x"), ErrUnbalanced)
}

func TestXMLWriter_UnsupportedType(t *testing.T) {
	w, _ := newTestXMLWriter()
	require.NoError(t, w.StartElement("v"))
	assert.ErrorIs(t, w.Write(opaque{}), ErrUnsupportedPropertyType)
}

func TestXMLWriter_SetOutput(t *testing.T) {
	w, first := newTestXMLWriter()

	var second bytes.Buffer
	require.NoError(t, w.SetOutput(&second))
	require.NoError(t, w.StartElement("a"))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Flush())

	assert.Empty(t, first.String())
	assert.Equal(t, "<a></a>", second.String())
	assert.ErrorIs(t, w.SetOutput(&bytes.Buffer{}), ErrOutputStarted)
}

func TestXMLWriter_OpenURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")

	w := NewXMLWriter(&bytes.Buffer{}, nil)
	require.NoError(t, w.OpenURI("file://"+path))
	require.NoError(t, w.StartElement("{DAV:}href"))
	require.NoError(t, w.Write("/x"))
	require.NoError(t, w.EndElement())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `<d:href xmlns:d="DAV:">/x</d:href>`, string(data))

	assert.Error(t, NewXMLWriter(&bytes.Buffer{}, nil).OpenURI("https://example.com/out.xml"))
}
