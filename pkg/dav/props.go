package dav

import (
	"net/http"
	"time"

	"github.com/marmos91/dittodav/pkg/davxml"
)

// Core property names.
const (
	PropDisplayName      = "{DAV:}displayname"
	PropGetContentLength = "{DAV:}getcontentlength"
	PropGetLastModified  = "{DAV:}getlastmodified"
	PropResourceType     = "{DAV:}resourcetype"
	PropGetETag          = "{DAV:}getetag"
	PropGetContentType   = "{DAV:}getcontenttype"
)

// ResourceType is the value of {DAV:}resourcetype.
type ResourceType struct {
	Collection bool
}

// RenderDAV writes <d:collection/> for collections and nothing otherwise.
func (r ResourceType) RenderDAV(w davxml.Writer) error {
	if !r.Collection {
		return nil
	}
	if err := w.StartElement("{DAV:}collection"); err != nil {
		return err
	}
	return w.EndElement()
}

func init() {
	davxml.DefaultRegistry.Register(time.Time{}, renderHTTPDate)
}

// renderHTTPDate renders timestamps in the RFC 1123 form getlastmodified uses.
func renderHTTPDate(w davxml.Writer, v any) error {
	return w.Write(v.(time.Time).UTC().Format(http.TimeFormat))
}
