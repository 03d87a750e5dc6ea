package dav

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/marmos91/dittodav/pkg/davxml"
)

// maxPropfindBody bounds the size of a PROPFIND request body.
const maxPropfindBody = 1 << 20

// ErrBadRequest is returned for malformed PROPFIND requests.
var ErrBadRequest = errors.New("bad propfind request")

type propfindBody struct {
	XMLName  xml.Name  `xml:"DAV: propfind"`
	AllProp  *struct{} `xml:"DAV: allprop"`
	PropName *struct{} `xml:"DAV: propname"`
	Prop     *struct {
		Names []struct {
			XMLName xml.Name
		} `xml:",any"`
	} `xml:"DAV: prop"`
}

// ParsePropfind reads the Depth header and the request body of a PROPFIND.
//
// A missing body means allprop. A missing Depth header or "infinity" is
// treated as depth 1; this server never walks more than one level.
func ParsePropfind(r *http.Request) (*PropfindRequest, error) {
	depth, err := parseDepth(r.Header.Get("Depth"))
	if err != nil {
		return nil, err
	}

	req := &PropfindRequest{
		Path:  cleanPath(r.URL.Path),
		Depth: depth,
		Mode:  PropfindAllProp,
	}

	if r.Body == nil {
		return req, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPropfindBody+1))
	if err != nil {
		return nil, fmt.Errorf("read propfind body: %w", err)
	}
	if len(data) > maxPropfindBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrBadRequest, maxPropfindBody)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, nil
	}

	var body propfindBody
	if err := xml.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	switch {
	case body.PropName != nil:
		req.Mode = PropfindPropName
	case body.Prop != nil:
		req.Mode = PropfindProp
		for _, n := range body.Prop.Names {
			req.Props = append(req.Props, davxml.JoinName(n.XMLName.Space, n.XMLName.Local))
		}
		if len(req.Props) == 0 {
			return nil, fmt.Errorf("%w: empty prop element", ErrBadRequest)
		}
	}
	return req, nil
}

func parseDepth(h string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(h)) {
	case "0":
		return 0, nil
	case "1", "", "infinity":
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: invalid Depth %q", ErrBadRequest, h)
	}
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
