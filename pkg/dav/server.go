package dav

import (
	"errors"
	"fmt"
	"iter"
	"net/http"
	"slices"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/davxml"
)

// MethodPropfind is the WebDAV listing method.
const MethodPropfind = "PROPFIND"

// Plugin is anything registered with Server.Use. A plugin takes part in the
// request lifecycle by implementing one or more hook interfaces.
type Plugin interface {
	Name() string
}

// BeforeMethodHook runs before the request is dispatched to its method
// handler. Returning stop=true means the hook wrote the response itself and
// dispatch ends there.
type BeforeMethodHook interface {
	BeforeMethod(rc *RequestContext) (stop bool, err error)
}

// PropfindResultsHook runs after the Lister produced its result sequence and
// before it is rendered. The returned sequence replaces results.
type PropfindResultsHook interface {
	PropfindResults(rc *RequestContext, results iter.Seq2[ResultItem, error]) (iter.Seq2[ResultItem, error], error)
}

// RequestContext is the per-request state shared by the server and its
// plugins.
type RequestContext struct {
	Request  *http.Request
	Response http.ResponseWriter

	// Propfind is set once a PROPFIND request was parsed.
	Propfind *PropfindRequest

	// Errors collects failures that did not fail the request. The server
	// logs them when the request completes.
	Errors []error

	server  *Server
	cleanup []func()
}

// URL returns the cleaned request path, the identity of the listed resource.
func (rc *RequestContext) URL() string {
	return cleanPath(rc.Request.URL.Path)
}

// Header returns the response header map.
func (rc *RequestContext) Header() http.Header {
	return rc.Response.Header()
}

// AfterResponse registers fn to run once the response has been written.
func (rc *RequestContext) AfterResponse(fn func()) {
	rc.cleanup = append(rc.cleanup, fn)
}

// WriteMultistatus renders seq as the response of this request.
func (rc *RequestContext) WriteMultistatus(seq iter.Seq2[ResultItem, error]) error {
	return rc.server.WriteMultistatus(rc.Response, seq)
}

func (rc *RequestContext) finish() {
	for i := len(rc.cleanup) - 1; i >= 0; i-- {
		rc.cleanup[i]()
	}
	for _, err := range rc.Errors {
		logger.Warn("%s %s: %v", rc.Request.Method, rc.Request.URL.Path, err)
	}
}

// Server is an http.Handler answering PROPFIND and OPTIONS.
type Server struct {
	lister   Lister
	registry *davxml.Registry
	plugins  []Plugin
}

// NewServer creates a server listing through lister. A nil registry means
// davxml.DefaultRegistry.
func NewServer(lister Lister, reg *davxml.Registry) *Server {
	if reg == nil {
		reg = davxml.DefaultRegistry
	}
	return &Server{lister: lister, registry: reg}
}

// Use appends p to the plugin chain. Hooks run in registration order.
// Use is not safe to call while the server is handling requests.
func (s *Server) Use(p Plugin) {
	s.plugins = append(s.plugins, p)
	logger.Debug("dav: registered plugin %s", p.Name())
}

// Registry returns the registry used to render property values.
func (s *Server) Registry() *davxml.Registry {
	return s.registry
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := &RequestContext{Request: r, Response: w, server: s}
	defer rc.finish()

	for _, p := range s.plugins {
		hook, ok := p.(BeforeMethodHook)
		if !ok {
			continue
		}
		stop, err := hook.BeforeMethod(rc)
		if err != nil {
			s.fail(rc, fmt.Errorf("plugin %s: %w", p.Name(), err))
			return
		}
		if stop {
			return
		}
	}

	switch r.Method {
	case MethodPropfind:
		s.handlePropfind(rc)
	case http.MethodOptions:
		w.Header().Set("DAV", "1")
		w.Header().Set("Allow", "OPTIONS, PROPFIND")
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", "OPTIONS, PROPFIND")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePropfind(rc *RequestContext) {
	req, err := ParsePropfind(rc.Request)
	if err != nil {
		s.fail(rc, err)
		return
	}
	rc.Propfind = req

	results, err := s.lister.List(rc.Request.Context(), req)
	if err != nil {
		s.fail(rc, err)
		return
	}

	for _, p := range s.plugins {
		hook, ok := p.(PropfindResultsHook)
		if !ok {
			continue
		}
		results, err = hook.PropfindResults(rc, results)
		if err != nil {
			s.fail(rc, fmt.Errorf("plugin %s: %w", p.Name(), err))
			return
		}
	}

	if err := s.WriteMultistatus(rc.Response, results); err != nil {
		rc.Errors = append(rc.Errors, err)
	}
}

// fail writes an error status for failures that happen before the response
// has started.
func (s *Server) fail(rc *RequestContext, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	default:
		logger.Error("%s %s: %v", rc.Request.Method, rc.Request.URL.Path, err)
	}
	http.Error(rc.Response, http.StatusText(status), status)
}

// multistatusWriter writes the 207 status on first use, so an error pulling
// the first item can still produce a 500.
type multistatusWriter struct {
	w       http.ResponseWriter
	started bool
}

func (m *multistatusWriter) Write(p []byte) (int, error) {
	if !m.started {
		m.started = true
		m.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		m.w.WriteHeader(http.StatusMultiStatus)
	}
	return m.w.Write(p)
}

// WriteMultistatus renders seq as a 207 Multi-Status response, one
// <d:response> per item, status groups in ascending order.
//
// Items are rendered as they are pulled. A failure before any output reached
// the client becomes a 500; later failures truncate the document. Either way
// the error is returned to the caller.
func (s *Server) WriteMultistatus(w http.ResponseWriter, seq iter.Seq2[ResultItem, error]) error {
	mw := &multistatusWriter{w: w}
	xw := davxml.NewXMLWriter(mw, s.registry)

	head := func() error {
		if err := xw.WriteHeader(); err != nil {
			return err
		}
		return xw.StartElement("{DAV:}multistatus")
	}

	opened := false
	for item, err := range seq {
		if err != nil {
			if !mw.started {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
			return fmt.Errorf("multistatus: %w", err)
		}
		if !opened {
			if err := head(); err != nil {
				return err
			}
			opened = true
		}
		if err := writeResponse(xw, item); err != nil {
			if !mw.started {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			} else {
				_ = xw.Flush()
			}
			return fmt.Errorf("multistatus %s: %w", item.Href, err)
		}
	}

	if !opened {
		if err := head(); err != nil {
			return err
		}
	}
	if err := xw.EndElement(); err != nil {
		return err
	}
	return xw.Flush()
}

func writeResponse(xw *davxml.XMLWriter, item ResultItem) error {
	if err := xw.StartElement("{DAV:}response"); err != nil {
		return err
	}
	if err := writeText(xw, "{DAV:}href", item.Href); err != nil {
		return err
	}

	codes := make([]int, 0, len(item.Groups))
	for code := range item.Groups {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		if err := xw.StartElement("{DAV:}propstat"); err != nil {
			return err
		}
		if err := xw.StartElement("{DAV:}prop"); err != nil {
			return err
		}
		if err := xw.Write(item.Groups[code]); err != nil {
			return err
		}
		if err := xw.EndElement(); err != nil {
			return err
		}
		if err := writeText(xw, "{DAV:}status", fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))); err != nil {
			return err
		}
		if err := xw.EndElement(); err != nil {
			return err
		}
	}
	return xw.EndElement()
}

func writeText(xw *davxml.XMLWriter, name, text string) error {
	if err := xw.StartElement(name); err != nil {
		return err
	}
	if err := xw.Write(text); err != nil {
		return err
	}
	return xw.EndElement()
}
