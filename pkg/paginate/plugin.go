package paginate

import (
	"iter"
	"strconv"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
)

// DefaultPageSize is the number of items returned inline with the first page.
const DefaultPageSize = 100

// PluginConfig configures a Plugin.
type PluginConfig struct {
	// PageSize is the number of items on the first page. Zero means
	// DefaultPageSize.
	PageSize int

	// Registry renders structured property values before they are stored.
	// It must be the registry the dav.Server renders responses with. Nil
	// means davxml.DefaultRegistry.
	Registry *davxml.Registry

	Metrics Metrics
}

// Plugin paginates PROPFIND listings for clients sending "Paginate: true".
//
// The first request runs the listing, answers with its first PageSize items
// and stores the whole result set. The response carries the token and total
// the client needs to ask for further windows. A request carrying a token is
// answered from the store before the listing would run; when the store has
// nothing for it the request is handled as if no token had been sent.
type Plugin struct {
	store    Store
	pageSize int
	registry *davxml.Registry
	metrics  Metrics
}

// NewPlugin creates a Plugin storing result sets in store.
func NewPlugin(store Store, cfg PluginConfig) *Plugin {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Registry == nil {
		cfg.Registry = davxml.DefaultRegistry
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewNoopMetrics()
	}
	return &Plugin{
		store:    store,
		pageSize: cfg.PageSize,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
	}
}

func (p *Plugin) Name() string { return "paginate" }

// BeforeMethod serves a window of a stored result set.
func (p *Plugin) BeforeMethod(rc *dav.RequestContext) (bool, error) {
	if rc.Request.Method != dav.MethodPropfind {
		return false, nil
	}
	req := ParseRequest(rc.Request.Header, p.pageSize)
	if !req.Paged() {
		return false, nil
	}

	start := time.Now()
	items, err := p.store.Get(rc.Request.Context(), rc.URL(), req.Token, req.Offset, req.Count)
	p.metrics.ObserveGet(len(items), time.Since(start), err)
	if err != nil {
		rc.Errors = append(rc.Errors, err)
		return false, nil
	}
	if len(items) == 0 {
		logger.Debug("paginate: no stored window for %s offset=%d count=%d", rc.URL(), req.Offset, req.Count)
		return false, nil
	}

	rc.Header().Set(HeaderPaginate, "true")
	if err := rc.WriteMultistatus(dav.Items(items...)); err != nil {
		rc.Errors = append(rc.Errors, err)
	}
	p.metrics.RecordPage(PageCached)
	return true, nil
}

// PropfindResults stores the full listing and narrows the response to its
// first page.
func (p *Plugin) PropfindResults(rc *dav.RequestContext, results iter.Seq2[dav.ResultItem, error]) (iter.Seq2[dav.ResultItem, error], error) {
	if !ParseRequest(rc.Request.Header, p.pageSize).OptIn {
		return results, nil
	}

	buf := NewBuffer(results, p.pageSize)
	rc.AfterResponse(buf.Stop)

	start := time.Now()
	token, total, err := p.store.Store(rc.Request.Context(), rc.URL(), SerializeResults(buf.All(), p.registry))
	p.metrics.ObserveStore(total, time.Since(start), err)
	if err != nil {
		logger.Warn("paginate: storing listing of %s failed, serving first page only: %v", rc.URL(), err)
		rc.Errors = append(rc.Errors, err)
		p.metrics.RecordPage(PageDegraded)
		return buf.First(), nil
	}

	h := rc.Header()
	h.Set(HeaderPaginate, "true")
	h.Set(HeaderToken, token)
	h.Set(HeaderTotal, strconv.Itoa(total))
	p.metrics.RecordPage(PageFirst)
	return buf.First(), nil
}
