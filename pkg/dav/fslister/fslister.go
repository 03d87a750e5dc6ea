// Package fslister lists a filesystem tree for PROPFIND requests.
package fslister

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
)

// allProps is the property set returned for allprop and propname requests.
var allProps = []string{
	dav.PropDisplayName,
	dav.PropResourceType,
	dav.PropGetContentLength,
	dav.PropGetLastModified,
	dav.PropGetETag,
	dav.PropGetContentType,
}

// Lister serves listings from an afero filesystem.
type Lister struct {
	fs afero.Fs
}

// New returns a Lister over fsys.
func New(fsys afero.Fs) *Lister {
	return &Lister{fs: fsys}
}

// NewOS returns a Lister rooted at dir on the local filesystem.
func NewOS(dir string) *Lister {
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// List returns the requested resource followed, for depth 1 collections, by
// its members in name order. Members are stat'ed as they are pulled.
func (l *Lister) List(ctx context.Context, req *dav.PropfindRequest) (iter.Seq2[dav.ResultItem, error], error) {
	info, err := l.fs.Stat(req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", req.Path, dav.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", req.Path, err)
	}

	var names []string
	if info.IsDir() && req.Depth > 0 {
		names, err = l.readNames(req.Path)
		if err != nil {
			return nil, err
		}
	}

	return func(yield func(dav.ResultItem, error) bool) {
		self, err := l.item(req, req.Path, info)
		if !yield(self, err) || err != nil {
			return
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(dav.ResultItem{}, err)
				return
			}

			p := path.Join(req.Path, name)
			fi, err := l.fs.Stat(p)
			if err != nil {
				// Removed between readdir and stat.
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				yield(dav.ResultItem{}, fmt.Errorf("stat %s: %w", p, err))
				return
			}

			it, err := l.item(req, p, fi)
			if !yield(it, err) || err != nil {
				return
			}
		}
	}, nil
}

func (l *Lister) readNames(dir string) ([]string, error) {
	f, err := l.fs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", dir, err)
	}
	slices.Sort(names)
	return names, nil
}

func (l *Lister) item(req *dav.PropfindRequest, p string, fi os.FileInfo) (dav.ResultItem, error) {
	it := dav.ResultItem{
		Href:   href(p, fi.IsDir()),
		Groups: map[int]davxml.Properties{},
	}

	wanted := allProps
	if req.Mode == dav.PropfindProp {
		wanted = req.Props
	}

	var found, missing davxml.Properties
	for _, name := range wanted {
		if req.Mode == dav.PropfindPropName {
			if _, ok, _ := l.prop(name, p, fi, false); ok {
				found = append(found, davxml.Node{Name: name})
			}
			continue
		}

		v, ok, err := l.prop(name, p, fi, true)
		if err != nil {
			return dav.ResultItem{}, err
		}
		if ok {
			found = append(found, davxml.Node{Name: name, Value: v})
		} else if req.Mode == dav.PropfindProp {
			missing = append(missing, davxml.Node{Name: name})
		}
	}

	if len(found) > 0 {
		it.Groups[dav.StatusOK] = found
	}
	if len(missing) > 0 {
		it.Groups[dav.StatusNotFound] = missing
	}
	return it, nil
}

// prop resolves one property. With load=false it only reports whether the
// property exists.
func (l *Lister) prop(name, p string, fi os.FileInfo, load bool) (any, bool, error) {
	switch name {
	case dav.PropDisplayName:
		return displayName(p), true, nil
	case dav.PropResourceType:
		return dav.ResourceType{Collection: fi.IsDir()}, true, nil
	case dav.PropGetLastModified:
		return fi.ModTime(), true, nil
	case dav.PropGetETag:
		return fmt.Sprintf(`"%x-%x"`, fi.ModTime().UnixNano(), fi.Size()), true, nil
	case dav.PropGetContentLength:
		if fi.IsDir() {
			return nil, false, nil
		}
		return fi.Size(), true, nil
	case dav.PropGetContentType:
		if fi.IsDir() {
			return nil, false, nil
		}
		if !load {
			return nil, true, nil
		}
		ct, err := l.contentType(p)
		if err != nil {
			return nil, false, err
		}
		return ct, true, nil
	default:
		return nil, false, nil
	}
}

func (l *Lister) contentType(p string) (string, error) {
	f, err := l.fs.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("detect content type of %s: %w", p, err)
	}
	return mt.String(), nil
}

func displayName(p string) string {
	if p == "/" {
		return "/"
	}
	return path.Base(p)
}

func href(p string, dir bool) string {
	h := (&url.URL{Path: p}).EscapedPath()
	if dir && !strings.HasSuffix(h, "/") {
		h += "/"
	}
	return h
}
