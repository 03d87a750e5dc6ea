package paginate

import (
	"bytes"
	"fmt"
	"slices"

	xdr "github.com/rasky/go-xdr/xdr2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
)

// Codec encodes serialized result items for stores that persist bytes.
//
// Codecs only accept plain values: nil, string, bool, int, int64, uint64,
// float64 and Properties. Every scalar decodes to the Go type it was encoded
// from.
type Codec interface {
	Name() string
	Encode(it dav.ResultItem) ([]byte, error)
	Decode(data []byte) (dav.ResultItem, error)
}

// Codec names accepted by NewCodec.
const (
	CodecXDR     = "xdr"
	CodecMsgpack = "msgpack"
)

// NewCodec returns the codec registered under name. An empty name selects
// XDR.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecXDR:
		return XDRCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Value kinds on the wire.
const (
	kindNil uint32 = iota
	kindString
	kindBool
	kindInt
	kindInt64
	kindUint64
	kindFloat64
	kindNodes
)

// wireItem mirrors dav.ResultItem with only fixed-width fields, so it can be
// described in XDR. Groups are sorted by status.
type wireItem struct {
	Href   string      `msgpack:"h"`
	Groups []wireGroup `msgpack:"g"`
}

type wireGroup struct {
	Status int32      `msgpack:"s"`
	Props  []wireNode `msgpack:"p"`
}

type wireNode struct {
	Name  string    `msgpack:"n"`
	Value wireValue `msgpack:"v"`
}

type wireValue struct {
	Kind     uint32     `msgpack:"k"`
	Str      string     `msgpack:"s,omitempty"`
	Bool     bool       `msgpack:"b,omitempty"`
	Int      int64      `msgpack:"i,omitempty"`
	Uint     uint64     `msgpack:"u,omitempty"`
	Float    float64    `msgpack:"f,omitempty"`
	Children []wireNode `msgpack:"c,omitempty"`
}

func toWire(it dav.ResultItem) (wireItem, error) {
	w := wireItem{Href: it.Href}

	codes := make([]int, 0, len(it.Groups))
	for code := range it.Groups {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		nodes, err := toWireNodes(it.Groups[code])
		if err != nil {
			return wireItem{}, fmt.Errorf("%s group %d: %w", it.Href, code, err)
		}
		w.Groups = append(w.Groups, wireGroup{Status: int32(code), Props: nodes})
	}
	return w, nil
}

func toWireNodes(props davxml.Properties) ([]wireNode, error) {
	nodes := make([]wireNode, 0, len(props))
	for _, n := range props {
		v, err := toWireValue(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		nodes = append(nodes, wireNode{Name: n.Name, Value: v})
	}
	return nodes, nil
}

func toWireValue(v any) (wireValue, error) {
	switch t := v.(type) {
	case nil:
		return wireValue{Kind: kindNil}, nil
	case string:
		return wireValue{Kind: kindString, Str: t}, nil
	case bool:
		return wireValue{Kind: kindBool, Bool: t}, nil
	case int:
		return wireValue{Kind: kindInt, Int: int64(t)}, nil
	case int64:
		return wireValue{Kind: kindInt64, Int: t}, nil
	case uint64:
		return wireValue{Kind: kindUint64, Uint: t}, nil
	case float64:
		return wireValue{Kind: kindFloat64, Float: t}, nil
	case davxml.Properties:
		children, err := toWireNodes(t)
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{Kind: kindNodes, Children: children}, nil
	case []davxml.Node:
		return toWireValue(davxml.Properties(t))
	default:
		return wireValue{}, fmt.Errorf("%w: %T is not a plain value", davxml.ErrUnsupportedPropertyType, v)
	}
}

func fromWire(w wireItem) (dav.ResultItem, error) {
	it := dav.ResultItem{Href: w.Href}
	if len(w.Groups) == 0 {
		return it, nil
	}

	it.Groups = make(map[int]davxml.Properties, len(w.Groups))
	for _, g := range w.Groups {
		props, err := fromWireNodes(g.Props)
		if err != nil {
			return dav.ResultItem{}, err
		}
		it.Groups[int(g.Status)] = props
	}
	return it, nil
}

func fromWireNodes(nodes []wireNode) (davxml.Properties, error) {
	props := make(davxml.Properties, 0, len(nodes))
	for _, n := range nodes {
		v, err := fromWireValue(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		props = append(props, davxml.Node{Name: n.Name, Value: v})
	}
	return props, nil
}

func fromWireValue(w wireValue) (any, error) {
	switch w.Kind {
	case kindNil:
		return nil, nil
	case kindString:
		return w.Str, nil
	case kindBool:
		return w.Bool, nil
	case kindInt:
		return int(w.Int), nil
	case kindInt64:
		return w.Int, nil
	case kindUint64:
		return w.Uint, nil
	case kindFloat64:
		return w.Float, nil
	case kindNodes:
		return fromWireNodes(w.Children)
	default:
		return nil, fmt.Errorf("unknown value kind %d", w.Kind)
	}
}

// XDRCodec encodes items as XDR (RFC 4506).
type XDRCodec struct{}

func (XDRCodec) Name() string { return CodecXDR }

func (XDRCodec) Encode(it dav.ResultItem) ([]byte, error) {
	w, err := toWire(it)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &w); err != nil {
		return nil, fmt.Errorf("xdr encode %s: %w", it.Href, err)
	}
	return buf.Bytes(), nil
}

func (XDRCodec) Decode(data []byte) (dav.ResultItem, error) {
	var w wireItem
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &w); err != nil {
		return dav.ResultItem{}, fmt.Errorf("xdr decode: %w", err)
	}
	return fromWire(w)
}

// MsgpackCodec encodes items as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Encode(it dav.ResultItem) ([]byte, error) {
	w, err := toWire(it)
	if err != nil {
		return nil, err
	}

	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode %s: %w", it.Href, err)
	}
	return data, nil
}

func (MsgpackCodec) Decode(data []byte) (dav.ResultItem, error) {
	var w wireItem
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return dav.ResultItem{}, fmt.Errorf("msgpack decode: %w", err)
	}
	return fromWire(w)
}
