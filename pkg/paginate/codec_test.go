package paginate_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/davxml"
	"github.com/marmos91/dittodav/pkg/paginate"
	storetesting "github.com/marmos91/dittodav/pkg/paginate/testing"
)

func codecs() []paginate.Codec {
	return []paginate.Codec{paginate.XDRCodec{}, paginate.MsgpackCodec{}}
}

func TestCodec_PreservesScalarTypes(t *testing.T) {
	item := dav.ResultItem{
		Href: "/edge",
		Groups: map[int]davxml.Properties{
			dav.StatusOK: {
				{Name: "{urn:x}int", Value: math.MinInt32},
				{Name: "{urn:x}int64", Value: int64(math.MaxInt64)},
				{Name: "{urn:x}uint64", Value: uint64(math.MaxUint64)},
				{Name: "{urn:x}float", Value: -0.25},
				{Name: "{urn:x}false", Value: false},
				{Name: "{urn:x}empty", Value: ""},
				{Name: "{urn:x}nil", Value: nil},
				{Name: "{urn:x}deep", Value: davxml.Properties{
					{Name: "{urn:x}a", Value: davxml.Properties{{Name: "{urn:x}b", Value: "leaf"}}},
				}},
			},
		},
	}

	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(item)
			require.NoError(t, err)

			got, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, item, got)
		})
	}
}

func TestCodec_RoundTripsStoreItems(t *testing.T) {
	items := storetesting.MakeItems("codec", 3)

	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			for _, it := range items {
				data, err := codec.Encode(it)
				require.NoError(t, err)

				got, err := codec.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, it, got)
			}
		})
	}
}

func TestCodec_ItemWithoutGroups(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(dav.ResultItem{Href: "/bare"})
			require.NoError(t, err)

			got, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, dav.ResultItem{Href: "/bare"}, got)
		})
	}
}

func TestCodec_RejectsStructuredValues(t *testing.T) {
	item := dav.ResultItem{
		Href:   "/raw",
		Groups: map[int]davxml.Properties{dav.StatusOK: {{Name: dav.PropResourceType, Value: dav.ResourceType{}}}},
	}

	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			_, err := codec.Encode(item)
			assert.ErrorIs(t, err, davxml.ErrUnsupportedPropertyType)
		})
	}
}

func TestCodec_DecodeGarbage(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			_, err := codec.Decode([]byte{0xff})
			assert.Error(t, err)
		})
	}
}

func TestNewCodec(t *testing.T) {
	c, err := paginate.NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, paginate.CodecXDR, c.Name())

	c, err = paginate.NewCodec(paginate.CodecMsgpack)
	require.NoError(t, err)
	assert.Equal(t, paginate.CodecMsgpack, c.Name())

	_, err = paginate.NewCodec("json")
	assert.Error(t, err)
}
