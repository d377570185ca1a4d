package pixel

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Channels(t *testing.T) {
	tests := []struct {
		layout Layout
		want   int
	}{
		{LayoutRGBA, 4},
		{LayoutBGRA, 4},
		{LayoutGray, 1},
		{LayoutInvalid, 0},
	}
	for _, tt := range tests {
		t.Run(tt.layout.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.Channels())
		})
	}
}

func TestHeader_Size(t *testing.T) {
	h := Header{Width: 3, Height: 2, Layout: LayoutRGBA, BitDepth: 16}
	assert.Equal(t, 8, h.BytesPerPixel())
	assert.Equal(t, 24, h.Stride())
	assert.Equal(t, 48, h.Size())

	g := Header{Width: 5, Height: 5, Layout: LayoutGray, BitDepth: 32}
	assert.Equal(t, 100, g.Size())
}

func TestFromBytes_LengthInvariant(t *testing.T) {
	h := Header{Width: 2, Height: 2, Layout: LayoutRGBA, BitDepth: 8}

	b, err := FromBytes(make([]byte, 16), h)
	require.NoError(t, err)
	assert.Len(t, b.Pix, 16)

	_, err = FromBytes(make([]byte, 15), h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))

	_, err = FromBytes(make([]byte, 16), Header{Width: 0, Height: 2, Layout: LayoutRGBA, BitDepth: 8})
	assert.Error(t, err)

	_, err = FromBytes(make([]byte, 16), Header{Width: 2, Height: 2, Layout: LayoutRGBA, BitDepth: 12})
	assert.Error(t, err)
}

func TestFromBytes_Copies(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	b, err := FromBytes(src, Header{Width: 1, Height: 1, Layout: LayoutRGBA, BitDepth: 8})
	require.NoError(t, err)
	src[0] = 99
	assert.Equal(t, byte(1), b.Pix[0])
}

func TestSwapRedBlue(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	SwapRedBlue(pix, 8)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, pix)

	pix16 := []byte{1, 1, 2, 2, 3, 3, 4, 4}
	SwapRedBlue(pix16, 16)
	assert.Equal(t, []byte{3, 3, 2, 2, 1, 1, 4, 4}, pix16)
}

func TestConvert(t *testing.T) {
	rgba := &Buffer{
		Header: Header{Width: 2, Height: 1, Layout: LayoutRGBA, BitDepth: 8},
		Pix:    []byte{10, 20, 30, 255, 200, 100, 50, 128},
	}

	t.Run("swizzle", func(t *testing.T) {
		out, err := Convert(rgba, LayoutBGRA, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte{30, 20, 10, 255, 50, 100, 200, 128}, out.Pix)
		assert.Equal(t, []byte{10, 20, 30, 255, 200, 100, 50, 128}, rgba.Pix, "source untouched")
	})

	t.Run("widen", func(t *testing.T) {
		out, err := Convert(rgba, LayoutRGBA, 16)
		require.NoError(t, err)
		require.Len(t, out.Pix, 16)
		assert.Equal(t, uint16(10*257), binary.LittleEndian.Uint16(out.Pix[0:]))
		assert.Equal(t, uint16(128*257), binary.LittleEndian.Uint16(out.Pix[14:]))

		back, err := Convert(out, LayoutRGBA, 8)
		require.NoError(t, err)
		assert.Equal(t, rgba.Pix, back.Pix)
	})

	t.Run("gray to colour", func(t *testing.T) {
		g := &Buffer{Header: Header{Width: 2, Height: 1, Layout: LayoutGray, BitDepth: 8}, Pix: []byte{7, 250}}
		out, err := Convert(g, LayoutBGRA, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte{7, 7, 7, 255, 250, 250, 250, 255}, out.Pix)

		again, err := Convert(out, LayoutGray, 8)
		require.NoError(t, err)
		assert.Equal(t, g.Pix, again.Pix)
	})

	t.Run("float refuses depth change", func(t *testing.T) {
		f := &Buffer{Header: Header{Width: 1, Height: 1, Layout: LayoutRGBA, BitDepth: 32}, Pix: make([]byte, 16)}
		_, err := Convert(f, LayoutRGBA, 8)
		assert.True(t, errors.Is(err, ErrUnsupported))

		sw, err := Convert(f, LayoutBGRA, 32)
		require.NoError(t, err)
		assert.Equal(t, LayoutBGRA, sw.Layout)
	})
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("BGRA")
	require.NoError(t, err)
	assert.Equal(t, LayoutBGRA, l)

	_, err = ParseLayout("CMYK")
	assert.Error(t, err)
}
