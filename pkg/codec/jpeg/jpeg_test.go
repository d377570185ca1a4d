package jpeg

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// smoothBuffer is a low-frequency gradient that survives lossy coding well.
func smoothBuffer(t *testing.T, w, h int, l pixel.Layout) *pixel.Buffer {
	t.Helper()
	buf, err := pixel.New(pixel.Header{Width: w, Height: h, Layout: l, BitDepth: 8})
	require.NoError(t, err)
	ch := l.Channels()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * ch
			if ch == 1 {
				buf.Pix[i] = byte(64 + x + y)
				continue
			}
			buf.Pix[i+0] = byte(40 + 2*x)
			buf.Pix[i+1] = byte(90 + y)
			buf.Pix[i+2] = byte(160 - x)
			buf.Pix[i+3] = 0xff
		}
	}
	return buf
}

func maxDiff(t *testing.T, a, b []byte) int {
	t.Helper()
	require.Equal(t, len(a), len(b))
	m := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		if d > m {
			m = d
		}
	}
	return m
}

func TestClampQuality(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 85},
		{-5, 1},
		{1, 1},
		{50, 50},
		{100, 100},
		{500, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampQuality(tt.in), "quality %d", tt.in)
	}
}

func TestEncode_QualityClamping(t *testing.T) {
	c := NewCodec()
	src := smoothBuffer(t, 32, 16, pixel.LayoutRGBA)

	q0, err := c.Encode(src, 0)
	require.NoError(t, err)
	q85, err := c.Encode(src, 85)
	require.NoError(t, err)
	assert.Equal(t, q85, q0)

	q500, err := c.Encode(src, 500)
	require.NoError(t, err)
	q100, err := c.Encode(src, 100)
	require.NoError(t, err)
	assert.Equal(t, q100, q500)

	assert.NotEqual(t, q85, q100)
}

func TestRoundTrip_RGBA(t *testing.T) {
	c := NewCodec()
	src := smoothBuffer(t, 24, 24, pixel.LayoutRGBA)

	data, err := c.Encode(src, 100)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, SOI))
	assert.Equal(t, len(data), cap(data), "output trimmed to written size")

	h, err := c.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, pixel.Header{Width: 24, Height: 24, Layout: pixel.LayoutRGBA, BitDepth: 8}, h)

	got, err := c.Decode(data, pixel.LayoutRGBA, 8)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(t, src.Pix, got.Pix), 12)
}

func TestEncode_BGRAMatchesRGBA(t *testing.T) {
	c := NewCodec()
	rgba := smoothBuffer(t, 16, 16, pixel.LayoutRGBA)
	bgra, err := pixel.Convert(rgba, pixel.LayoutBGRA, 8)
	require.NoError(t, err)
	before := bytes.Clone(bgra.Pix)

	a, err := c.Encode(rgba, 90)
	require.NoError(t, err)
	b, err := c.Encode(bgra, 90)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, before, bgra.Pix, "source buffer left in BGRA order")

	got, err := c.Decode(b, pixel.LayoutBGRA, 8)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(t, bgra.Pix, got.Pix), 12)
}

func TestRoundTrip_Gray(t *testing.T) {
	c := NewCodec()
	src := smoothBuffer(t, 16, 8, pixel.LayoutGray)
	data, err := c.Encode(src, 95)
	require.NoError(t, err)

	h, err := c.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, pixel.LayoutGray, h.Layout)

	got, err := c.Decode(data, pixel.LayoutGray, 8)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(t, src.Pix, got.Pix), 4)
}

func TestGrayscaleCodec(t *testing.T) {
	gc := NewGrayscaleCodec()
	assert.Equal(t, "jpeg-gray", gc.Name())

	data, err := NewCodec().Encode(smoothBuffer(t, 8, 8, pixel.LayoutRGBA), 90)
	require.NoError(t, err)

	h, err := gc.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, pixel.LayoutGray, h.Layout)

	got, err := gc.Decode(data, pixel.LayoutGray, 8)
	require.NoError(t, err)
	assert.Len(t, got.Pix, 64)

	enc, err := gc.Encode(smoothBuffer(t, 8, 8, pixel.LayoutBGRA), 90)
	require.NoError(t, err)
	h, err = NewCodec().ParseHeader(enc)
	require.NoError(t, err)
	assert.Equal(t, pixel.LayoutGray, h.Layout)
}

func TestErrors(t *testing.T) {
	c := NewCodec()
	_, err := c.ParseHeader([]byte{0x89, 'P', 'N', 'G'})
	assert.True(t, errors.Is(err, pixel.ErrMalformed))

	_, err = c.Decode(append(bytes.Clone(SOI), 0xe0, 0, 2), pixel.LayoutRGBA, 8)
	assert.Error(t, err)

	_, err = c.Encode(&pixel.Buffer{Header: pixel.Header{Width: 1, Height: 1, Layout: pixel.LayoutRGBA, BitDepth: 16}, Pix: make([]byte, 8)}, 0)
	assert.True(t, errors.Is(err, pixel.ErrUnsupported))

	_, err = c.Encode(nil, 0)
	assert.True(t, errors.Is(err, pixel.ErrPrecondition))
}

func TestCallsGoThroughLibraryLock(t *testing.T) {
	c := NewCodec()
	before := Lib.Calls()
	data, err := c.Encode(smoothBuffer(t, 8, 8, pixel.LayoutRGBA), 0)
	require.NoError(t, err)
	_, err = c.Decode(data, pixel.LayoutRGBA, 8)
	require.NoError(t, err)
	assert.Equal(t, before+2, Lib.Calls())
}
