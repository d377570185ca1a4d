package imagewrap

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xbmp "golang.org/x/image/bmp"

	"github.com/jpfielding/imagewrap.go/pkg/codec/icns"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, FormatPNG},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, FormatJPEG},
		{"bmp", []byte("BM\x00\x00"), FormatBMP},
		{"ico", []byte{0, 0, 1, 0, 1, 0}, FormatICO},
		{"exr", []byte{0x76, 0x2f, 0x31, 0x01, 2, 0}, FormatEXR},
		{"icns", []byte("icns\x00\x00\x00\x08"), FormatICNS},
		{"zeros", make([]byte, 16), FormatUnknown},
		{"empty", nil, FormatUnknown},
		{"short png", []byte{0x89, 'P', 'N'}, FormatUnknown},
		{"cursor", []byte{0, 0, 2, 0}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}

func TestFormatLookups(t *testing.T) {
	f, err := FormatByName("JPG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	f, err = FormatByName("jpeg-gray")
	require.NoError(t, err)
	assert.Equal(t, FormatGrayscaleJPEG, f)
	_, err = FormatByName("tiff")
	assert.True(t, errors.Is(err, pixel.ErrPrecondition))

	assert.Equal(t, FormatEXR, FormatForExtension("/tmp/render.EXR"))
	assert.Equal(t, FormatJPEG, FormatForExtension("a.jpeg"))
	assert.Equal(t, FormatUnknown, FormatForExtension("noext"))

	assert.Equal(t, ".jpg", FormatGrayscaleJPEG.Extension())
	assert.Equal(t, ".icns", FormatICNS.Extension())
	assert.Equal(t, "Format(99)", Format(99).String())
}

func TestNew(t *testing.T) {
	for f, name := range map[Format]string{
		FormatPNG:           "png",
		FormatJPEG:          "jpeg",
		FormatGrayscaleJPEG: "jpeg-gray",
		FormatBMP:           "bmp",
		FormatICO:           "ico",
		FormatEXR:           "exr",
		FormatICNS:          "icns",
	} {
		w, err := New(f)
		require.NoError(t, err, f.String())
		assert.Equal(t, f, w.Format())
		assert.Equal(t, name, w.CodecName())
	}

	a, err := New(FormatPNG)
	require.NoError(t, err)
	b, err := New(FormatPNG)
	require.NoError(t, err)
	assert.NotSame(t, a, b, "every call returns a fresh wrapper")

	_, err = New(FormatUnknown)
	assert.True(t, errors.Is(err, pixel.ErrUnsupported))
}

func TestDecode_EndToEnd(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 9)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, xbmp.Encode(&buf, img))

	got, f, err := Decode(buf.Bytes(), pixel.LayoutRGBA, 8)
	require.NoError(t, err)
	assert.Equal(t, FormatBMP, f)
	assert.Equal(t, img.Pix, got.Pix)

	// transcode to PNG and back through wrappers
	w, err := New(FormatPNG)
	require.NoError(t, err)
	require.NoError(t, w.SetRaw(got.Pix, 3, 2, pixel.LayoutRGBA, 8))
	pngData, err := w.Compressed(0)
	require.NoError(t, err)

	back, f, err := Decode(pngData, pixel.LayoutRGBA, 8)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)
	assert.Equal(t, img.Pix, back.Pix)

	_, f, err = Decode(make([]byte, 8), pixel.LayoutRGBA, 8)
	assert.Equal(t, FormatUnknown, f)
	assert.Error(t, err)
}

func TestWrapper_EncodeUnsupportedFormats(t *testing.T) {
	for _, f := range []Format{FormatBMP, FormatICO, FormatICNS} {
		w, err := New(f)
		require.NoError(t, err)
		require.NoError(t, w.SetRaw(make([]byte, 4), 1, 1, pixel.LayoutBGRA, 8))
		_, err = w.Compressed(0)
		assert.True(t, errors.Is(err, pixel.ErrUnsupported), f.String())
		assert.NotEmpty(t, w.LastError())
	}
}

func TestWrapper_ICNSPlatformGate(t *testing.T) {
	if icns.Supported {
		t.Skip("native decoder present")
	}
	w, err := New(FormatICNS)
	require.NoError(t, err)
	err = w.SetCompressed([]byte("icns\x00\x00\x00\x08"))
	assert.True(t, errors.Is(err, icns.ErrUnsupportedPlatform))
}
