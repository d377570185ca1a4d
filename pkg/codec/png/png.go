// Package png converts between PNG streams and pixel buffers on top of
// image/png.
//
// All calls into the PNG library go through Lib, which serializes them and
// turns a library abort into an error.
package png

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/jpfielding/imagewrap.go/pkg/codec/libcall"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// Signature is the 8-byte PNG file signature.
var Signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Lib guards every decode and encode in the process.
var Lib = libcall.New("png")

// HasSignature reports whether data starts with the PNG signature.
func HasSignature(data []byte) bool {
	return bytes.HasPrefix(data, Signature)
}

// ParseHeader reads IHDR and reports the source shape: Gray or RGBA, 8 or 16
// bits. Paletted and low-bit gray sources report 8 bits.
func ParseHeader(data []byte) (pixel.Header, error) {
	if !HasSignature(data) {
		return pixel.Header{}, fmt.Errorf("%w: png: missing signature", pixel.ErrMalformed)
	}
	var cfg image.Config
	err := Lib.Do(func() error {
		var err error
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
		return err
	})
	if err != nil {
		return pixel.Header{}, wrapLibErr(err)
	}
	h := pixel.Header{Width: cfg.Width, Height: cfg.Height, Layout: pixel.LayoutRGBA, BitDepth: 8}
	switch cfg.ColorModel {
	case color.GrayModel:
		h.Layout = pixel.LayoutGray
	case color.Gray16Model:
		h.Layout, h.BitDepth = pixel.LayoutGray, 16
	case color.RGBA64Model, color.NRGBA64Model:
		h.BitDepth = 16
	}
	return h, nil
}

// Decode decompresses data and converts it to the requested layout and depth.
func Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if depth == 32 {
		return nil, fmt.Errorf("%w: png: 32-bit output", pixel.ErrUnsupported)
	}
	if !HasSignature(data) {
		return nil, fmt.Errorf("%w: png: missing signature", pixel.ErrMalformed)
	}
	var img image.Image
	err := Lib.Do(func() error {
		var err error
		img, err = png.Decode(bytes.NewReader(data))
		return err
	})
	if err != nil {
		return nil, wrapLibErr(err)
	}
	native, err := fromImage(img)
	if err != nil {
		return nil, err
	}
	slog.Debug("png decode",
		slog.String("source", native.Header.String()),
		slog.String("layout", l.String()),
		slog.Int("depth", depth))
	if native.Matches(l, depth) {
		return native, nil
	}
	return pixel.Convert(native, l, depth)
}

// Encode writes buf as a PNG using the fastest compression level.
func Encode(buf *pixel.Buffer) ([]byte, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: png: no pixel data", pixel.ErrPrecondition)
	}
	img, err := toImage(buf)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := Lib.Do(func() error { return enc.Encode(&out, img) }); err != nil {
		return nil, wrapLibErr(err)
	}
	return out.Bytes(), nil
}

func wrapLibErr(err error) error {
	switch err.(type) {
	case png.FormatError:
		return fmt.Errorf("%w: png: %v", pixel.ErrMalformed, err)
	case png.UnsupportedError:
		return fmt.Errorf("%w: png: %v", pixel.ErrUnsupported, err)
	case *libcall.FatalError:
		return err
	}
	return fmt.Errorf("%w: png: %v", pixel.ErrMalformed, err)
}

// fromImage copies a decoded image into its closest buffer: Gray or RGBA at
// the source depth, samples converted from big-endian to little-endian.
func fromImage(img image.Image) (*pixel.Buffer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	newBuf := func(l pixel.Layout, depth int) (*pixel.Buffer, error) {
		return pixel.New(pixel.Header{Width: w, Height: h, Layout: l, BitDepth: depth})
	}

	switch src := img.(type) {
	case *image.Gray:
		out, err := newBuf(pixel.LayoutGray, 8)
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			copy(out.Row(y), src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return out, nil

	case *image.Gray16:
		out, err := newBuf(pixel.LayoutGray, 16)
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			swap16(out.Row(y), src.Pix[y*src.Stride:y*src.Stride+2*w])
		}
		return out, nil

	case *image.NRGBA:
		return copyRows8(newBuf, src.Pix, src.Stride, w, h)

	case *image.RGBA:
		// only produced for sources without alpha, so every pixel is opaque
		return copyRows8(newBuf, src.Pix, src.Stride, w, h)

	case *image.NRGBA64:
		return copyRows16(newBuf, src.Pix, src.Stride, w, h)

	case *image.RGBA64:
		return copyRows16(newBuf, src.Pix, src.Stride, w, h)

	case *image.Paletted:
		out, err := newBuf(pixel.LayoutRGBA, 8)
		if err != nil {
			return nil, err
		}
		lut := make([]color.NRGBA, len(src.Palette))
		for i, c := range src.Palette {
			lut[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		for y := 0; y < h; y++ {
			row := out.Row(y)
			for x := 0; x < w; x++ {
				idx := int(src.Pix[y*src.Stride+x])
				if idx >= len(lut) {
					return nil, fmt.Errorf("%w: png: palette index %d out of range", pixel.ErrMalformed, idx)
				}
				c := lut[idx]
				row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = c.R, c.G, c.B, c.A
			}
		}
		return out, nil
	}

	out, err := newBuf(pixel.LayoutRGBA, 16)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		row := out.Row(y)
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			binary.LittleEndian.PutUint16(row[x*8:], c.R)
			binary.LittleEndian.PutUint16(row[x*8+2:], c.G)
			binary.LittleEndian.PutUint16(row[x*8+4:], c.B)
			binary.LittleEndian.PutUint16(row[x*8+6:], c.A)
		}
	}
	return out, nil
}

func copyRows8(newBuf func(pixel.Layout, int) (*pixel.Buffer, error), pix []byte, stride, w, h int) (*pixel.Buffer, error) {
	out, err := newBuf(pixel.LayoutRGBA, 8)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		copy(out.Row(y), pix[y*stride:y*stride+4*w])
	}
	return out, nil
}

func copyRows16(newBuf func(pixel.Layout, int) (*pixel.Buffer, error), pix []byte, stride, w, h int) (*pixel.Buffer, error) {
	out, err := newBuf(pixel.LayoutRGBA, 16)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		swap16(out.Row(y), pix[y*stride:y*stride+8*w])
	}
	return out, nil
}

// swap16 copies src to dst reversing the byte order of every 16-bit sample.
func swap16(dst, src []byte) {
	for i := 0; i+1 < len(src); i += 2 {
		dst[i], dst[i+1] = src[i+1], src[i]
	}
}

// toImage wraps buf in the image type the PNG encoder writes losslessly.
func toImage(buf *pixel.Buffer) (image.Image, error) {
	if buf.BitDepth == 32 {
		return nil, fmt.Errorf("%w: png: 32-bit source", pixel.ErrUnsupported)
	}
	if len(buf.Pix) != buf.Size() {
		return nil, fmt.Errorf("%w: png: buffer length %d does not match %s", pixel.ErrPrecondition, len(buf.Pix), buf.Header)
	}
	r := image.Rect(0, 0, buf.Width, buf.Height)
	pix := bytes.Clone(buf.Pix)

	switch {
	case buf.Layout == pixel.LayoutGray && buf.BitDepth == 8:
		return &image.Gray{Pix: pix, Stride: buf.Stride(), Rect: r}, nil
	case buf.Layout == pixel.LayoutGray:
		swap16(pix, buf.Pix)
		return &image.Gray16{Pix: pix, Stride: buf.Stride(), Rect: r}, nil
	}

	if buf.Layout == pixel.LayoutBGRA {
		pixel.SwapRedBlue(pix, buf.BitDepth)
	}
	if buf.BitDepth == 8 {
		return &image.NRGBA{Pix: pix, Stride: buf.Stride(), Rect: r}, nil
	}
	be := make([]byte, len(pix))
	swap16(be, pix)
	return &image.NRGBA64{Pix: be, Stride: buf.Stride(), Rect: r}, nil
}

// Codec adapts the package to the wrapper lifecycle.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "png" }

func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	return ParseHeader(data)
}

func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Decode(data, l, depth)
}

// Encode ignores quality; PNG is lossless.
func (c *Codec) Encode(buf *pixel.Buffer, _ int) ([]byte, error) {
	return Encode(buf)
}
