// Package jpeg converts between baseline JPEG streams and 8-bit pixel
// buffers on top of image/jpeg. Calls into the JPEG library are serialized
// through Lib.
package jpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/jpfielding/imagewrap.go/pkg/codec/libcall"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// DefaultQuality is used when the caller passes quality 0.
const DefaultQuality = 85

// SOI is the start-of-image marker every JPEG stream begins with.
var SOI = []byte{0xff, 0xd8, 0xff}

// Lib guards every decode and encode in the process.
var Lib = libcall.New("jpeg")

// ClampQuality maps 0 to DefaultQuality and clamps everything else to [1,100].
func ClampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// Codec reads and writes JPEG. Channels 1 forces grayscale output and
// grayscale encoding; 0 keeps the stream's own channel count.
type Codec struct {
	Channels int
}

func NewCodec() *Codec { return &Codec{} }

// NewGrayscaleCodec returns a codec that always produces one channel.
func NewGrayscaleCodec() *Codec { return &Codec{Channels: 1} }

func (c *Codec) Name() string {
	if c.Channels == 1 {
		return "jpeg-gray"
	}
	return "jpeg"
}

// ParseHeader reads the frame header: one component is Gray, three are RGBA
// after expansion, anything else is rejected. Depth is always 8.
func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	if !bytes.HasPrefix(data, SOI) {
		return pixel.Header{}, fmt.Errorf("%w: jpeg: missing SOI marker", pixel.ErrMalformed)
	}
	var cfg image.Config
	err := Lib.Do(func() error {
		var err error
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
		return err
	})
	if err != nil {
		return pixel.Header{}, wrapLibErr(err)
	}
	h := pixel.Header{Width: cfg.Width, Height: cfg.Height, BitDepth: 8}
	switch cfg.ColorModel {
	case color.GrayModel:
		h.Layout = pixel.LayoutGray
	case color.YCbCrModel:
		h.Layout = pixel.LayoutRGBA
	default:
		return pixel.Header{}, fmt.Errorf("%w: jpeg: unsupported channel count (colour model %T)", pixel.ErrUnsupported, cfg.ColorModel)
	}
	if c.Channels == 1 {
		h.Layout = pixel.LayoutGray
	}
	return h, nil
}

// Decode decompresses data into the requested layout. Sources are 8-bit; a
// 16-bit request is widened.
func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if !bytes.HasPrefix(data, SOI) {
		return nil, fmt.Errorf("%w: jpeg: missing SOI marker", pixel.ErrMalformed)
	}
	var img image.Image
	err := Lib.Do(func() error {
		var err error
		img, err = jpeg.Decode(bytes.NewReader(data))
		return err
	})
	if err != nil {
		return nil, wrapLibErr(err)
	}

	b := img.Bounds()
	var native *pixel.Buffer
	switch src := img.(type) {
	case *image.Gray:
		native, err = pixel.New(pixel.Header{Width: b.Dx(), Height: b.Dy(), Layout: pixel.LayoutGray, BitDepth: 8})
		if err != nil {
			return nil, err
		}
		for y := 0; y < b.Dy(); y++ {
			copy(native.Row(y), src.Pix[y*src.Stride:y*src.Stride+b.Dx()])
		}
	case *image.YCbCr:
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
		native = &pixel.Buffer{
			Header: pixel.Header{Width: b.Dx(), Height: b.Dy(), Layout: pixel.LayoutRGBA, BitDepth: 8},
			Pix:    rgba.Pix,
		}
	default:
		return nil, fmt.Errorf("%w: jpeg: unsupported channel layout %T", pixel.ErrUnsupported, img)
	}

	if c.Channels == 1 && native.Layout != pixel.LayoutGray {
		if native, err = pixel.Convert(native, pixel.LayoutGray, 8); err != nil {
			return nil, err
		}
	}
	slog.Debug("jpeg decode",
		slog.String("source", native.Header.String()),
		slog.String("layout", l.String()),
		slog.Int("depth", depth))
	if native.Matches(l, depth) {
		return native, nil
	}
	return pixel.Convert(native, l, depth)
}

// Encode compresses an 8-bit buffer. BGRA sources are reordered to RGB on a
// copy; the caller's buffer is not modified.
func (c *Codec) Encode(buf *pixel.Buffer, quality int) ([]byte, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: jpeg: no pixel data", pixel.ErrPrecondition)
	}
	if buf.BitDepth != 8 {
		return nil, fmt.Errorf("%w: jpeg: %d-bit source", pixel.ErrUnsupported, buf.BitDepth)
	}
	if len(buf.Pix) != buf.Size() {
		return nil, fmt.Errorf("%w: jpeg: buffer length %d does not match %s", pixel.ErrPrecondition, len(buf.Pix), buf.Header)
	}
	src := buf
	if c.Channels == 1 && buf.Layout != pixel.LayoutGray {
		var err error
		if src, err = pixel.Convert(buf, pixel.LayoutGray, 8); err != nil {
			return nil, err
		}
	}

	r := image.Rect(0, 0, src.Width, src.Height)
	var img image.Image
	switch src.Layout {
	case pixel.LayoutGray:
		img = &image.Gray{Pix: src.Pix, Stride: src.Stride(), Rect: r}
	case pixel.LayoutBGRA:
		pix := bytes.Clone(src.Pix)
		pixel.SwapRedBlue(pix, 8)
		img = &image.RGBA{Pix: pix, Stride: src.Stride(), Rect: r}
	default:
		img = &image.RGBA{Pix: src.Pix, Stride: src.Stride(), Rect: r}
	}

	q := ClampQuality(quality)
	var out bytes.Buffer
	out.Grow(src.Size() + 1024)
	err := Lib.Do(func() error {
		return jpeg.Encode(&out, img, &jpeg.Options{Quality: q})
	})
	if err != nil {
		return nil, wrapLibErr(err)
	}
	// the destination was sized for the worst case; hand back only what was written
	return bytes.Clone(out.Bytes()), nil
}

func wrapLibErr(err error) error {
	switch err.(type) {
	case jpeg.FormatError:
		return fmt.Errorf("%w: jpeg: %v", pixel.ErrMalformed, err)
	case jpeg.UnsupportedError:
		return fmt.Errorf("%w: jpeg: %v", pixel.ErrUnsupported, err)
	case *libcall.FatalError:
		return err
	}
	return fmt.Errorf("%w: jpeg: %v", pixel.ErrMalformed, err)
}
