// Package bmp decodes uncompressed Windows bitmaps (8-bit paletted, 24-bit
// and 32-bit) into BGRA pixel buffers.
//
// Besides standalone .bmp files it reads the header-less, double-height DIBs
// stored inside ICO containers, whose lower half is an AND transparency mask.
// Encoding is not supported.
package bmp

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/go-restruct/restruct"

	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

const (
	fileHeaderLen = 14
	infoHeaderLen = 40
	paletteLen    = 256
)

// Compression values of biCompression.
const (
	BIRGB       = 0
	BIRLE8      = 1
	BIRLE4      = 2
	BIBitFields = 3
)

// FileHeader is BITMAPFILEHEADER.
type FileHeader struct {
	Type      [2]byte
	Size      uint32
	Reserved1 uint16
	Reserved2 uint16
	OffBits   uint32
}

// InfoHeader is BITMAPINFOHEADER.
type InfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type config struct {
	noFileHeader bool
	halfHeight   bool
}

// Option changes how the container is read.
type Option func(*config)

// WithoutFileHeader reads data that starts directly at the BITMAPINFOHEADER.
func WithoutFileHeader() Option {
	return func(c *config) { c.noFileHeader = true }
}

// HalfHeight reports half of the stored height, for icon DIBs whose stored
// height also covers the AND mask.
func HalfHeight() Option {
	return func(c *config) { c.halfHeight = true }
}

// IconOptions is the mode used for bitmaps embedded in ICO files.
func IconOptions() []Option {
	return []Option{WithoutFileHeader(), HalfHeight()}
}

// Bitmap is a parsed but not yet decoded bitmap. It references the bytes it
// was parsed from.
type Bitmap struct {
	File    FileHeader
	Info    InfoHeader
	Width   int
	Height  int
	TopDown bool

	data      []byte
	infoStart int
	pixStart  int
}

// Parse reads the file and info headers. Pixel format checks happen in Decode.
func Parse(data []byte, opts ...Option) (*Bitmap, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	b := &Bitmap{data: data}

	if !cfg.noFileHeader {
		if len(data) < fileHeaderLen+infoHeaderLen {
			return nil, fmt.Errorf("%w: bmp: %d bytes is too short for headers", pixel.ErrMalformed, len(data))
		}
		if err := restruct.Unpack(data[:fileHeaderLen], binary.LittleEndian, &b.File); err != nil {
			return nil, fmt.Errorf("%w: bmp: file header: %v", pixel.ErrMalformed, err)
		}
		if string(b.File.Type[:]) != "BM" {
			return nil, fmt.Errorf("%w: bmp: bad magic %q", pixel.ErrMalformed, b.File.Type[:])
		}
		b.infoStart = fileHeaderLen
	} else if len(data) < infoHeaderLen {
		return nil, fmt.Errorf("%w: bmp: %d bytes is too short for info header", pixel.ErrMalformed, len(data))
	}

	if err := restruct.Unpack(data[b.infoStart:b.infoStart+infoHeaderLen], binary.LittleEndian, &b.Info); err != nil {
		return nil, fmt.Errorf("%w: bmp: info header: %v", pixel.ErrMalformed, err)
	}
	if b.Info.Size < infoHeaderLen || int(b.Info.Size) > len(data)-b.infoStart {
		return nil, fmt.Errorf("%w: bmp: info header size %d", pixel.ErrMalformed, b.Info.Size)
	}

	b.Width = int(b.Info.Width)
	height := int(b.Info.Height)
	if height < 0 {
		height, b.TopDown = -height, true
	}
	if cfg.halfHeight {
		height /= 2
	}
	b.Height = height
	if b.Width <= 0 || b.Height <= 0 {
		return nil, fmt.Errorf("%w: bmp: invalid dimensions %dx%d", pixel.ErrMalformed, b.Width, b.Height)
	}

	paletteStart := b.infoStart + int(b.Info.Size)
	if cfg.noFileHeader {
		b.pixStart = paletteStart
		if b.Info.BitCount == 8 {
			b.pixStart += 4 * b.colors()
		}
	} else {
		b.pixStart = int(b.File.OffBits)
		if b.pixStart < paletteStart || b.pixStart > len(data) {
			return nil, fmt.Errorf("%w: bmp: pixel data offset %d out of range", pixel.ErrMalformed, b.File.OffBits)
		}
	}
	return b, nil
}

// Header reports the decoded buffer shape: always BGRA, 8 bits.
func (b *Bitmap) Header() pixel.Header {
	return pixel.Header{Width: b.Width, Height: b.Height, Layout: pixel.LayoutBGRA, BitDepth: 8}
}

func (b *Bitmap) colors() int {
	n := int(b.Info.ClrUsed)
	if n == 0 || n > paletteLen {
		n = paletteLen
	}
	return n
}

// stride is the stored row length; paletted and 24-bit rows are padded to 4 bytes.
func (b *Bitmap) stride() int {
	switch b.Info.BitCount {
	case 32:
		return b.Width * 4
	default:
		return align4(b.Width * int(b.Info.BitCount) / 8)
	}
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// Decode expands the pixel data into a BGRA 8-bit buffer.
func (b *Bitmap) Decode() (*pixel.Buffer, error) {
	if b.Info.Compression != BIRGB {
		return nil, fmt.Errorf("%w: bmp: compression method %s", pixel.ErrUnsupported, compressionName(b.Info.Compression))
	}
	if b.Info.Planes != 1 {
		return nil, fmt.Errorf("%w: bmp: %d planes", pixel.ErrUnsupported, b.Info.Planes)
	}
	switch b.Info.BitCount {
	case 8, 24, 32:
	default:
		return nil, fmt.Errorf("%w: bmp: %d bits per pixel", pixel.ErrUnsupported, b.Info.BitCount)
	}

	stride := b.stride()
	need := int64(stride) * int64(b.Height)
	if need > int64(len(b.data)-b.pixStart) {
		return nil, fmt.Errorf("%w: bmp: pixel data truncated: need %d bytes, have %d",
			pixel.ErrMalformed, need, len(b.data)-b.pixStart)
	}

	out, err := pixel.New(b.Header())
	if err != nil {
		return nil, err
	}

	var palette [paletteLen][4]byte
	if b.Info.BitCount == 8 {
		palette, err = b.readPalette()
		if err != nil {
			return nil, err
		}
	}

	slog.Debug("bmp decode",
		slog.Int("width", b.Width),
		slog.Int("height", b.Height),
		slog.Int("bitCount", int(b.Info.BitCount)),
		slog.Bool("topDown", b.TopDown))

	for y := 0; y < b.Height; y++ {
		srcY := b.Height - 1 - y
		if b.TopDown {
			srcY = y
		}
		src := b.data[b.pixStart+srcY*stride : b.pixStart+(srcY+1)*stride]
		dst := out.Row(y)
		switch b.Info.BitCount {
		case 8:
			for x := 0; x < b.Width; x++ {
				copy(dst[x*4:x*4+4], palette[src[x]][:])
			}
		case 24:
			for x := 0; x < b.Width; x++ {
				dst[x*4+0] = src[x*3+0]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 0xff
			}
		case 32:
			copy(dst, src[:b.Width*4])
		}
	}
	return out, nil
}

// readPalette loads the BGR0 colour table; unused entries stay opaque black.
func (b *Bitmap) readPalette() ([paletteLen][4]byte, error) {
	var palette [paletteLen][4]byte
	for i := range palette {
		palette[i][3] = 0xff
	}
	start := b.infoStart + int(b.Info.Size)
	n := b.colors()
	if start+4*n > len(b.data) {
		return palette, fmt.Errorf("%w: bmp: colour table truncated", pixel.ErrMalformed)
	}
	for i := 0; i < n; i++ {
		e := b.data[start+4*i:]
		palette[i] = [4]byte{e[0], e[1], e[2], 0xff}
	}
	return palette, nil
}

func compressionName(c uint32) string {
	switch c {
	case BIRLE8:
		return "BI_RLE8"
	case BIRLE4:
		return "BI_RLE4"
	case BIBitFields:
		return "BI_BITFIELDS"
	default:
		return fmt.Sprintf("%d", c)
	}
}

// Decode parses data and returns its pixels in the requested layout and depth.
func Decode(data []byte, l pixel.Layout, depth int, opts ...Option) (*pixel.Buffer, error) {
	bm, err := Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	buf, err := bm.Decode()
	if err != nil {
		return nil, err
	}
	if buf.Matches(l, depth) {
		return buf, nil
	}
	return pixel.Convert(buf, l, depth)
}

// Codec adapts the package to the wrapper lifecycle.
type Codec struct {
	Options []Option
}

// NewCodec returns a codec for standalone .bmp files.
func NewCodec(opts ...Option) *Codec {
	return &Codec{Options: opts}
}

func (c *Codec) Name() string { return "bmp" }

func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	bm, err := Parse(data, c.Options...)
	if err != nil {
		return pixel.Header{}, err
	}
	return bm.Header(), nil
}

func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Decode(data, l, depth, c.Options...)
}

// Encode always fails: the bitmap writer is not implemented.
func (c *Codec) Encode(*pixel.Buffer, int) ([]byte, error) {
	return nil, fmt.Errorf("%w: bmp: encoding is not supported", pixel.ErrUnsupported)
}
