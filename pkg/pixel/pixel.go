// Package pixel holds the uncompressed image model shared by every codec:
// a byte buffer tagged with its dimensions, channel layout and bit depth.
//
// Multi-byte samples are stored little-endian. 16-bit samples are unsigned
// integers for integer formats (PNG) and IEEE half floats for EXR; 32-bit
// samples are always IEEE float32.
package pixel

import (
	"bytes"
	"fmt"
)

// Layout is the channel order of a pixel.
type Layout int

const (
	LayoutInvalid Layout = iota
	LayoutRGBA
	LayoutBGRA
	LayoutGray
)

// Channels returns the number of samples per pixel for the layout.
func (l Layout) Channels() int {
	switch l {
	case LayoutRGBA, LayoutBGRA:
		return 4
	case LayoutGray:
		return 1
	default:
		return 0
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutRGBA:
		return "RGBA"
	case LayoutBGRA:
		return "BGRA"
	case LayoutGray:
		return "Gray"
	default:
		return "Invalid"
	}
}

// ParseLayout maps a layout name, as printed by String or in lower case, to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "RGBA", "rgba":
		return LayoutRGBA, nil
	case "BGRA", "bgra":
		return LayoutBGRA, nil
	case "Gray", "gray", "GRAY":
		return LayoutGray, nil
	}
	return LayoutInvalid, fmt.Errorf("%w: unknown layout %q", ErrPrecondition, s)
}

// ValidDepth reports whether depth is a supported bits-per-channel value.
func ValidDepth(depth int) bool {
	return depth == 8 || depth == 16 || depth == 32
}

// Header describes a pixel buffer without owning any samples.
type Header struct {
	Width    int
	Height   int
	Layout   Layout
	BitDepth int
}

// Validate checks dimensions, layout and depth.
func (h Header) Validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrPrecondition, h.Width, h.Height)
	}
	if h.Layout.Channels() == 0 {
		return fmt.Errorf("%w: invalid layout %d", ErrPrecondition, int(h.Layout))
	}
	if !ValidDepth(h.BitDepth) {
		return fmt.Errorf("%w: invalid bit depth %d", ErrPrecondition, h.BitDepth)
	}
	return nil
}

// BytesPerPixel is channels * bitDepth/8.
func (h Header) BytesPerPixel() int {
	return h.Layout.Channels() * h.BitDepth / 8
}

// Stride is the length of one row in bytes. Rows are tightly packed.
func (h Header) Stride() int {
	return h.Width * h.BytesPerPixel()
}

// Size is the exact byte length a buffer with this header must have.
func (h Header) Size() int {
	return h.Height * h.Stride()
}

func (h Header) String() string {
	return fmt.Sprintf("%dx%d %s/%d", h.Width, h.Height, h.Layout, h.BitDepth)
}

// Buffer is an owned block of samples plus the header describing it.
// len(Pix) == Header.Size() always holds for buffers built by this package.
type Buffer struct {
	Header
	Pix []byte
}

// New allocates a zeroed buffer.
func New(h Header) (*Buffer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{Header: h, Pix: make([]byte, h.Size())}, nil
}

// FromBytes copies pix into a new buffer after checking the length invariant.
func FromBytes(pix []byte, h Header) (*Buffer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(pix) != h.Size() {
		return nil, fmt.Errorf("%w: buffer length %d does not match %s (want %d)",
			ErrPrecondition, len(pix), h, h.Size())
	}
	return &Buffer{Header: h, Pix: bytes.Clone(pix)}, nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{Header: b.Header, Pix: bytes.Clone(b.Pix)}
}

// Row returns the bytes of row y.
func (b *Buffer) Row(y int) []byte {
	s := b.Stride()
	return b.Pix[y*s : (y+1)*s]
}

// Matches reports whether the buffer already has the given layout and depth.
func (b *Buffer) Matches(l Layout, depth int) bool {
	return b.Layout == l && b.BitDepth == depth
}
