package pixel

import (
	"encoding/binary"
	"fmt"
)

// SwapRedBlue exchanges channels 0 and 2 of every 4-channel pixel in place,
// turning RGBA into BGRA and back.
func SwapRedBlue(pix []byte, depth int) {
	sz := depth / 8
	px := 4 * sz
	for i := 0; i+px <= len(pix); i += px {
		for k := 0; k < sz; k++ {
			pix[i+k], pix[i+2*sz+k] = pix[i+2*sz+k], pix[i+k]
		}
	}
}

// Convert returns a copy of b in the requested layout and bit depth.
//
// Integer data (8 and 16 bits) converts freely: colour layouts are swizzled,
// gray is replicated into colour with an opaque alpha, colour reduces to gray
// with Rec.601 weights, and depth widens by replication or narrows by keeping
// the high byte. 32-bit float data may only be swizzled between RGBA and BGRA.
// 16-bit samples are read as unsigned integers; EXR half floats go through
// the exr package instead.
func Convert(b *Buffer, l Layout, depth int) (*Buffer, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil buffer", ErrPrecondition)
	}
	if b.Matches(l, depth) {
		return b.Clone(), nil
	}
	h := Header{Width: b.Width, Height: b.Height, Layout: l, BitDepth: depth}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if b.BitDepth == depth && isColour(b.Layout) && isColour(l) {
		out := b.Clone()
		out.Layout = l
		SwapRedBlue(out.Pix, depth)
		return out, nil
	}
	if b.BitDepth == 32 || depth == 32 {
		return nil, fmt.Errorf("%w: cannot convert %s/%d to %s/%d",
			ErrUnsupported, b.Layout, b.BitDepth, l, depth)
	}

	out, err := New(h)
	if err != nil {
		return nil, err
	}
	n := b.Width * b.Height
	srcBpp, dstBpp := b.BytesPerPixel(), h.BytesPerPixel()
	for i := 0; i < n; i++ {
		r, g, bl, a := readRGBA16(b.Pix[i*srcBpp:], b.Layout, b.BitDepth)
		writeRGBA16(out.Pix[i*dstBpp:], l, depth, r, g, bl, a)
	}
	return out, nil
}

func isColour(l Layout) bool {
	return l == LayoutRGBA || l == LayoutBGRA
}

func readSample(p []byte, depth int) uint16 {
	if depth == 8 {
		return uint16(p[0]) * 0x101
	}
	return binary.LittleEndian.Uint16(p)
}

func writeSample(p []byte, depth int, v uint16) {
	if depth == 8 {
		p[0] = uint8(v >> 8)
		return
	}
	binary.LittleEndian.PutUint16(p, v)
}

func readRGBA16(p []byte, l Layout, depth int) (r, g, b, a uint16) {
	sz := depth / 8
	switch l {
	case LayoutGray:
		v := readSample(p, depth)
		return v, v, v, 0xffff
	case LayoutBGRA:
		return readSample(p[2*sz:], depth), readSample(p[sz:], depth), readSample(p, depth), readSample(p[3*sz:], depth)
	default:
		return readSample(p, depth), readSample(p[sz:], depth), readSample(p[2*sz:], depth), readSample(p[3*sz:], depth)
	}
}

func writeRGBA16(p []byte, l Layout, depth int, r, g, b, a uint16) {
	sz := depth / 8
	switch l {
	case LayoutGray:
		writeSample(p, depth, Luma(r, g, b))
	case LayoutBGRA:
		writeSample(p, depth, b)
		writeSample(p[sz:], depth, g)
		writeSample(p[2*sz:], depth, r)
		writeSample(p[3*sz:], depth, a)
	default:
		writeSample(p, depth, r)
		writeSample(p[sz:], depth, g)
		writeSample(p[2*sz:], depth, b)
		writeSample(p[3*sz:], depth, a)
	}
}

// Luma reduces 16-bit colour to 16-bit gray with Rec.601 weights.
func Luma(r, g, b uint16) uint16 {
	return uint16((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
