// Package icns reads Apple icon containers. The element table is parsed
// portably; pixel decoding is delegated to the operating system image service
// and is only available where Supported is true.
package icns

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

const elementHeaderLen = 8

// Magic is the container type code.
var Magic = []byte("icns")

// ErrUnsupportedPlatform is returned by every decode on platforms without a
// native icon decoder.
var ErrUnsupportedPlatform = fmt.Errorf("%w: icns: no native decoder on this platform", pixel.ErrUnsupported)

// Element is one typed entry of the container.
type Element struct {
	Type   string
	Offset int // start of the element data, after its 8-byte header
	Length int // data length, excluding the header
}

// HasMagic reports whether data starts with the icns type code.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}

// ReadTOC lists the elements of an icns container.
func ReadTOC(data []byte) ([]Element, error) {
	if len(data) < elementHeaderLen || !HasMagic(data) {
		return nil, fmt.Errorf("%w: icns: missing container header", pixel.ErrMalformed)
	}
	total := int(binary.BigEndian.Uint32(data[4:8]))
	if total < elementHeaderLen || total > len(data) {
		return nil, fmt.Errorf("%w: icns: container length %d, have %d bytes", pixel.ErrMalformed, total, len(data))
	}
	var out []Element
	for pos := elementHeaderLen; pos < total; {
		if total-pos < elementHeaderLen {
			return nil, fmt.Errorf("%w: icns: truncated element header at %d", pixel.ErrMalformed, pos)
		}
		n := int(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
		if n < elementHeaderLen || n > total-pos {
			return nil, fmt.Errorf("%w: icns: element %q length %d at %d", pixel.ErrMalformed, data[pos:pos+4], n, pos)
		}
		out = append(out, Element{
			Type:   string(data[pos : pos+4]),
			Offset: pos + elementHeaderLen,
			Length: n - elementHeaderLen,
		})
		pos += n
	}
	return out, nil
}

// Decode converts data through the native decoder. The native result is
// 8-bit RGBA; it is reordered or converted to the requested layout and depth.
func Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if !Supported {
		return nil, ErrUnsupportedPlatform
	}
	if _, err := ReadTOC(data); err != nil {
		return nil, err
	}
	native, err := decodeNative(data)
	if err != nil {
		return nil, err
	}
	if native.Matches(l, depth) {
		return native, nil
	}
	return pixel.Convert(native, l, depth)
}

// ParseHeader decodes the image to learn its shape; the container itself
// does not carry one authoritative size.
func ParseHeader(data []byte) (pixel.Header, error) {
	buf, err := Decode(data, pixel.LayoutRGBA, 8)
	if err != nil {
		return pixel.Header{}, err
	}
	return buf.Header, nil
}

// Codec adapts the package to the wrapper lifecycle.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "icns" }

func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	return ParseHeader(data)
}

func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Decode(data, l, depth)
}

// Encode always fails: writing icns is not implemented on any platform.
func (c *Codec) Encode(*pixel.Buffer, int) ([]byte, error) {
	if !Supported {
		return nil, ErrUnsupportedPlatform
	}
	return nil, fmt.Errorf("%w: icns: encoding is not supported", pixel.ErrUnsupported)
}
