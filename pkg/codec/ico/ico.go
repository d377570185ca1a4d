// Package ico reads Windows icon containers. Only the widest 32-bit image is
// decoded; it may be stored either as a PNG stream or as a header-less DIB.
package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/go-restruct/restruct"

	"github.com/jpfielding/imagewrap.go/pkg/codec/bmp"
	"github.com/jpfielding/imagewrap.go/pkg/codec/png"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

const (
	headerLen = 6
	entryLen  = 16
	typeIcon  = 1
)

// Magic is the directory header of an icon file: reserved 0, type 1.
var Magic = []byte{0x00, 0x00, 0x01, 0x00}

// Header is ICONDIR.
type Header struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

// DirEntry is ICONDIRENTRY. Width and Height of 0 mean 256.
type DirEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	Size       uint32
	Offset     uint32
}

// RealWidth returns the width in pixels.
func (e DirEntry) RealWidth() int {
	if e.Width == 0 {
		return 256
	}
	return int(e.Width)
}

// RealHeight returns the height in pixels.
func (e DirEntry) RealHeight() int {
	if e.Height == 0 {
		return 256
	}
	return int(e.Height)
}

// ReadDirectory parses the header and every directory entry.
func ReadDirectory(data []byte) ([]DirEntry, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: ico: %d bytes is too short for a header", pixel.ErrMalformed, len(data))
	}
	var hdr Header
	if err := restruct.Unpack(data[:headerLen], binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: ico: header: %v", pixel.ErrMalformed, err)
	}
	if hdr.Reserved != 0 || hdr.Type != typeIcon {
		return nil, fmt.Errorf("%w: ico: not an icon (reserved %d, type %d)", pixel.ErrMalformed, hdr.Reserved, hdr.Type)
	}
	end := headerLen + int(hdr.Count)*entryLen
	if len(data) < end {
		return nil, fmt.Errorf("%w: ico: directory of %d entries truncated", pixel.ErrMalformed, hdr.Count)
	}
	entries := make([]DirEntry, hdr.Count)
	for i := range entries {
		off := headerLen + i*entryLen
		if err := restruct.Unpack(data[off:off+entryLen], binary.LittleEndian, &entries[i]); err != nil {
			return nil, fmt.Errorf("%w: ico: entry %d: %v", pixel.ErrMalformed, i, err)
		}
	}
	return entries, nil
}

// Select returns the widest 32-bit entry and the bytes it points at. The
// first entry wins among equally wide ones.
func Select(data []byte) (DirEntry, []byte, error) {
	entries, err := ReadDirectory(data)
	if err != nil {
		return DirEntry{}, nil, err
	}
	best := -1
	for i, e := range entries {
		if e.BitCount != 32 {
			continue
		}
		if best < 0 || e.RealWidth() > entries[best].RealWidth() {
			best = i
		}
	}
	if best < 0 {
		return DirEntry{}, nil, fmt.Errorf("%w: ico: no 32-bit image among %d entries", pixel.ErrUnsupported, len(entries))
	}
	e := entries[best]
	start, size := int64(e.Offset), int64(e.Size)
	if size == 0 || start+size > int64(len(data)) {
		return DirEntry{}, nil, fmt.Errorf("%w: ico: entry %d spans [%d,%d) beyond %d bytes", pixel.ErrMalformed, best, start, start+size, len(data))
	}
	slog.Debug("ico entry selected",
		slog.Int("index", best),
		slog.Int("entries", len(entries)),
		slog.Int("width", e.RealWidth()),
		slog.Int("height", e.RealHeight()))
	return e, data[start : start+size], nil
}

// isPNG reports whether the sub-image parses as a PNG stream.
func isPNG(sub []byte) bool {
	if !png.HasSignature(sub) {
		return false
	}
	_, err := png.ParseHeader(sub)
	return err == nil
}

// ParseHeader reports the shape of the selected sub-image.
func ParseHeader(data []byte) (pixel.Header, error) {
	_, sub, err := Select(data)
	if err != nil {
		return pixel.Header{}, err
	}
	if isPNG(sub) {
		return png.ParseHeader(sub)
	}
	bm, err := bmp.Parse(sub, bmp.IconOptions()...)
	if err != nil {
		return pixel.Header{}, fmt.Errorf("ico: %w", err)
	}
	return bm.Header(), nil
}

// Decode decodes the selected sub-image.
func Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	_, sub, err := Select(data)
	if err != nil {
		return nil, err
	}
	if isPNG(sub) {
		return png.Decode(sub, l, depth)
	}
	buf, err := bmp.Decode(sub, l, depth, bmp.IconOptions()...)
	if err != nil {
		return nil, fmt.Errorf("ico: %w", err)
	}
	return buf, nil
}

// HasMagic reports whether data starts with an icon directory header.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}

// Codec adapts the package to the wrapper lifecycle.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "ico" }

func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	return ParseHeader(data)
}

func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Decode(data, l, depth)
}

// Encode always fails: writing icons is not supported.
func (c *Codec) Encode(*pixel.Buffer, int) ([]byte, error) {
	return nil, fmt.Errorf("%w: ico: encoding is not supported", pixel.ErrUnsupported)
}
