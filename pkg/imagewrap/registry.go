package imagewrap

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jpfielding/imagewrap.go/pkg/codec/bmp"
	"github.com/jpfielding/imagewrap.go/pkg/codec/exr"
	"github.com/jpfielding/imagewrap.go/pkg/codec/icns"
	"github.com/jpfielding/imagewrap.go/pkg/codec/ico"
	"github.com/jpfielding/imagewrap.go/pkg/codec/jpeg"
	"github.com/jpfielding/imagewrap.go/pkg/codec/png"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// Format identifies a compressed image format.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatGrayscaleJPEG
	FormatBMP
	FormatICO
	FormatEXR
	FormatICNS
)

var formatNames = map[Format]string{
	FormatUnknown:       "unknown",
	FormatPNG:           "png",
	FormatJPEG:          "jpeg",
	FormatGrayscaleJPEG: "jpeg-gray",
	FormatBMP:           "bmp",
	FormatICO:           "ico",
	FormatEXR:           "exr",
	FormatICNS:          "icns",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Extension returns the usual file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG, FormatGrayscaleJPEG:
		return ".jpg"
	case FormatUnknown:
		return ""
	}
	return "." + f.String()
}

// formatsByName maps names and aliases to formats
var formatsByName = map[string]Format{
	"png":       FormatPNG,
	"jpeg":      FormatJPEG,
	"jpg":       FormatJPEG,
	"jpeg-gray": FormatGrayscaleJPEG,
	"gray-jpeg": FormatGrayscaleJPEG, // alias
	"bmp":       FormatBMP,
	"ico":       FormatICO,
	"exr":       FormatEXR,
	"icns":      FormatICNS,
}

// formatsByExt maps lower-case file extensions to formats
var formatsByExt = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".bmp":  FormatBMP,
	".dib":  FormatBMP,
	".ico":  FormatICO,
	".exr":  FormatEXR,
	".icns": FormatICNS,
}

// magics is checked in order; the first matching prefix wins.
var magics = []struct {
	format Format
	prefix []byte
}{
	{FormatPNG, png.Signature},
	{FormatJPEG, jpeg.SOI},
	{FormatBMP, []byte("BM")},
	{FormatICO, ico.Magic},
	{FormatEXR, exr.Magic},
	{FormatICNS, icns.Magic},
}

// DetectFormat sniffs the leading bytes of data. Grayscale JPEG is never
// reported; it shares the JPEG signature.
func DetectFormat(data []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(data, m.prefix) {
			return m.format
		}
	}
	return FormatUnknown
}

// FormatByName returns the format for a name such as "png" or "jpg".
func FormatByName(name string) (Format, error) {
	if f, ok := formatsByName[strings.ToLower(name)]; ok {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: unknown format %q", pixel.ErrPrecondition, name)
}

// FormatForExtension returns the format implied by a file name, or
// FormatUnknown.
func FormatForExtension(path string) Format {
	return formatsByExt[strings.ToLower(filepath.Ext(path))]
}

// NewCodec returns a fresh codec for f.
func NewCodec(f Format) (Codec, error) {
	switch f {
	case FormatPNG:
		return png.NewCodec(), nil
	case FormatJPEG:
		return jpeg.NewCodec(), nil
	case FormatGrayscaleJPEG:
		return jpeg.NewGrayscaleCodec(), nil
	case FormatBMP:
		return bmp.NewCodec(), nil
	case FormatICO:
		return ico.NewCodec(), nil
	case FormatEXR:
		return exr.NewCodec(), nil
	case FormatICNS:
		return icns.NewCodec(), nil
	}
	return nil, fmt.Errorf("%w: no codec for format %s", pixel.ErrUnsupported, f)
}

// New returns an empty wrapper for f. The caller owns it exclusively.
func New(f Format) (*Wrapper, error) {
	c, err := NewCodec(f)
	if err != nil {
		return nil, err
	}
	return NewWithCodec(f, c), nil
}

// Decode detects the format of data and decodes it in one step.
func Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, Format, error) {
	f := DetectFormat(data)
	w, err := New(f)
	if err != nil {
		return nil, f, err
	}
	if err := w.SetCompressed(data); err != nil {
		return nil, f, err
	}
	buf, err := w.RawBuffer(l, depth)
	if err != nil {
		return nil, f, err
	}
	return buf, f, nil
}
