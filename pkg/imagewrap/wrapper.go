// Package imagewrap is the format-independent front end of the codec set: a
// Wrapper holds one compressed blob and one pixel buffer for a single image
// and converts between them through a format Codec. The registry detects
// formats by their leading bytes and creates wrappers.
package imagewrap

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// Codec is implemented by every format package.
type Codec interface {
	// Name returns the codec identifier (e.g., "png")
	Name() string
	// ParseHeader reads dimensions and the natural layout without decoding pixels
	ParseHeader(data []byte) (pixel.Header, error)
	// Decode decompresses data into the requested layout and depth
	Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error)
	// Encode compresses buf; quality 0 selects the format default
	Encode(buf *pixel.Buffer, quality int) ([]byte, error)
}

// Converter is implemented by codecs whose samples are not plain integers,
// such as EXR half floats. The wrapper uses it instead of pixel.Convert.
type Converter interface {
	Convert(buf *pixel.Buffer, l pixel.Layout, depth int) (*pixel.Buffer, error)
}

// Wrapper is the per-image codec state. The compressed blob and the pixel
// buffer always describe the same image: setting one discards the other.
// A Wrapper must not be mutated concurrently.
type Wrapper struct {
	format Format
	codec  Codec
	header pixel.Header

	blob        []byte
	blobEncoded bool // produced by Compressed rather than supplied
	blobQuality int

	raw  *pixel.Buffer // supplied through SetRaw or decoded from blob
	view *pixel.Buffer // raw converted to the last other requested shape

	lastErr error
}

// NewWithCodec wraps an explicit codec, e.g. one with non-default options.
func NewWithCodec(f Format, c Codec) *Wrapper {
	return &Wrapper{format: f, codec: c}
}

func (w *Wrapper) fail(err error) error {
	w.lastErr = err
	slog.Debug("image wrapper call failed",
		slog.String("format", w.format.String()),
		slog.String("codec", w.codec.Name()),
		slog.Any("error", err))
	return err
}

// SetCompressed parses the header of data and stores a copy of it. Any pixel
// buffer is discarded. On failure the previous state is kept.
func (w *Wrapper) SetCompressed(data []byte) error {
	w.lastErr = nil
	if len(data) == 0 {
		return w.fail(fmt.Errorf("%w: %s: empty compressed data", pixel.ErrPrecondition, w.format))
	}
	h, err := w.codec.ParseHeader(data)
	if err != nil {
		return w.fail(err)
	}
	w.blob = bytes.Clone(data)
	w.blobEncoded = false
	w.blobQuality = 0
	w.raw, w.view = nil, nil
	w.header = h
	slog.Debug("compressed data set",
		slog.String("format", w.format.String()),
		slog.Int("bytes", len(data)),
		slog.String("header", h.String()))
	return nil
}

// SetRaw stores a copy of uncompressed pixels. The length of data must match
// the described shape exactly. Any compressed blob is discarded. On failure
// the previous state is kept.
func (w *Wrapper) SetRaw(data []byte, width, height int, l pixel.Layout, depth int) error {
	w.lastErr = nil
	buf, err := pixel.FromBytes(data, pixel.Header{Width: width, Height: height, Layout: l, BitDepth: depth})
	if err != nil {
		return w.fail(err)
	}
	w.raw, w.view = buf, nil
	w.blob, w.blobEncoded, w.blobQuality = nil, false, 0
	w.header = buf.Header
	return nil
}

// Compressed returns the compressed image. Data supplied through
// SetCompressed is returned unchanged whatever the quality; otherwise the
// pixels are encoded, and the result is reused for the same quality.
func (w *Wrapper) Compressed(quality int) ([]byte, error) {
	w.lastErr = nil
	if w.blob != nil && (!w.blobEncoded || w.blobQuality == quality) {
		return bytes.Clone(w.blob), nil
	}
	if w.raw == nil {
		return nil, w.fail(fmt.Errorf("%w: %s: no pixel data to compress", pixel.ErrPrecondition, w.format))
	}
	data, err := w.codec.Encode(w.raw, quality)
	if err != nil {
		return nil, w.fail(err)
	}
	w.blob, w.blobEncoded, w.blobQuality = data, true, quality
	slog.Debug("pixels compressed",
		slog.String("format", w.format.String()),
		slog.Int("quality", quality),
		slog.Int("bytes", len(data)))
	return bytes.Clone(data), nil
}

// Raw returns the pixels in the requested layout and depth.
func (w *Wrapper) Raw(l pixel.Layout, depth int) ([]byte, error) {
	buf, err := w.RawBuffer(l, depth)
	if err != nil {
		return nil, err
	}
	return buf.Pix, nil
}

// RawBuffer is Raw with the shape attached. The returned buffer is a copy.
func (w *Wrapper) RawBuffer(l pixel.Layout, depth int) (*pixel.Buffer, error) {
	w.lastErr = nil
	if l.Channels() == 0 || !pixel.ValidDepth(depth) {
		return nil, w.fail(fmt.Errorf("%w: %s: cannot produce %s/%d", pixel.ErrPrecondition, w.format, l, depth))
	}
	for _, b := range []*pixel.Buffer{w.raw, w.view} {
		if b != nil && b.Matches(l, depth) {
			return b.Clone(), nil
		}
	}

	switch {
	case w.blob != nil && !w.blobEncoded:
		buf, err := w.codec.Decode(w.blob, l, depth)
		if err != nil {
			return nil, w.fail(err)
		}
		w.raw, w.view = buf, nil
		slog.Debug("compressed data decoded",
			slog.String("format", w.format.String()),
			slog.String("buffer", buf.Header.String()))
		return buf.Clone(), nil

	case w.raw != nil:
		// pixels came from SetRaw: convert without a lossy encode/decode trip
		buf, err := w.convert(w.raw, l, depth)
		if err != nil {
			return nil, w.fail(err)
		}
		w.view = buf
		return buf.Clone(), nil
	}
	return nil, w.fail(fmt.Errorf("%w: %s: no image data set", pixel.ErrPrecondition, w.format))
}

func (w *Wrapper) convert(buf *pixel.Buffer, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if c, ok := w.codec.(Converter); ok {
		return c.Convert(buf, l, depth)
	}
	return pixel.Convert(buf, l, depth)
}

// Width of the image as reported by the header or SetRaw.
func (w *Wrapper) Width() int { return w.header.Width }

// Height of the image as reported by the header or SetRaw.
func (w *Wrapper) Height() int { return w.header.Height }

// Layout is the natural layout of the source image.
func (w *Wrapper) Layout() pixel.Layout { return w.header.Layout }

// BitDepth is the natural bits per channel of the source image.
func (w *Wrapper) BitDepth() int { return w.header.BitDepth }

// Header returns the source image shape.
func (w *Wrapper) Header() pixel.Header { return w.header }

// Format returns the wrapper's format.
func (w *Wrapper) Format() Format { return w.format }

// CodecName returns the name of the underlying codec.
func (w *Wrapper) CodecName() string { return w.codec.Name() }

// Err returns the error of the last failed call, or nil if the last call
// succeeded.
func (w *Wrapper) Err() error { return w.lastErr }

// LastError returns the text of Err, or "".
func (w *Wrapper) LastError() string {
	if w.lastErr == nil {
		return ""
	}
	return w.lastErr.Error()
}
