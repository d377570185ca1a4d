// Package exr converts between OpenEXR scanline files and pixel buffers on top
// of github.com/mrjoshuak/go-openexr.
//
// Decoding produces linear half-float samples by default. Encoding accepts 8,
// 16 and 32-bit sources: 8-bit values are gamma decoded to linear light, 16-bit
// samples are taken to be half floats and 32-bit samples float32. Output
// channels are named after the source layout.
//
// The library is reentrant, so calls are not serialized; a panic raised while
// parsing a damaged file is still returned as an error.
package exr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	openexr "github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/half"

	"github.com/jpfielding/imagewrap.go/pkg/codec/libcall"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// Magic is the 4-byte OpenEXR file identifier.
var Magic = []byte{0x76, 0x2f, 0x31, 0x01}

// Gamma is the transfer curve applied to 8-bit samples.
const Gamma = 2.2

// QualityUncompressed passed as the encode quality disables compression.
// Every other value, including 0, writes ZIP.
const QualityUncompressed = 1

const libName = "exr"

// Precision selects the sample type written for each channel.
type Precision int

const (
	// PrecisionAuto writes float for 32-bit sources and half otherwise.
	PrecisionAuto Precision = iota
	PrecisionHalf
	PrecisionFloat
)

func (p Precision) String() string {
	switch p {
	case PrecisionHalf:
		return "half"
	case PrecisionFloat:
		return "float"
	default:
		return "auto"
	}
}

// Options configures Encode.
type Options struct {
	Precision Precision
}

func (o Options) pixelType(depth int) openexr.PixelType {
	switch o.Precision {
	case PrecisionHalf:
		return openexr.PixelTypeHalf
	case PrecisionFloat:
		return openexr.PixelTypeFloat
	}
	if depth == 32 {
		return openexr.PixelTypeFloat
	}
	return openexr.PixelTypeHalf
}

// HasMagic reports whether data starts with the EXR magic number.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}

// ChannelNames returns the EXR channel names for a layout, in buffer order.
func ChannelNames(l pixel.Layout) []string {
	switch l {
	case pixel.LayoutRGBA:
		return []string{"R", "G", "B", "A"}
	case pixel.LayoutBGRA:
		return []string{"B", "G", "R", "A"}
	case pixel.LayoutGray:
		return []string{"G"}
	}
	return nil
}

// Info summarizes the first part of a file.
type Info struct {
	Header      pixel.Header
	Channels    []string
	Compression string
	Compressed  bool
}

// Inspect reads the header of data without decoding any pixels.
func Inspect(data []byte) (*Info, error) {
	if !HasMagic(data) {
		return nil, fmt.Errorf("%w: exr: missing magic number", pixel.ErrMalformed)
	}
	var info *Info
	err := libcall.Recover(libName, func() error {
		f, err := openexr.OpenReader(newMemStream(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("%w: exr: %v", pixel.ErrMalformed, err)
		}
		h := f.Header(0)
		if h == nil {
			return fmt.Errorf("%w: exr: no header", pixel.ErrMalformed)
		}
		dw := h.DataWindow()
		names := h.Channels().Names()
		comp := h.Compression()
		info = &Info{
			Header: pixel.Header{
				Width:    int(dw.Width()),
				Height:   int(dw.Height()),
				Layout:   layoutOf(names),
				BitDepth: 16,
			},
			Channels:    names,
			Compression: fmt.Sprint(comp),
			Compressed:  comp != openexr.CompressionNone,
		}
		return nil
	})
	if err != nil {
		return nil, asMalformed(err)
	}
	return info, nil
}

// ParseHeader reports the file's dimensions. Depth is always 16; the layout is
// Gray for files without red and blue channels and RGBA otherwise.
func ParseHeader(data []byte) (pixel.Header, error) {
	info, err := Inspect(data)
	if err != nil {
		return pixel.Header{}, err
	}
	return info.Header, nil
}

// MaxSamples bounds the number of channel samples Decode will allocate for
// one file. Windows above it are rejected before any pixel is read.
var MaxSamples = 1 << 26

// planes holds one linear float32 slice per recognised channel name. Slices
// are addressed relative to the data window origin.
type planes struct {
	w, h int
	ch   map[string]*openexr.Slice
}

func (p *planes) has(name string) bool {
	_, ok := p.ch[name]
	return ok
}

func (p *planes) at(name string, i int) (float32, bool) {
	s, ok := p.ch[name]
	if !ok {
		return 0, false
	}
	return s.GetFloat32(i%p.w, i/p.w), true
}

// sample returns channel name at pixel i, falling back to luminance or green
// for colour channels a monochrome file does not carry.
func (p *planes) sample(name string, i int) float32 {
	if v, ok := p.at(name, i); ok {
		return v
	}
	switch name {
	case "A":
		return 1
	case "R", "G", "B":
		if v, ok := p.at("Y", i); ok {
			return v
		}
		if v, ok := p.at("G", i); ok {
			return v
		}
	}
	return 0
}

func (p *planes) gray(i int) float32 {
	if v, ok := p.at("Y", i); ok {
		return v
	}
	if !p.has("R") && !p.has("B") {
		return p.sample("G", i)
	}
	return float32(0.299*float64(p.sample("R", i)) + 0.587*float64(p.sample("G", i)) + 0.114*float64(p.sample("B", i)))
}

// render interleaves the planes into a buffer of the requested shape.
func (p *planes) render(l pixel.Layout, depth int) (*pixel.Buffer, error) {
	out, err := pixel.New(pixel.Header{Width: p.w, Height: p.h, Layout: l, BitDepth: depth})
	if err != nil {
		return nil, err
	}
	names := ChannelNames(l)
	bps := depth / 8
	pos := 0
	for i := 0; i < p.w*p.h; i++ {
		for _, name := range names {
			var v float32
			if l == pixel.LayoutGray {
				v = p.gray(i)
			} else {
				v = p.sample(name, i)
			}
			putSample(out.Pix[pos:], depth, v)
			pos += bps
		}
	}
	return out, nil
}

func layoutOf(names []string) pixel.Layout {
	var r, b bool
	for _, n := range names {
		switch n {
		case "R":
			r = true
		case "B":
			b = true
		}
	}
	if !r && !b {
		return pixel.LayoutGray
	}
	return pixel.LayoutRGBA
}

// checkWindow rejects data windows the file cannot hold or that exceed
// MaxSamples, before anything is sized from them.
func checkWindow(w, ht, channels int, comp openexr.Compression, size int) error {
	if w <= 0 || ht <= 0 {
		return fmt.Errorf("%w: exr: empty data window", pixel.ErrMalformed)
	}
	// every chunk costs an 8-byte offset plus an 8-byte chunk header
	lines := max(int(comp.ScanlinesPerChunk()), 1)
	chunks := (ht + lines - 1) / lines
	if int64(chunks)*16 > int64(size) {
		return fmt.Errorf("%w: exr: %d chunks cannot fit in %d bytes", pixel.ErrMalformed, chunks, size)
	}
	if int64(w)*int64(ht)*int64(channels) > int64(MaxSamples) {
		return fmt.Errorf("%w: exr: %dx%d window with %d channels exceeds %d samples",
			pixel.ErrUnsupported, w, ht, channels, MaxSamples)
	}
	return nil
}

func readPlanes(data []byte) (*planes, error) {
	var p *planes
	err := libcall.Recover(libName, func() error {
		f, err := openexr.OpenReader(newMemStream(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("%w: exr: %v", pixel.ErrMalformed, err)
		}
		h := f.Header(0)
		if h == nil {
			return fmt.Errorf("%w: exr: no header", pixel.ErrMalformed)
		}
		if h.IsTiled() {
			return fmt.Errorf("%w: exr: tiled images", pixel.ErrUnsupported)
		}
		wanted := make([]string, 0, 5)
		for _, name := range h.Channels().Names() {
			switch name {
			case "R", "G", "B", "A", "Y":
				wanted = append(wanted, name)
			}
		}
		if len(wanted) == 0 {
			return fmt.Errorf("%w: exr: no R, G, B, A or Y channel", pixel.ErrUnsupported)
		}
		dw := h.DataWindow()
		w, ht := int(dw.Width()), int(dw.Height())
		if err := checkWindow(w, ht, len(wanted), h.Compression(), len(data)); err != nil {
			return err
		}

		r, err := openexr.NewScanlineReader(f)
		if err != nil {
			return fmt.Errorf("%w: exr: %v", pixel.ErrMalformed, err)
		}
		p = &planes{w: w, h: ht, ch: make(map[string]*openexr.Slice, len(wanted))}
		fb := openexr.NewFrameBuffer()
		for _, name := range wanted {
			s := openexr.NewSlice(openexr.PixelTypeFloat, make([]byte, w*ht*4), w, ht)
			fb.Set(name, s)
			p.ch[name] = &s
		}
		r.SetFrameBuffer(fb)
		if err := r.ReadPixels(int(dw.Min.Y), int(dw.Max.Y)); err != nil {
			return fmt.Errorf("%w: exr: %v", pixel.ErrMalformed, err)
		}
		slog.Debug("exr read",
			slog.Int("width", w),
			slog.Int("height", ht),
			slog.Int("min_x", int(dw.Min.X)),
			slog.Int("min_y", int(dw.Min.Y)),
			slog.Any("channels", wanted))
		return nil
	})
	if err != nil {
		return nil, asMalformed(err)
	}
	return p, nil
}

// asMalformed reports a library abort while parsing as a malformed file.
func asMalformed(err error) error {
	if errors.Is(err, libcall.ErrFatal) {
		return fmt.Errorf("%w: exr: %w", pixel.ErrMalformed, err)
	}
	return err
}

// Decode reads the first part of data. Depth 16 yields half floats and 32
// yields float32, both linear; depth 8 re-applies the gamma curve and clamps.
func Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if !HasMagic(data) {
		return nil, fmt.Errorf("%w: exr: missing magic number", pixel.ErrMalformed)
	}
	if l.Channels() == 0 || !pixel.ValidDepth(depth) {
		return nil, fmt.Errorf("%w: exr: cannot decode to %s/%d", pixel.ErrPrecondition, l, depth)
	}
	p, err := readPlanes(data)
	if err != nil {
		return nil, err
	}
	return p.render(l, depth)
}

// Convert reshapes a buffer holding EXR samples: 8-bit gamma encoded, 16-bit
// half or 32-bit float. Samples pass through linear float, so half bits are
// never treated as integers.
func Convert(buf *pixel.Buffer, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: exr: no pixel data", pixel.ErrPrecondition)
	}
	if len(buf.Pix) != buf.Size() {
		return nil, fmt.Errorf("%w: exr: buffer length %d does not match %s", pixel.ErrPrecondition, len(buf.Pix), buf.Header)
	}
	if l.Channels() == 0 || !pixel.ValidDepth(depth) {
		return nil, fmt.Errorf("%w: exr: cannot convert to %s/%d", pixel.ErrPrecondition, l, depth)
	}
	if buf.Matches(l, depth) {
		return buf.Clone(), nil
	}
	w, h := buf.Width, buf.Height
	names := ChannelNames(buf.Layout)
	nch, bps := len(names), buf.BitDepth/8
	p := &planes{w: w, h: h, ch: make(map[string]*openexr.Slice, nch)}
	for c, name := range names {
		s := openexr.NewSlice(openexr.PixelTypeFloat, make([]byte, w*h*4), w, h)
		for y := 0; y < h; y++ {
			row := buf.Row(y)
			for x := 0; x < w; x++ {
				s.SetFloat32(x, y, readSample(row[(x*nch+c)*bps:], buf.BitDepth))
			}
		}
		p.ch[name] = &s
	}
	return p.render(l, depth)
}

func putSample(dst []byte, depth int, v float32) {
	switch depth {
	case 8:
		dst[0] = toGamma8(v)
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(half.FromFloat32(v)))
	case 32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
	}
}

// fromGamma8 maps an 8-bit gamma encoded value to linear light.
func fromGamma8(b byte) float32 {
	return float32(math.Pow(float64(b)/255, Gamma))
}

func toGamma8(v float32) byte {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(math.Round(math.Pow(float64(v), 1/Gamma) * 255))
}

// Encode writes buf as a single-part scanline file. quality selects ZIP
// compression unless it equals QualityUncompressed.
func Encode(buf *pixel.Buffer, quality int, opts Options) ([]byte, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: exr: no pixel data", pixel.ErrPrecondition)
	}
	if err := buf.Header.Validate(); err != nil {
		return nil, err
	}
	if len(buf.Pix) != buf.Size() {
		return nil, fmt.Errorf("%w: exr: buffer length %d does not match %s", pixel.ErrPrecondition, len(buf.Pix), buf.Header)
	}

	w, h := buf.Width, buf.Height
	names := ChannelNames(buf.Layout)
	pt := opts.pixelType(buf.BitDepth)
	comp := openexr.CompressionZIP
	if quality == QualityUncompressed {
		comp = openexr.CompressionNone
	}

	header := openexr.NewScanlineHeader(w, h)
	header.SetCompression(comp)
	cl := openexr.NewChannelList()
	for _, name := range names {
		cl.Add(openexr.NewChannel(name, pt))
	}
	header.SetChannels(cl)

	fb := openexr.NewFrameBuffer()
	for _, name := range names {
		fb.Set(name, openexr.NewSlice(pt, make([]byte, w*h*pt.Size()), w, h))
	}
	nch := len(names)
	bps := buf.BitDepth / 8
	for c, name := range names {
		s := fb.Get(name)
		for y := 0; y < h; y++ {
			row := buf.Row(y)
			for x := 0; x < w; x++ {
				v := readSample(row[(x*nch+c)*bps:], buf.BitDepth)
				if pt == openexr.PixelTypeHalf {
					s.SetHalf(x, y, half.FromFloat32(v))
				} else {
					s.SetFloat32(x, y, v)
				}
			}
		}
	}

	ms := newMemStream(make([]byte, 0, w*h*nch*pt.Size()+1024))
	err := libcall.Recover(libName, func() error {
		wr, err := openexr.NewScanlineWriter(ms, header)
		if err != nil {
			return err
		}
		wr.SetFrameBuffer(fb)
		if err := wr.WritePixels(0, h-1); err != nil {
			wr.Close()
			return err
		}
		return wr.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("exr: write: %w", err)
	}
	slog.Debug("exr write",
		slog.String("source", buf.Header.String()),
		slog.Any("channels", names),
		slog.Int("sample_bytes", pt.Size()),
		slog.Bool("compressed", comp != openexr.CompressionNone),
		slog.Int64("bytes", ms.Size()))
	return ms.Bytes(), nil
}

func readSample(src []byte, depth int) float32 {
	switch depth {
	case 8:
		return fromGamma8(src[0])
	case 16:
		return half.FromBits(binary.LittleEndian.Uint16(src)).Float32()
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	}
}

// Codec adapts the package to the wrapper lifecycle.
type Codec struct {
	Options Options
}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "exr" }

func (c *Codec) ParseHeader(data []byte) (pixel.Header, error) {
	return ParseHeader(data)
}

func (c *Codec) Decode(data []byte, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Decode(data, l, depth)
}

func (c *Codec) Encode(buf *pixel.Buffer, quality int) ([]byte, error) {
	return Encode(buf, quality, c.Options)
}

func (c *Codec) Convert(buf *pixel.Buffer, l pixel.Layout, depth int) (*pixel.Buffer, error) {
	return Convert(buf, l, depth)
}
