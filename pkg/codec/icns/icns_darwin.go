//go:build darwin

package icns

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jpfielding/imagewrap.go/pkg/codec/png"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// Supported reports whether this platform can decode icns images.
const Supported = true

// sipsCommand is the system image service used for decoding. Tests may
// point it elsewhere.
var sipsCommand = "sips"

// decodeNative asks the system image service to render the best
// representation as PNG, then reads that back as 8-bit RGBA.
func decodeNative(data []byte) (*pixel.Buffer, error) {
	dir, err := os.MkdirTemp("", "icns-*")
	if err != nil {
		return nil, fmt.Errorf("icns: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.icns")
	out := filepath.Join(dir, "out.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("icns: %w", err)
	}
	msg, err := exec.Command(sipsCommand, "-s", "format", "png", in, "--out", out).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: icns: %s failed: %v: %s", pixel.ErrMalformed, sipsCommand, err, strings.TrimSpace(string(msg)))
	}
	rendered, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("icns: %s produced no output: %w", sipsCommand, err)
	}
	slog.Debug("icns native decode", slog.Int("bytes", len(data)), slog.Int("png_bytes", len(rendered)))
	return png.Decode(rendered, pixel.LayoutRGBA, 8)
}
