//go:build !darwin

package icns

import "github.com/jpfielding/imagewrap.go/pkg/pixel"

// Supported reports whether this platform can decode icns images.
const Supported = false

func decodeNative([]byte) (*pixel.Buffer, error) {
	return nil, ErrUnsupportedPlatform
}
