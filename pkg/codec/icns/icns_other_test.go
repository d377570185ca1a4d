//go:build !darwin

package icns

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

func TestPlatformGate(t *testing.T) {
	assert.False(t, Supported)

	_, img := pngElement(t)
	data := buildICNS(element{"ic07", img})

	_, err := Decode(data, pixel.LayoutRGBA, 8)
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
	_, err = ParseHeader(data)
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
	_, err = NewCodec().Encode(&pixel.Buffer{}, 0)
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))

	// the container can still be listed
	_, err = ReadTOC(data)
	assert.NoError(t, err)
}
