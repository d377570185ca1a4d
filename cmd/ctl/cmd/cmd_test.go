package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xbmp "golang.org/x/image/bmp"

	"github.com/jpfielding/imagewrap.go/pkg/imagewrap"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRoot(context.Background(), "test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func writeBMP(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 11)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, xbmp.Encode(&buf, img))
	path := filepath.Join(dir, "in.bmp")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestConvertDecodeInspect(t *testing.T) {
	dir := t.TempDir()
	in := writeBMP(t, dir)

	pngPath := filepath.Join(dir, "out.png")
	run(t, "convert", in, "--out", pngPath)
	data, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.Equal(t, imagewrap.FormatPNG, imagewrap.DetectFormat(data))

	exrPath := filepath.Join(dir, "out.exr")
	run(t, "convert", pngPath, "--out", exrPath, "--precision", "half", "--uncompressed")
	data, err = os.ReadFile(exrPath)
	require.NoError(t, err)
	assert.Equal(t, imagewrap.FormatEXR, imagewrap.DetectFormat(data))

	rawPath := filepath.Join(dir, "out.raw")
	run(t, "decode", "--uri", pngPath, "--layout", "BGRA", "--out", rawPath)
	raw, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Len(t, raw, 3*2*4)

	var r report
	require.NoError(t, json.Unmarshal([]byte(run(t, "inspect", exrPath)), &r))
	assert.Equal(t, "exr", r.Format)
	assert.Equal(t, 3, r.Width)
	assert.Equal(t, 2, r.Height)
	require.NotNil(t, r.EXR)
	assert.False(t, r.EXR.Compressed)
	assert.NotEmpty(t, r.EXR.Compression)
	assert.Empty(t, r.Error)

	text := run(t, "analyze", in, "--format", "text")
	assert.Contains(t, text, "Format: bmp")
	assert.Contains(t, text, "Size: 3x2 BGRA/8")
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	in := writeBMP(t, dir)
	bmpData, err := os.ReadFile(in)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/in.bmp" {
			http.NotFound(w, r)
			return
		}
		w.Write(bmpData)
	}))
	defer srv.Close()

	out := run(t, "detect", in, srv.URL+"/in.bmp")
	assert.Contains(t, out, in+"\tbmp\n")
	assert.Contains(t, out, srv.URL+"/in.bmp\tbmp\n")

	root := NewRoot(context.Background(), "test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"detect", srv.URL + "/missing.bmp"})
	assert.Error(t, root.Execute())
}

func TestConvert_TargetErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeBMP(t, dir)
	for _, args := range [][]string{
		{"convert", in, "--out", filepath.Join(dir, "out.unknown")},
		{"convert", in, "--out", filepath.Join(dir, "out.exr"), "--precision", "double"},
		{"convert", in, "--out", filepath.Join(dir, "out.bmp")},
	} {
		root := NewRoot(context.Background(), "test")
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		assert.Error(t, root.Execute(), args)
	}
}

func TestTargetDepth(t *testing.T) {
	assert.Equal(t, 16, targetDepth(imagewrap.FormatEXR, 16))
	assert.Equal(t, 16, targetDepth(imagewrap.FormatPNG, 32))
	assert.Equal(t, 8, targetDepth(imagewrap.FormatPNG, 8))
	assert.Equal(t, 8, targetDepth(imagewrap.FormatJPEG, 16))
}
