package thumbs

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGenerateFromBytes(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir, 320, 240, 75, true)

	require.NoError(t, g.GenerateFromBytes("h1", encodeTestImage(t, 800, 600)))
	assert.FileExists(t, filepath.Join(dir, "h1.jpg"))
}

func TestGenerateSkipsNonImage(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir, 320, 240, 75, true)

	// A non-decodable payload is a no-op, not an error.
	require.NoError(t, g.GenerateFromBytes("h2", []byte("not an image at all")))
	assert.NoFileExists(t, filepath.Join(dir, "h2.jpg"))
}

func TestGenerateLeavesExistingAlone(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "h3.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("client-provided"), 0644))

	g := NewGenerator(dir, 320, 240, 75, true)
	require.NoError(t, g.GenerateFromBytes("h3", encodeTestImage(t, 100, 100)))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("client-provided"), data)
}

func TestGenerateDisabledAndNil(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir, 320, 240, 75, false)
	require.NoError(t, g.GenerateFromBytes("h4", encodeTestImage(t, 100, 100)))
	assert.NoFileExists(t, filepath.Join(dir, "h4.jpg"))

	var nilGen *Generator
	require.NoError(t, nilGen.GenerateFromBytes("h5", nil))
}
