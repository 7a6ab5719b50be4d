package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSHA256(t *testing.T) {
	// Well-known SHA-256 of "hello world".
	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		ComputeSHA256([]byte("hello world")))

	// Deterministic.
	assert.Equal(t, ComputeSHA256([]byte{1, 2, 3}), ComputeSHA256([]byte{1, 2, 3}))
	assert.NotEqual(t, ComputeSHA256([]byte{1, 2, 3}), ComputeSHA256([]byte{1, 2, 4}))
}

func TestResolveOutputPathWithoutTimestamp(t *testing.T) {
	base := t.TempDir()

	path, err := ResolveOutputPath(base, "alice", "img.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alice", "img.jpg"), path)

	info, err := os.Stat(filepath.Join(base, "alice"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveOutputPathWithTimestamp(t *testing.T) {
	base := t.TempDir()
	modified := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	path, err := ResolveOutputPath(base, "alice", "img.jpg", &modified)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alice", "2024", "03", "img.jpg"), path)

	info, err := os.Stat(filepath.Join(base, "alice", "2024", "03"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveOutputPathIdempotent(t *testing.T) {
	base := t.TempDir()

	first, err := ResolveOutputPath(base, "bob", "a.raw", nil)
	require.NoError(t, err)
	second, err := ResolveOutputPath(base, "bob", "a.raw", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, SaveFile(path, []byte("payload")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestUploadDir(t *testing.T) {
	first := t.TempDir()
	second := filepath.Join(t.TempDir(), "nested", "dir")

	d, err := NewUploadDir(first)
	require.NoError(t, err)
	assert.Equal(t, first, d.Get())

	require.NoError(t, d.Set(second))
	assert.Equal(t, second, d.Get())

	// Set creates the target.
	info, err := os.Stat(second)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	var seen string
	err = d.WithRead(func(base string) error {
		seen = base
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, second, seen)
}
