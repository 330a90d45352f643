package imagecheck

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padTo(header []byte, size int) []byte {
	b := make([]byte, size)
	copy(b, header)
	return b
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Kind
	}{
		{
			name: "jpeg",
			data: padTo([]byte{0xff, 0xd8, 0xff, 0xe0}, 2048),
			want: JPEG,
		},
		{
			name: "png",
			data: padTo([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 2048),
			want: PNG,
		},
		{
			name: "tiff little endian",
			data: padTo([]byte{'I', 'I', 0x2a, 0x00}, 2048),
			want: TIFF,
		},
		{
			name: "tiff big endian",
			data: padTo([]byte{'M', 'M', 0x00, 0x2a}, 2048),
			want: TIFF,
		},
		{
			name: "html challenge page",
			data: padTo([]byte("<!DOCTYPE html><html><head>"), 2048),
			want: Invalid,
		},
		{
			name: "jpeg header but truncated below minimum size",
			data: padTo([]byte{0xff, 0xd8, 0xff}, MinValidSize-1),
			want: Invalid,
		},
		{
			name: "empty",
			data: nil,
			want: Invalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.data))
		})
	}
}

func TestClassifyExactMinimumSize(t *testing.T) {
	data := padTo([]byte{0xff, 0xd8, 0xff}, MinValidSize)
	assert.Equal(t, JPEG, Classify(data))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "jpeg", JPEG.String())
	assert.Equal(t, "png", PNG.String())
	assert.Equal(t, "tiff", TIFF.String())
	assert.Equal(t, "invalid", Invalid.String())
}

func TestIsValidImage(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "good.jpg")
	require.NoError(t, os.WriteFile(valid, padTo([]byte{0xff, 0xd8, 0xff}, 4096), 0644))
	assert.True(t, IsValidImage(valid))

	small := filepath.Join(dir, "small.jpg")
	require.NoError(t, os.WriteFile(small, []byte{0xff, 0xd8, 0xff}, 0644))
	assert.False(t, IsValidImage(small))

	html := filepath.Join(dir, "challenge.jpg")
	require.NoError(t, os.WriteFile(html, padTo([]byte("<html><body>verify you are human"), 4096), 0644))
	assert.False(t, IsValidImage(html))

	assert.False(t, IsValidImage(filepath.Join(dir, "missing.jpg")))
}

func TestHasValidNative(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasValidNative(dir))

	// An invalid native under one extension does not count.
	require.NoError(t, os.WriteFile(NativePath(dir, ".jpg"), bytes.Repeat([]byte{0}, 4096), 0644))
	assert.False(t, HasValidNative(dir))

	// A valid one under another extension does.
	require.NoError(t, os.WriteFile(NativePath(dir, ".tif"), padTo([]byte{'I', 'I', 0x2a, 0x00}, 4096), 0644))
	assert.True(t, HasValidNative(dir))
}

func TestFindNativeFiles(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindNativeFiles(dir))

	require.NoError(t, os.WriteFile(NativePath(dir, ".jpg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(NativePath(dir, ".png"), []byte("x"), 0644))

	found := FindNativeFiles(dir)
	assert.Len(t, found, 2)
	assert.Contains(t, found, NativePath(dir, ".jpg"))
	assert.Contains(t, found, NativePath(dir, ".png"))
}
