// Package imagecheck classifies downloaded blobs by their magic-byte header.
//
// The origin's bot protection answers rejected asset requests with an HTML
// challenge page that is otherwise indistinguishable from a real payload, so
// every downloaded file is gated through this check before it is trusted.
// Only the header prefix is inspected; this is a fast gate, not a full image
// integrity check.
package imagecheck

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Kind is the closed set of classification results.
type Kind int

const (
	Invalid Kind = iota
	JPEG
	PNG
	TIFF
)

func (k Kind) String() string {
	switch k {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	case TIFF:
		return "tiff"
	default:
		return "invalid"
	}
}

const (
	// MinValidSize rejects truncated or empty downloads regardless of header.
	MinValidSize = 1000

	// headerWindow is how many leading bytes classification looks at.
	headerWindow = 20
)

var (
	jpegMagic   = []byte{0xff, 0xd8, 0xff}
	pngMagic    = []byte{0x89, 'P', 'N', 'G'}
	tiffLittle  = []byte{'I', 'I', 0x2a, 0x00}
	tiffBig     = []byte{'M', 'M', 0x00, 0x2a}
)

// NativeExtensions are the recognized file extensions for the native image,
// in probe order.
var NativeExtensions = []string{".jpg", ".tif", ".png", ".jpeg", ".tiff"}

// Classify reports the image format of a blob, or Invalid. Blobs shorter than
// MinValidSize are always Invalid.
func Classify(b []byte) Kind {
	if len(b) < MinValidSize {
		return Invalid
	}
	header := b
	if len(header) > headerWindow {
		header = header[:headerWindow]
	}
	switch {
	case bytes.HasPrefix(header, jpegMagic):
		return JPEG
	case bytes.HasPrefix(header, pngMagic):
		return PNG
	case bytes.HasPrefix(header, tiffLittle), bytes.HasPrefix(header, tiffBig):
		return TIFF
	default:
		return Invalid
	}
}

// IsValidImage reports whether the file at path exists and classifies as a
// supported image format.
func IsValidImage(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() < MinValidSize {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, headerWindow)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	// The size check above already guarantees MinValidSize on disk, so
	// classify the header with the size gate satisfied.
	return classifyHeader(header[:n]) != Invalid
}

func classifyHeader(header []byte) Kind {
	switch {
	case bytes.HasPrefix(header, jpegMagic):
		return JPEG
	case bytes.HasPrefix(header, pngMagic):
		return PNG
	case bytes.HasPrefix(header, tiffLittle), bytes.HasPrefix(header, tiffBig):
		return TIFF
	default:
		return Invalid
	}
}

// NativePath returns the native-image path in dir for an extension.
func NativePath(dir, ext string) string {
	return filepath.Join(dir, "image_native"+ext)
}

// HasValidNative reports whether dir holds a validator-passing native image
// under any recognized extension.
func HasValidNative(dir string) bool {
	for _, ext := range NativeExtensions {
		if IsValidImage(NativePath(dir, ext)) {
			return true
		}
	}
	return false
}

// FindNativeFiles returns the paths of all native-image files present in dir,
// valid or not.
func FindNativeFiles(dir string) []string {
	var found []string
	for _, ext := range NativeExtensions {
		p := NativePath(dir, ext)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}
