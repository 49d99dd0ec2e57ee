// Package image loads diffraction frames and composites them into the
// background the prediction overlay is drawn on.
package image

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned for files whose extension is not a known
// image format.
var ErrUnsupportedFormat = errors.New("image: unsupported format")

// Frame is one detector image.
type Frame struct {
	Path    string      // Original file path
	Image   image.Image // Decoded pixels
	Format  string      // Format name reported by the decoder
	Visible bool
	Opacity float64 // 0.0 - 1.0
}

// NewFrame wraps an already decoded image.
func NewFrame(img image.Image) *Frame {
	return &Frame{
		Image:   img,
		Visible: true,
		Opacity: 1.0,
	}
}

// Load decodes a PNG, JPEG or TIFF frame from path.
func Load(path string) (*Frame, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	frame := NewFrame(img)
	frame.Path = path
	frame.Format = format
	return frame, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Centre returns the pixel centre of the frame, the usual first guess for
// the beam centre.
func (f *Frame) Centre() (float64, float64) {
	return float64(f.Width()) / 2, float64(f.Height()) / 2
}

// SavePNG encodes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
