package ports

import (
	"errors"
	"image"
	"strings"
)

// ErrUnsupportedFormat is returned by a Rasterizer that cannot encode the
// requested image format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Rasterizer abstracts the drawing surface used to capture frames.
type Rasterizer interface {
	// NewSurface allocates a blank surface of the given size.
	NewSurface(width, height int) Surface

	// Encode encodes img as format. Quality is in [0,1] and ignored by
	// lossless formats.
	Encode(img image.Image, format ImageFormat, quality float64) ([]byte, error)
}

// Surface is a drawing target owned by a single capture.
type Surface interface {
	// DrawScaled draws img stretched over the whole surface.
	DrawScaled(img image.Image)

	Image() image.Image
}

// ImageFormat specifies an image encoding.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// ParseImageFormat parses a format name. "jpg" is accepted as an alias.
func ParseImageFormat(s string) (ImageFormat, bool) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// Extension returns the file extension without the dot.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// MediaType returns the MIME type for the format.
func (f ImageFormat) MediaType() string {
	return "image/" + string(f)
}
