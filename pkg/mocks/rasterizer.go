package mocks

import (
	"image"

	"github.com/user/framegrab/pkg/ports"
)

// Rasterizer is a mock implementation of ports.Rasterizer.
// Its default Encode returns the format's magic bytes so media type
// sniffing still works.
type Rasterizer struct {
	EncodeFunc func(img image.Image, format ports.ImageFormat, quality float64) ([]byte, error)

	Surfaces []*Surface
}

func (m *Rasterizer) NewSurface(width, height int) ports.Surface {
	s := &Surface{Width: width, Height: height}
	m.Surfaces = append(m.Surfaces, s)
	return s
}

func (m *Rasterizer) Encode(img image.Image, format ports.ImageFormat, quality float64) ([]byte, error) {
	if m.EncodeFunc != nil {
		return m.EncodeFunc(img, format, quality)
	}
	switch format {
	case ports.FormatJPEG:
		return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, nil
	case ports.FormatPNG:
		return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, nil
	default:
		return nil, ports.ErrUnsupportedFormat
	}
}

var _ ports.Rasterizer = (*Rasterizer)(nil)

// Surface is a mock implementation of ports.Surface.
type Surface struct {
	Width  int
	Height int
	Drawn  int
}

func (s *Surface) DrawScaled(img image.Image) { s.Drawn++ }

func (s *Surface) Image() image.Image {
	return image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
}

var _ ports.Surface = (*Surface)(nil)
