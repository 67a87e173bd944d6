// Package ggrenderer provides a rasterizer implementation using the gg library.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/framegrab/pkg/ports"
)

// Renderer implements ports.Rasterizer using gg surfaces.
type Renderer struct {
	// Scaler is used when a frame is drawn at a different size.
	Scaler draw.Scaler
}

// New creates a Renderer using Catmull-Rom scaling.
func New() *Renderer {
	return &Renderer{Scaler: draw.CatmullRom}
}

// NewSurface creates a transparent surface.
func (r *Renderer) NewSurface(width, height int) ports.Surface {
	return &Surface{dc: gg.NewContext(width, height), scaler: r.Scaler}
}

// Encode encodes img. WebP has no encoder and yields ports.ErrUnsupportedFormat.
func (r *Renderer) Encode(img image.Image, format ports.ImageFormat, quality float64) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: jpegQuality(quality)}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// jpegQuality maps [0,1] onto the encoder's 1-100 scale.
func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

var _ ports.Rasterizer = (*Renderer)(nil)

// Surface implements ports.Surface on a gg.Context.
type Surface struct {
	dc     *gg.Context
	scaler draw.Scaler
}

// DrawScaled draws img over the whole surface.
func (s *Surface) DrawScaled(img image.Image) {
	dst, ok := s.dc.Image().(draw.Image)
	if !ok {
		return
	}
	src := img.Bounds()
	if src.Dx() == s.dc.Width() && src.Dy() == s.dc.Height() {
		s.dc.DrawImage(img, 0, 0)
		return
	}
	s.scaler.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
}

// Image returns the surface contents.
func (s *Surface) Image() image.Image {
	return s.dc.Image()
}

var _ ports.Surface = (*Surface)(nil)
