// Package sampler captures the currently presented frame of a video source
// as an encoded image.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// ErrEmptyFrame is returned when the source has no decoded frame.
var ErrEmptyFrame = errors.New("source has no frame")

// Sampler draws the source's current frame onto a fresh surface and encodes it.
type Sampler struct {
	raster ports.Rasterizer
	logger ports.Logger
}

// New creates a Sampler.
func New(raster ports.Rasterizer, logger ports.Logger) *Sampler {
	return &Sampler{
		raster: raster,
		logger: logger.WithComponent("sampler"),
	}
}

// Execute implements pipeline.Stage.
func (s *Sampler) Execute(ctx context.Context, in pipeline.CaptureInput) (pipeline.CapturedFrame, error) {
	return s.Capture(ctx, in.Source, in.Request)
}

// Capture encodes the frame the source presents right now. It does not
// seek; req.Position is informational. Every failure is a *pipeline.CaptureError.
func (s *Sampler) Capture(ctx context.Context, src ports.VideoSource, req pipeline.FrameRequest) (pipeline.CapturedFrame, error) {
	pos := src.Position()
	fail := func(err error) (pipeline.CapturedFrame, error) {
		return pipeline.CapturedFrame{}, &pipeline.CaptureError{Position: pos, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	img, err := src.Frame()
	if err != nil {
		return fail(fmt.Errorf("read frame: %w", err))
	}
	if img == nil || img.Bounds().Empty() {
		return fail(ErrEmptyFrame)
	}

	info := src.Info()
	nativeW, nativeH := info.Width, info.Height
	if nativeW == 0 || nativeH == 0 {
		nativeW, nativeH = img.Bounds().Dx(), img.Bounds().Dy()
	}
	w, h := TargetSize(nativeW, nativeH, req.Width, req.Height)

	format := req.Format
	if format == "" {
		format = ports.FormatJPEG
	}

	surface := s.raster.NewSurface(w, h)
	surface.DrawScaled(img)

	data, err := s.raster.Encode(surface.Image(), format, req.EffectiveQuality())
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(errors.New("encoder produced no data"))
	}

	mediaType := mimetype.Detect(data).String()
	s.logger.Debug("Captured %dx%d %s at %.3fs", w, h, mediaType, pos.Seconds())

	return pipeline.CapturedFrame{
		Data:      data,
		MediaType: mediaType,
		Format:    format,
		Position:  pos,
		Width:     w,
		Height:    h,
	}, nil
}

// TargetSize resolves the output size. Zero requested dimensions fall back
// to the native size; a single requested dimension keeps the aspect ratio.
func TargetSize(nativeW, nativeH, reqW, reqH int) (int, int) {
	switch {
	case reqW > 0 && reqH > 0:
		return reqW, reqH
	case reqW > 0 && nativeW > 0:
		return reqW, atLeastOne(reqW * nativeH / nativeW)
	case reqH > 0 && nativeH > 0:
		return atLeastOne(reqH * nativeW / nativeH), reqH
	default:
		return nativeW, nativeH
	}
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// FrameName returns "<base>-<seconds with two decimals>.<ext>".
func FrameName(base string, pos time.Duration, format ports.ImageFormat) string {
	if format == "" {
		format = ports.FormatJPEG
	}
	return fmt.Sprintf("%s-%.2f.%s", base, pos.Seconds(), format.Extension())
}

var _ pipeline.Stage[pipeline.CaptureInput, pipeline.CapturedFrame] = (*Sampler)(nil)
