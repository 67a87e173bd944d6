package pipeline

import (
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// =============================================================================
// Capture Types
// =============================================================================

// DefaultQuality is used when a FrameRequest leaves Quality at zero.
const DefaultQuality = 0.9

// FrameRequest describes one frame to capture. Zero Width and Height mean
// the source's native size; if only one is set the other keeps the aspect
// ratio.
type FrameRequest struct {
	Position time.Duration
	Width    int
	Height   int
	Format   ports.ImageFormat
	Quality  float64 // 0-1, ignored for lossless formats
}

// EffectiveQuality returns Quality or DefaultQuality when unset.
func (r FrameRequest) EffectiveQuality() float64 {
	if r.Quality <= 0 || r.Quality > 1 {
		return DefaultQuality
	}
	return r.Quality
}

// CaptureInput is the input of the capture stage.
type CaptureInput struct {
	Source  ports.VideoSource
	Request FrameRequest
}

// CapturedFrame is an encoded frame. MediaType is detected from Data.
type CapturedFrame struct {
	Data      []byte
	MediaType string
	Format    ports.ImageFormat
	Position  time.Duration
	Width     int
	Height    int
}

// =============================================================================
// Archive Types
// =============================================================================

// ArchiveEntry is a named frame destined for an archive sink.
type ArchiveEntry struct {
	Name  string
	Frame CapturedFrame
}

// =============================================================================
// Job Types
// =============================================================================

// ExportJob is a live, user-visible export with bounded progress.
type ExportJob struct {
	ID          string
	Description string
	Progress    int
	Max         int
	StartedAt   time.Time
}

// Done reports whether progress reached its bound.
func (j ExportJob) Done() bool {
	return j.Progress >= j.Max
}
