package ports

import (
	"context"
	"image"
	"time"
)

// SourceInfo describes a loaded video.
type SourceInfo struct {
	Path     string
	Name     string // base name without extension, used for export file names
	Width    int
	Height   int
	Duration time.Duration
}

// SettleEvent reports that a seek completed. Position is the requested
// position. When Err is nil the frame there is decoded and presentable;
// otherwise the seek finished without a frame.
type SettleEvent struct {
	Position time.Duration
	At       time.Time
	Err      error
}

// FrameTick is emitted for every frame presented during playback.
type FrameTick struct {
	MediaTime time.Duration
	At        time.Time
}

// VideoSource abstracts a playable, seekable video with a current frame.
//
// Seek is asynchronous: it returns once the request is accepted and the
// completion is delivered to subscribers as a SettleEvent. Only the latest
// seek is guaranteed to settle; superseded seeks may never report.
type VideoSource interface {
	Info() SourceInfo

	// Position returns the current media time.
	Position() time.Duration

	// Seek requests a move to pos.
	Seek(pos time.Duration) error

	// Subscribe returns a channel of settle notifications and a function
	// that stops delivery. The channel is closed when the source closes.
	Subscribe() (<-chan SettleEvent, func())

	// Frame returns the currently decoded image.
	Frame() (image.Image, error)

	// Play starts playback from the current position. Ticks are delivered
	// until ctx is done, Pause is called or the media ends; the channel is
	// closed afterwards.
	Play(ctx context.Context) (<-chan FrameTick, error)
	Pause() error
	Paused() bool

	// SetControls enables or disables user interaction with the source.
	SetControls(enabled bool)
	ControlsEnabled() bool

	// Duplicate opens a muted, hidden copy of the same media with its own
	// position. The caller owns the copy and must Close it.
	Duplicate(ctx context.Context) (VideoSource, error)

	Close() error
}
