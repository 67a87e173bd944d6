package framerate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// ErrNoSamples is returned when no interval could be observed.
var ErrNoSamples = errors.New("no frame intervals observed")

// DefaultWindow is how long PlaybackEstimator plays the duplicate source.
const DefaultWindow = 2 * time.Second

// Estimate is a detected frame rate.
type Estimate struct {
	Rate    int
	Samples int
	Method  string
}

// Estimator detects the frame rate of a source.
type Estimator interface {
	Estimate(ctx context.Context, src ports.VideoSource) (Estimate, error)
}

// PlaybackEstimator plays a muted duplicate of the source for a window
// and builds a histogram from presented media times. The preview is never
// touched and the duplicate is closed on every path.
type PlaybackEstimator struct {
	Window   time.Duration
	TieBreak TieBreak
	logger   ports.Logger
}

// NewPlaybackEstimator creates an estimator with the default window.
func NewPlaybackEstimator(logger ports.Logger) *PlaybackEstimator {
	return &PlaybackEstimator{
		Window: DefaultWindow,
		logger: logger.WithComponent("framerate"),
	}
}

// Estimate implements Estimator.
func (e *PlaybackEstimator) Estimate(ctx context.Context, src ports.VideoSource) (Estimate, error) {
	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}

	dup, err := src.Duplicate(ctx)
	if err != nil {
		return Estimate{}, fmt.Errorf("duplicate source: %w", err)
	}
	defer dup.Close()

	playCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	e.logger.Debug("Detecting frame rate")
	ticks, err := dup.Play(playCtx)
	if err != nil {
		return Estimate{}, fmt.Errorf("play duplicate: %w", err)
	}

	// The first presented frame has no predecessor and is only used as
	// the reference for the second.
	h := NewHistogram()
	var last time.Duration
	seen := false
	for tick := range ticks {
		if seen {
			h.AddInterval(tick.MediaTime - last)
		}
		last, seen = tick.MediaTime, true
	}
	dup.Pause()

	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}
	if h.Total() == 0 {
		return Estimate{}, ErrNoSamples
	}

	rate := h.Mode(e.TieBreak)
	e.logger.Debug("Detected %d fps from %d samples", rate, h.Total())
	return Estimate{Rate: rate, Samples: h.Total(), Method: "playback"}, nil
}

// ContainerEstimator builds the histogram from the container's sample
// index instead of playing the media, falling back to the codec-declared
// rate.
type ContainerEstimator struct {
	Prober   ports.Prober
	TieBreak TieBreak
}

// Estimate implements Estimator.
func (e *ContainerEstimator) Estimate(ctx context.Context, src ports.VideoSource) (Estimate, error) {
	info, err := e.Prober.Probe(src.Info().Path)
	if err != nil {
		return Estimate{}, fmt.Errorf("probe container: %w", err)
	}

	return FromSampleTimes(info.SampleTimes, info.DeclaredFPS, e.TieBreak)
}

// FromSampleTimes builds the histogram from container sample times,
// falling back to the declared rate when fewer than two samples exist.
func FromSampleTimes(sampleTimes []time.Duration, declared float64, tb TieBreak) (Estimate, error) {
	times := append([]time.Duration(nil), sampleTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	h := NewHistogram()
	for i := 1; i < len(times); i++ {
		h.AddInterval(times[i] - times[i-1])
	}
	if h.Total() > 0 {
		return Estimate{Rate: h.Mode(tb), Samples: h.Total(), Method: "container"}, nil
	}
	if declared > 0 {
		return Estimate{Rate: int(math.Round(declared)), Method: "declared"}, nil
	}
	return Estimate{}, ErrNoSamples
}

// Chain tries each estimator in order and returns the first success.
type Chain []Estimator

// Estimate implements Estimator.
func (c Chain) Estimate(ctx context.Context, src ports.VideoSource) (Estimate, error) {
	var errs []error
	for _, est := range c {
		res, err := est.Estimate(ctx, src)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Estimate{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Estimate{}, ErrNoSamples
	}
	return Estimate{}, errors.Join(errs...)
}
