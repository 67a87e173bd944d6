// Package seeksync drives a video source from position to position,
// returning only once the source reports the requested frame as settled.
package seeksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// Mode selects which source the synchronizer drives.
type Mode int

const (
	// ModePrimary drives the user's interactive source under an exclusive
	// lease with its controls disabled.
	ModePrimary Mode = iota
	// ModePrivate drives a duplicate created for the job.
	ModePrivate
)

func (m Mode) String() string {
	if m == ModePrivate {
		return "private"
	}
	return "primary"
}

// State is the synchronizer's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSeeking
	StateSettled
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeking:
		return "seeking"
	case StateSettled:
		return "settled"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when Advance is called while another Advance is in flight.
	ErrBusy = errors.New("seek already in progress")
	// ErrPrimaryInUse is returned when the primary source is already leased.
	ErrPrimaryInUse = errors.New("primary source is leased by another job")
	// ErrReleased is returned by operations on a released synchronizer.
	ErrReleased = errors.New("synchronizer released")
)

// DefaultSettleTimeout bounds how long Advance waits for a settle event.
const DefaultSettleTimeout = 10 * time.Second

// Options configures a Synchronizer.
type Options struct {
	// SettleTimeout bounds each Advance. Zero means DefaultSettleTimeout.
	SettleTimeout time.Duration
	// Tolerance is the largest difference between the requested and the
	// reported position that still counts as the requested frame.
	Tolerance time.Duration
}

// primaryLeases holds the sources currently leased in primary mode.
var primaryLeases sync.Map

// Synchronizer serializes seeks on one source.
type Synchronizer struct {
	origin ports.VideoSource
	src    ports.VideoSource
	mode   Mode
	opts   Options
	logger ports.Logger

	busy     atomic.Bool
	mu       sync.Mutex
	state    State
	released bool
}

// Acquire prepares src for a job. In primary mode the source is paused and
// its controls are disabled until Release. In private mode a duplicate is
// opened and paused; the original is left untouched.
func Acquire(ctx context.Context, src ports.VideoSource, mode Mode, opts Options, logger ports.Logger) (*Synchronizer, error) {
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	s := &Synchronizer{
		origin: src,
		mode:   mode,
		opts:   opts,
		logger: logger.WithComponent("seeksync"),
	}

	switch mode {
	case ModePrivate:
		dup, err := src.Duplicate(ctx)
		if err != nil {
			return nil, &pipeline.SourceStateError{Op: "duplicate", Position: src.Position(), Err: err}
		}
		if err := dup.Pause(); err != nil {
			dup.Close()
			return nil, &pipeline.SourceStateError{Op: "pause", Position: dup.Position(), Err: err}
		}
		s.src = dup
		s.logger.Debug("Duplicate source opened for %s", src.Info().Name)
	default:
		if _, loaded := primaryLeases.LoadOrStore(src, struct{}{}); loaded {
			return nil, ErrPrimaryInUse
		}
		if err := src.Pause(); err != nil {
			primaryLeases.Delete(src)
			return nil, &pipeline.SourceStateError{Op: "pause", Position: src.Position(), Err: err}
		}
		src.SetControls(false)
		s.src = src
	}

	return s, nil
}

// Source returns the source captures must read from.
func (s *Synchronizer) Source() ports.VideoSource {
	return s.src
}

// Mode returns the acquisition mode.
func (s *Synchronizer) Mode() Mode {
	return s.mode
}

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDone || s.state == StateAborted {
		return
	}
	s.state = st
}

// Advance seeks to target and blocks until the source reports a settle
// event for it. The returned event's At is never later than the return.
// A seek that settles without a frame is reported as a
// *pipeline.CaptureError; the synchronizer stays usable for the next
// target. A missing settle, a rejected seek or a closed source is reported
// as a *pipeline.SourceStateError and moves the synchronizer to
// StateAborted.
func (s *Synchronizer) Advance(ctx context.Context, target time.Duration) (ports.SettleEvent, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return ports.SettleEvent{}, ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return ports.SettleEvent{}, ErrReleased
	}

	fail := func(err error) (ports.SettleEvent, error) {
		s.setState(StateAborted)
		return ports.SettleEvent{}, &pipeline.SourceStateError{Op: "seek", Position: target, Err: err}
	}

	// Subscribe before seeking so a fast settle is not missed.
	events, unsubscribe := s.src.Subscribe()
	defer unsubscribe()

	s.setState(StateSeeking)
	s.logger.Debug("Seeking to %.3fs", target.Seconds())
	if err := s.src.Seek(target); err != nil {
		return fail(err)
	}

	timer := time.NewTimer(s.opts.SettleTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fail(pipeline.ErrSourceClosed)
			}
			if !s.matches(ev.Position, target) {
				continue
			}
			s.setState(StateSettled)
			if ev.Err != nil {
				return ev, &pipeline.CaptureError{Position: target, Err: ev.Err}
			}
			return ev, nil
		case <-timer.C:
			return fail(fmt.Errorf("%w after %s", pipeline.ErrNotSettled, s.opts.SettleTimeout))
		case <-ctx.Done():
			return fail(ctx.Err())
		}
	}
}

func (s *Synchronizer) matches(got, want time.Duration) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= s.opts.Tolerance
}

// Release ends the job's hold on the source. Primary controls are
// re-enabled unconditionally; a private duplicate is closed. Release is
// idempotent and safe to defer on every path.
func (s *Synchronizer) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	if s.state != StateAborted {
		s.state = StateDone
	}
	s.mu.Unlock()

	if s.mode == ModePrivate {
		return s.src.Close()
	}
	s.src.SetControls(true)
	primaryLeases.Delete(s.origin)
	s.logger.Debug("Controls re-enabled on %s", s.origin.Info().Name)
	return nil
}
