// Package ffmpegsource is a ports.VideoSource backed by a media file. Seeks
// decode the target frame in the background and settle when it is ready.
package ffmpegsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// ErrClosed is returned by operations on a closed source.
var ErrClosed = errors.New("source closed")

// Source implements ports.VideoSource.
type Source struct {
	info      ports.SourceInfo
	container ports.ContainerInfo
	decoder   Decoder
	logger    ports.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pos      time.Duration
	frame    image.Image
	seekGen  uint64
	paused   bool
	controls bool
	closed   bool
	subs     map[int]chan ports.SettleEvent
	nextSub  int
}

// Open probes path and returns a paused source positioned at zero.
func Open(ctx context.Context, path string, prober ports.Prober, decoder Decoder, logger ports.Logger) (*Source, error) {
	container, err := prober.Probe(path)
	if err != nil {
		return nil, err
	}
	info := ports.SourceInfo{
		Path:     path,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Width:    container.Width,
		Height:   container.Height,
		Duration: container.Duration,
	}
	return newSource(ctx, info, container, decoder, logger), nil
}

func newSource(ctx context.Context, info ports.SourceInfo, container ports.ContainerInfo, decoder Decoder, logger ports.Logger) *Source {
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Source{
		info:      info,
		container: container,
		decoder:   decoder,
		logger:    logger.WithComponent("source"),
		ctx:       lifetime,
		cancel:    cancel,
		paused:    true,
		controls:  true,
		subs:      make(map[int]chan ports.SettleEvent),
	}
}

func (s *Source) Info() ports.SourceInfo { return s.info }

// Container returns what the prober learned about the file.
func (s *Source) Container() ports.ContainerInfo { return s.container }

func (s *Source) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Seek moves to pos and decodes the frame there in the background. Only
// the latest seek settles; a superseded decode is discarded. The settle
// event carries pos as requested even when the decode position was
// clamped, and carries the decode error when no frame could be read.
func (s *Source) Seek(pos time.Duration) error {
	requested := pos
	pos = s.clamp(pos)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seekGen++
	gen := s.seekGen
	s.pos = pos
	s.frame = nil
	s.mu.Unlock()

	go func() {
		img, err := s.decoder.DecodeAt(s.ctx, s.info.Path, pos)

		s.mu.Lock()
		if s.closed || gen != s.seekGen {
			s.mu.Unlock()
			return
		}
		if err == nil {
			s.frame = img
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("Decoding frame at %v failed: %v", pos, err)
		}
		s.emit(ports.SettleEvent{Position: requested, At: time.Now(), Err: err})
	}()
	return nil
}

// clamp keeps pos inside the media. With a sample index the last frame's
// time is the limit, since decoding at the very end yields nothing.
func (s *Source) clamp(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if n := len(s.container.SampleTimes); n > 0 {
		last := s.container.SampleTimes[0]
		for _, t := range s.container.SampleTimes[1:] {
			if t > last {
				last = t
			}
		}
		if pos > last {
			return last
		}
		return pos
	}
	if d := s.info.Duration; d > 0 && pos > d {
		return d
	}
	return pos
}

func (s *Source) emit(ev ports.SettleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Source) Subscribe() (<-chan ports.SettleEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan ports.SettleEvent, 16)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Frame returns the frame decoded by the last settled seek, decoding the
// current position when there is none.
func (s *Source) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.frame != nil {
		img := s.frame
		s.mu.Unlock()
		return img, nil
	}
	pos := s.pos
	s.mu.Unlock()

	img, err := s.decoder.DecodeAt(s.ctx, s.info.Path, pos)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.pos == pos {
		s.frame = img
	}
	s.mu.Unlock()
	return img, nil
}

// Play presents the container's samples from the current position at
// their own pace. Frames are not decoded during playback.
func (s *Source) Play(ctx context.Context) (<-chan ports.FrameTick, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.paused = false
	start := s.pos
	s.mu.Unlock()

	times := s.presentationTimes(start)
	ch := make(chan ports.FrameTick)
	go func() {
		defer close(ch)
		defer func() {
			s.mu.Lock()
			s.paused = true
			s.mu.Unlock()
		}()

		clock := time.Now()
		for _, mt := range times {
			if wait := time.Until(clock.Add(mt - start)); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				case <-s.ctx.Done():
					return
				}
			}
			if s.Paused() {
				return
			}

			s.mu.Lock()
			s.pos = mt
			s.frame = nil
			s.mu.Unlock()

			select {
			case ch <- ports.FrameTick{MediaTime: mt, At: time.Now()}:
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// presentationTimes lists the sample times at or after start. Containers
// without a readable index fall back to the declared frame rate.
func (s *Source) presentationTimes(start time.Duration) []time.Duration {
	times := append([]time.Duration(nil), s.container.SampleTimes...)
	if len(times) == 0 && s.container.DeclaredFPS > 0 {
		step := time.Duration(math.Round(float64(time.Second) / s.container.DeclaredFPS))
		for t := time.Duration(0); t < s.info.Duration; t += step {
			times = append(times, t)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	i := sort.Search(len(times), func(i int) bool { return times[i] >= start })
	return times[i:]
}

func (s *Source) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.paused = true
	return nil
}

func (s *Source) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Source) SetControls(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = enabled
}

func (s *Source) ControlsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls
}

// Duplicate opens an independent source over the same file.
func (s *Source) Duplicate(ctx context.Context) (ports.VideoSource, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("duplicate %s: %w", s.info.Name, err)
	}
	return newSource(ctx, s.info, s.container, s.decoder, s.logger), nil
}

// Close stops pending decodes and closes every subscription.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	return nil
}

var _ ports.VideoSource = (*Source)(nil)
