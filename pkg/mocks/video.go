package mocks

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// ErrClosed is returned by a closed VideoSource.
var ErrClosed = errors.New("mock source closed")

// VideoSource is an in-memory ports.VideoSource.
// Seeks settle asynchronously after SettleDelay unless DropSettles is set.
type VideoSource struct {
	mu       sync.Mutex
	info     ports.SourceInfo
	pos      time.Duration
	paused   bool
	controls bool
	closed   bool
	subs     map[int]chan ports.SettleEvent
	nextSub  int

	SettleDelay   time.Duration
	DropSettles   bool
	SeekFunc      func(pos time.Duration) error
	SettleErrFunc func(pos time.Duration) error
	FrameFunc     func(pos time.Duration) (image.Image, error)
	DuplicateFunc func(ctx context.Context) (ports.VideoSource, error)

	// Ticks are the media times reported by Play, in order.
	Ticks []time.Duration

	Seeks          []time.Duration
	ControlHistory []bool
	Duplicates     []*VideoSource
	CloseCount     int
}

// NewVideoSource creates a paused source with controls enabled.
func NewVideoSource(info ports.SourceInfo) *VideoSource {
	return &VideoSource{
		info:     info,
		paused:   true,
		controls: true,
		subs:     make(map[int]chan ports.SettleEvent),
	}
}

func (m *VideoSource) Info() ports.SourceInfo { return m.info }

func (m *VideoSource) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *VideoSource) Seek(pos time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.Seeks = append(m.Seeks, pos)
	if m.SeekFunc != nil {
		if err := m.SeekFunc(pos); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.pos = pos
	drop, delay, settleErr := m.DropSettles, m.SettleDelay, m.SettleErrFunc
	m.mu.Unlock()

	if drop {
		return nil
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		ev := ports.SettleEvent{Position: pos, At: time.Now()}
		if settleErr != nil {
			ev.Err = settleErr(pos)
		}
		m.Emit(ev)
	}()
	return nil
}

// Emit delivers a settle event to every subscriber.
func (m *VideoSource) Emit(ev ports.SettleEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *VideoSource) Subscribe() (<-chan ports.SettleEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan ports.SettleEvent, 64)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *VideoSource) Frame() (image.Image, error) {
	pos := m.Position()
	if m.FrameFunc != nil {
		return m.FrameFunc(pos)
	}
	w, h := m.info.Width, m.info.Height
	if w == 0 || h == 0 {
		w, h = 16, 9
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := uint8(pos / (10 * time.Millisecond))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255})
		}
	}
	return img, nil
}

func (m *VideoSource) Play(ctx context.Context) (<-chan ports.FrameTick, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.paused = false
	ticks := append([]time.Duration(nil), m.Ticks...)
	m.mu.Unlock()

	ch := make(chan ports.FrameTick)
	go func() {
		defer close(ch)
		defer func() {
			m.mu.Lock()
			m.paused = true
			m.mu.Unlock()
		}()
		for _, mt := range ticks {
			if m.Paused() {
				return
			}
			select {
			case ch <- ports.FrameTick{MediaTime: mt, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (m *VideoSource) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return nil
}

func (m *VideoSource) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *VideoSource) SetControls(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = enabled
	m.ControlHistory = append(m.ControlHistory, enabled)
}

func (m *VideoSource) ControlsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controls
}

func (m *VideoSource) Duplicate(ctx context.Context) (ports.VideoSource, error) {
	if m.DuplicateFunc != nil {
		return m.DuplicateFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	dup := NewVideoSource(m.info)
	dup.Ticks = m.Ticks
	dup.FrameFunc = m.FrameFunc
	dup.SettleDelay = m.SettleDelay
	dup.SettleErrFunc = m.SettleErrFunc
	m.Duplicates = append(m.Duplicates, dup)
	return dup, nil
}

func (m *VideoSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCount++
	if m.closed {
		return nil
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	return nil
}

// Closed reports whether Close was called.
func (m *VideoSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SeekCount returns the number of seeks requested so far.
func (m *VideoSource) SeekCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Seeks)
}

var _ ports.VideoSource = (*VideoSource)(nil)
