package seeksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

func newSource() *mocks.VideoSource {
	return mocks.NewVideoSource(ports.SourceInfo{Name: "clip", Width: 16, Height: 9, Duration: 10 * time.Second})
}

func TestAdvance_ReturnsAfterSettle(t *testing.T) {
	src := newSource()
	src.SettleDelay = 20 * time.Millisecond

	s, err := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release()

	start := time.Now()
	ev, err := s.Advance(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	returned := time.Now()

	if ev.Position != 2*time.Second {
		t.Errorf("expected settle at 2s, got %v", ev.Position)
	}
	if ev.At.After(returned) {
		t.Errorf("settle event %v is later than return %v", ev.At, returned)
	}
	if returned.Sub(start) < 20*time.Millisecond {
		t.Errorf("advance returned before the settle delay elapsed")
	}
	if s.State() != StateSettled {
		t.Errorf("expected settled state, got %s", s.State())
	}
}

func TestAdvance_Timeout(t *testing.T) {
	src := newSource()
	src.DropSettles = true

	s, err := Acquire(context.Background(), src, ModePrimary, Options{SettleTimeout: 30 * time.Millisecond}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err = s.Advance(context.Background(), time.Second)
	var se *pipeline.SourceStateError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceStateError, got %v", err)
	}
	if !errors.Is(err, pipeline.ErrNotSettled) {
		t.Errorf("expected ErrNotSettled, got %v", err)
	}
	if s.State() != StateAborted {
		t.Errorf("expected aborted state, got %s", s.State())
	}

	s.Release()
	if !src.ControlsEnabled() {
		t.Error("expected controls re-enabled after release on failure path")
	}
}

func TestAdvance_SourceClosed(t *testing.T) {
	src := newSource()
	src.DropSettles = true

	s, err := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release()

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.Close()
	}()

	_, err = s.Advance(context.Background(), time.Second)
	if !errors.Is(err, pipeline.ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
}

func TestAdvance_SeekRejected(t *testing.T) {
	src := newSource()
	src.SeekFunc = func(time.Duration) error { return errors.New("not seekable") }

	s, _ := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	defer s.Release()

	_, err := s.Advance(context.Background(), time.Second)
	var se *pipeline.SourceStateError
	if !errors.As(err, &se) || se.Position != time.Second {
		t.Errorf("expected SourceStateError at 1s, got %v", err)
	}
}

func TestAdvance_ContextCancelled(t *testing.T) {
	src := newSource()
	src.DropSettles = true

	s, _ := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	defer s.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Advance(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAdvance_Busy(t *testing.T) {
	src := newSource()
	src.SettleDelay = 50 * time.Millisecond

	s, _ := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	defer s.Release()

	done := make(chan error, 1)
	go func() {
		_, err := s.Advance(context.Background(), time.Second)
		done <- err
	}()

	// Wait until the first seek is issued.
	for src.SeekCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Advance(context.Background(), 2*time.Second); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first advance failed: %v", err)
	}
}

func TestAdvance_IgnoresOtherPositions(t *testing.T) {
	src := newSource()
	src.DropSettles = true

	s, _ := Acquire(context.Background(), src, ModePrimary, Options{SettleTimeout: time.Second}, logger.NewNoop())
	defer s.Release()

	// A settle for a stale seek arrives first, then the requested one.
	go func() {
		for src.SeekCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		src.Emit(ports.SettleEvent{Position: 500 * time.Millisecond, At: time.Now()})
		src.Emit(ports.SettleEvent{Position: 3 * time.Second, At: time.Now()})
	}()

	ev, err := s.Advance(context.Background(), 3*time.Second)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if ev.Position != 3*time.Second {
		t.Errorf("expected settle for 3s, got %v", ev.Position)
	}
}

func TestPrimaryLease(t *testing.T) {
	src := newSource()

	s, err := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if src.ControlsEnabled() {
		t.Error("expected controls disabled while leased")
	}
	if !src.Paused() {
		t.Error("expected source paused while leased")
	}

	if _, err := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop()); !errors.Is(err, ErrPrimaryInUse) {
		t.Errorf("expected ErrPrimaryInUse, got %v", err)
	}

	s.Release()
	s.Release()
	if !src.ControlsEnabled() {
		t.Error("expected controls re-enabled")
	}
	if s.State() != StateDone {
		t.Errorf("expected done state, got %s", s.State())
	}

	again, err := Acquire(context.Background(), src, ModePrimary, Options{}, logger.NewNoop())
	if err != nil {
		t.Fatalf("expected lease to be free after release: %v", err)
	}
	again.Release()

	if _, err := s.Advance(context.Background(), time.Second); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
}

func TestPrivateMode(t *testing.T) {
	src := newSource()

	s, err := Acquire(context.Background(), src, ModePrivate, Options{}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(src.Duplicates) != 1 {
		t.Fatalf("expected one duplicate, got %d", len(src.Duplicates))
	}
	dup := src.Duplicates[0]
	if s.Source() != dup {
		t.Error("expected synchronizer to drive the duplicate")
	}

	if _, err := s.Advance(context.Background(), 4*time.Second); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if src.SeekCount() != 0 {
		t.Error("expected the original source to stay untouched")
	}
	if len(src.ControlHistory) != 0 {
		t.Error("expected original controls untouched in private mode")
	}

	s.Release()
	if !dup.Closed() {
		t.Error("expected duplicate closed on release")
	}
}

func TestPrivateMode_DuplicateFails(t *testing.T) {
	src := newSource()
	src.DuplicateFunc = func(context.Context) (ports.VideoSource, error) {
		return nil, errors.New("no decoder")
	}

	_, err := Acquire(context.Background(), src, ModePrivate, Options{}, logger.NewNoop())
	var se *pipeline.SourceStateError
	if !errors.As(err, &se) || se.Op != "duplicate" {
		t.Errorf("expected duplicate SourceStateError, got %v", err)
	}
}

func TestAdvance_UndecodableFrameIsCaptureError(t *testing.T) {
	src := newSource()
	src.SettleErrFunc = func(pos time.Duration) error {
		if pos == time.Second {
			return errors.New("no frame")
		}
		return nil
	}

	s, err := Acquire(context.Background(), src, ModePrimary, Options{SettleTimeout: time.Second}, logger.NewNoop())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release()

	_, err = s.Advance(context.Background(), time.Second)
	var ce *pipeline.CaptureError
	if !errors.As(err, &ce) || ce.Position != time.Second {
		t.Fatalf("expected a CaptureError at 1s, got %v", err)
	}
	if s.State() == StateAborted {
		t.Errorf("an undecodable frame must not abort the synchronizer")
	}
	if _, err := s.Advance(context.Background(), 2*time.Second); err != nil {
		t.Errorf("the next target must still advance: %v", err)
	}
}
