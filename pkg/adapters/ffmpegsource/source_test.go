package ffmpegsource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/ports"
)

// stubDecoder paints each frame with a shade derived from its position.
type stubDecoder struct {
	mu    sync.Mutex
	delay map[time.Duration]time.Duration
	calls []time.Duration
}

func (d *stubDecoder) DecodeAt(ctx context.Context, path string, pos time.Duration) (image.Image, error) {
	d.mu.Lock()
	d.calls = append(d.calls, pos)
	wait := d.delay[pos]
	d.mu.Unlock()

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(0, 0, color.Gray{Y: uint8(pos / (100 * time.Millisecond))})
	return img, nil
}

type stubProber struct{ info ports.ContainerInfo }

func (p stubProber) Probe(string) (ports.ContainerInfo, error) { return p.info, nil }

func openStub(t *testing.T, dec Decoder, container ports.ContainerInfo) *Source {
	t.Helper()
	if dec == nil {
		dec = &stubDecoder{}
	}
	src, err := Open(context.Background(), "/videos/holiday.mp4", stubProber{container}, dec, logger.NewNoop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func shade(img image.Image) uint8 {
	return img.(*image.Gray).GrayAt(0, 0).Y
}

func TestOpen_DescribesSource(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Width: 1280, Height: 720, Duration: 5 * time.Second})
	info := src.Info()
	if info.Name != "holiday" || info.Width != 1280 || info.Duration != 5*time.Second {
		t.Errorf("unexpected info %+v", info)
	}
	if !src.Paused() || !src.ControlsEnabled() {
		t.Errorf("expected a paused source with controls")
	}
}

func TestSeek_SettlesWithDecodedFrame(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Duration: 5 * time.Second})
	events, stop := src.Subscribe()
	defer stop()

	if err := src.Seek(1500 * time.Millisecond); err != nil {
		t.Fatalf("seek: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Position != 1500*time.Millisecond {
			t.Errorf("unexpected settle position %v", ev.Position)
		}
	case <-time.After(time.Second):
		t.Fatal("seek never settled")
	}

	img, err := src.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if shade(img) != 15 {
		t.Errorf("expected the frame at 1.5s, got shade %d", shade(img))
	}
}

func TestSeek_OnlyLatestSettles(t *testing.T) {
	dec := &stubDecoder{delay: map[time.Duration]time.Duration{time.Second: 50 * time.Millisecond}}
	src := openStub(t, dec, ports.ContainerInfo{Duration: 5 * time.Second})
	events, stop := src.Subscribe()
	defer stop()

	src.Seek(time.Second)
	src.Seek(2 * time.Second)

	ev := <-events
	if ev.Position != 2*time.Second {
		t.Fatalf("expected the latest seek to settle, got %v", ev.Position)
	}
	select {
	case ev := <-events:
		t.Errorf("superseded seek settled at %v", ev.Position)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSeek_ClampsToDuration(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Duration: time.Second})
	src.Seek(3 * time.Second)
	if src.Position() != time.Second {
		t.Errorf("expected clamp to 1s, got %v", src.Position())
	}
}

func TestPlay_TicksContainerSamples(t *testing.T) {
	times := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Duration: time.Second, SampleTimes: times})
	src.Seek(10 * time.Millisecond)

	ticks, err := src.Play(context.Background())
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	var got []time.Duration
	for tick := range ticks {
		got = append(got, tick.MediaTime)
	}
	if len(got) != 3 || got[0] != 10*time.Millisecond || got[2] != 30*time.Millisecond {
		t.Errorf("unexpected ticks %v", got)
	}
	if !src.Paused() {
		t.Errorf("source should pause at the end of the media")
	}
}

func TestPlay_DeclaredRateFallback(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Duration: 100 * time.Millisecond, DeclaredFPS: 50})
	if got := src.presentationTimes(0); len(got) != 5 || got[1] != 20*time.Millisecond {
		t.Errorf("unexpected synthesized times %v", got)
	}
}

func TestDuplicate_IsIndependent(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{Duration: 5 * time.Second})
	dupSrc, err := src.Duplicate(context.Background())
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	dup := dupSrc.(*Source)

	dup.Seek(3 * time.Second)
	if src.Position() != 0 {
		t.Errorf("seeking the duplicate moved the original")
	}
	dup.Close()
	if _, err := dup.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from a closed duplicate, got %v", err)
	}
	if err := src.Seek(time.Second); err != nil {
		t.Errorf("original must stay usable: %v", err)
	}
}

func TestClose_ClosesSubscriptions(t *testing.T) {
	src := openStub(t, &stubDecoder{}, ports.ContainerInfo{})
	events, _ := src.Subscribe()
	src.Close()
	if _, ok := <-events; ok {
		t.Errorf("expected the subscription to be closed")
	}
	if err := src.Seek(0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFindFFmpeg_CustomPathMissing(t *testing.T) {
	_, err := FindFFmpeg("/definitely/not/here/ffmpeg")
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
}

type failingDecoder struct {
	stubDecoder
	after time.Duration
}

func (d *failingDecoder) DecodeAt(ctx context.Context, path string, pos time.Duration) (image.Image, error) {
	if pos > d.after {
		return nil, errors.New("no frame at position")
	}
	return d.stubDecoder.DecodeAt(ctx, path, pos)
}

func TestSeek_DecodeFailureStillSettles(t *testing.T) {
	src := openStub(t, &failingDecoder{after: 850 * time.Millisecond}, ports.ContainerInfo{Duration: time.Second})
	events, stop := src.Subscribe()
	defer stop()

	src.Seek(900 * time.Millisecond)
	select {
	case ev := <-events:
		if ev.Err == nil {
			t.Errorf("expected the decode error on the settle event")
		}
		if ev.Position != 900*time.Millisecond {
			t.Errorf("unexpected settle position %v", ev.Position)
		}
	case <-time.After(time.Second):
		t.Fatal("a failed decode must still settle")
	}
}

func TestSeek_ClampedSeekReportsRequestedPosition(t *testing.T) {
	times := []time.Duration{0, 400 * time.Millisecond, 800 * time.Millisecond}
	dec := &stubDecoder{}
	src := openStub(t, dec, ports.ContainerInfo{Duration: time.Second, SampleTimes: times})
	events, stop := src.Subscribe()
	defer stop()

	src.Seek(1500 * time.Millisecond)
	ev := <-events
	if ev.Err != nil || ev.Position != 1500*time.Millisecond {
		t.Errorf("unexpected settle event %+v", ev)
	}
	dec.mu.Lock()
	defer dec.mu.Unlock()
	if len(dec.calls) != 1 || dec.calls[0] != 800*time.Millisecond {
		t.Errorf("expected a decode at the last sample, got %v", dec.calls)
	}
}
