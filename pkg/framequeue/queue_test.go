package framequeue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
)

func TestQueue(t *testing.T) {
	q := New()
	q.Add(Item{Name: "a", Position: time.Second})
	q.Add(Item{Name: "b", Position: 2 * time.Second})
	if n := q.Add(Item{Name: "c", Position: 3 * time.Second}); n != 3 {
		t.Fatalf("expected length 3, got %d", n)
	}

	if err := q.Remove(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := q.List()
	if len(items) != 2 || items[0].Name != "a" || items[1].Name != "c" {
		t.Errorf("unexpected items %+v", items)
	}
	if items[0].AddedAt.IsZero() {
		t.Error("AddedAt should be stamped")
	}

	// List returns a copy.
	items[0].Name = "changed"
	if q.List()[0].Name != "a" {
		t.Error("List leaked internal storage")
	}

	if err := q.Remove(5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	q.Clear()
	if q.Len() != 0 {
		t.Error("expected empty queue")
	}
}

func TestStore_RoundTripsPositions(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state", "queue.yaml"))

	q, stale, err := store.Load("/videos/clip.mp4")
	if err != nil || stale || q.Len() != 0 {
		t.Fatalf("expected an empty queue from a missing file, got %d items, stale=%v, err=%v", q.Len(), stale, err)
	}

	q.Add(Item{Position: 1500 * time.Millisecond})
	q.Add(Item{Name: "named.png", Position: 3 * time.Second, Frame: &pipeline.CapturedFrame{Data: []byte("x")}})
	if err := store.Save("/videos/clip.mp4", q); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, _, err := store.Load("/videos/clip.mp4")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	items := again.List()
	if len(items) != 2 || items[0].Position != 1500*time.Millisecond || items[1].Name != "named.png" {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[1].Frame != nil {
		t.Errorf("captured frames are not stored")
	}
}

func TestStore_OtherVideoAndClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "queue.yaml"))
	q := New()
	q.Add(Item{Position: time.Second})
	if err := store.Save("/videos/a.mp4", q); err != nil {
		t.Fatalf("save: %v", err)
	}

	other, stale, err := store.Load("/videos/b.mp4")
	if err != nil || !stale || other.Len() != 0 {
		t.Errorf("a queue kept for another video must not leak: len=%d stale=%v err=%v", other.Len(), stale, err)
	}

	if err := store.Save("/videos/a.mp4", New()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the file to be removed, got %v", err)
	}
}
