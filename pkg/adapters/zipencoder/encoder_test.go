package zipencoder

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

func TestWriter_DuplicateDropped(t *testing.T) {
	var buf bytes.Buffer
	w := New().NewWriter(&buf)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := w.Add("frame.jpg", now, []byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Add("frame.jpg", now, []byte("second")); !errors.Is(err, ports.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if err := w.Add("other.jpg", now, []byte("third")); err != nil {
		t.Fatalf("writer should stay usable: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}

	rc, _ := zr.File[0].Open()
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "first" {
		t.Errorf("expected the first write to win, got %q", data)
	}
	if zr.File[0].Method != zip.Store {
		t.Errorf("expected stored entries, got method %d", zr.File[0].Method)
	}
}

func TestDeflate(t *testing.T) {
	var buf bytes.Buffer
	w := NewDeflate().NewWriter(&buf)
	w.Add("a.png", time.Now(), bytes.Repeat([]byte("x"), 4096))
	w.Close()

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if zr.File[0].Method != zip.Deflate {
		t.Errorf("expected deflate, got %d", zr.File[0].Method)
	}
}
