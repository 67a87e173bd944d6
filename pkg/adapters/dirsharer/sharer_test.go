package dirsharer

import (
	"context"
	"errors"
	"testing"

	"github.com/user/framegrab/pkg/adapters/filesink"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/ports"
)

func TestShare_WritesAndReveals(t *testing.T) {
	fs := mocks.NewFileSystem()
	s := New(filesink.New("shared", fs, logger.NewNoop()), false, logger.NewNoop())
	var revealed string
	s.reveal = func(path string) error { revealed = path; return nil }

	err := s.Share(context.Background(), []ports.SharedFile{
		{Name: "a.jpg", Data: []byte("A")},
		{Name: "b.jpg", Data: []byte("B")},
	})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if len(fs.GetAllFiles()) != 2 {
		t.Errorf("expected 2 files, got %d", len(fs.GetAllFiles()))
	}
	if revealed != "shared" {
		t.Errorf("expected the folder to be revealed, got %q", revealed)
	}
}

func TestShare_Failures(t *testing.T) {
	fs := mocks.NewFileSystem()
	s := New(filesink.New("shared", fs, logger.NewNoop()), false, logger.NewNoop())

	if err := s.Share(context.Background(), nil); !errors.Is(err, ErrNothingToShare) {
		t.Errorf("expected ErrNothingToShare, got %v", err)
	}

	s.reveal = func(string) error { return errors.New("no file manager") }
	if err := s.Share(context.Background(), []ports.SharedFile{{Name: "a.jpg"}}); err == nil {
		t.Error("expected a reveal failure to fail the share")
	}
}
