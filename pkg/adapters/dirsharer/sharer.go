// Package dirsharer shares files by writing them to a folder and revealing
// it in the desktop file manager.
package dirsharer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkg/browser"

	"github.com/user/framegrab/pkg/ports"
)

// ErrNothingToShare is returned for an empty share request.
var ErrNothingToShare = errors.New("nothing to share")

// Saver stores each shared file. filesink.Sink implements it.
type Saver interface {
	ports.Saver
	Dir() string
}

// Sharer implements ports.Sharer.
type Sharer struct {
	files  Saver
	reveal func(path string) error
	logger ports.Logger
}

// New creates a Sharer. reveal may be nil to only write the files.
func New(files Saver, reveal bool, logger ports.Logger) *Sharer {
	s := &Sharer{files: files, logger: logger.WithComponent("share")}
	if reveal {
		s.reveal = browser.OpenFile
	}
	return s
}

// Share implements ports.Sharer.
func (s *Sharer) Share(ctx context.Context, files []ports.SharedFile) error {
	if len(files) == 0 {
		return ErrNothingToShare
	}
	for _, f := range files {
		if _, err := s.files.Save(ctx, f.Name, f.Data); err != nil {
			return fmt.Errorf("share %s: %w", f.Name, err)
		}
	}
	s.logger.Info("Shared %d files in %s", len(files), s.files.Dir())

	if s.reveal == nil {
		return nil
	}
	if err := s.reveal(s.files.Dir()); err != nil {
		return fmt.Errorf("reveal %s: %w", s.files.Dir(), err)
	}
	return nil
}

var _ ports.Sharer = (*Sharer)(nil)
