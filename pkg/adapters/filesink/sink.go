// Package filesink delivers finished files into a local directory.
package filesink

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// Sink saves files under baseDir. Names are sanitized and never overwrite
// an existing file: "clip.zip" becomes "clip (1).zip" and so on.
type Sink struct {
	baseDir string
	fs      ports.FileSystem
	logger  ports.Logger

	mu       sync.Mutex
	reserved map[string]struct{}
}

// New creates a Sink.
func New(baseDir string, fs ports.FileSystem, logger ports.Logger) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		logger:   logger.WithComponent("filesink"),
		reserved: make(map[string]struct{}),
	}
}

// Dir returns the target directory.
func (s *Sink) Dir() string {
	return s.baseDir
}

// Save implements ports.Saver.
func (s *Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.Reserve(name)
	if err != nil {
		return "", err
	}
	if err := s.fs.WriteFile(path, data); err != nil {
		s.unreserve(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Debug("Saved %s", path)
	return path, nil
}

// Create reserves a path for name and opens it for streaming writes.
func (s *Sink) Create(name string) (string, io.WriteCloser, error) {
	path, err := s.Reserve(name)
	if err != nil {
		return "", nil, err
	}
	w, err := s.fs.Create(path)
	if err != nil {
		s.unreserve(path)
		return "", nil, fmt.Errorf("create %s: %w", path, err)
	}
	return path, w, nil
}

// Reserve picks a free path for name.
func (s *Sink) Reserve(name string) (string, error) {
	name = transport.SanitizeFilename(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < 10000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.baseDir, candidate)
		if _, taken := s.reserved[path]; taken {
			continue
		}
		exists, err := s.fs.Exists(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if !exists {
			s.reserved[path] = struct{}{}
			return path, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, s.baseDir)
}

func (s *Sink) unreserve(path string) {
	s.mu.Lock()
	delete(s.reserved, path)
	s.mu.Unlock()
}

var _ ports.Saver = (*Sink)(nil)
