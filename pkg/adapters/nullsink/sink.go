// Package nullsink provides a Saver that discards everything, for dry runs.
package nullsink

import (
	"context"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// Sink discards saved files but remembers how much it was given.
type Sink struct {
	mu    sync.Mutex
	files int
	bytes int64
}

// New creates a Sink.
func New() *Sink {
	return &Sink{}
}

// Save implements ports.Saver. The returned location is always empty.
func (s *Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files++
	s.bytes += int64(len(data))
	return "", ctx.Err()
}

// Dir is empty: nothing is written anywhere.
func (s *Sink) Dir() string { return "" }

// Totals returns the number of files and bytes discarded so far.
func (s *Sink) Totals() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files, s.bytes
}

var _ ports.Saver = (*Sink)(nil)
