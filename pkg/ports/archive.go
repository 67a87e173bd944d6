package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrDuplicateEntry is returned by an ArchiveWriter when an entry with the
// same name was already added.
var ErrDuplicateEntry = errors.New("duplicate archive entry")

// ArchiveEncoder creates archive writers over arbitrary byte sinks.
type ArchiveEncoder interface {
	NewWriter(w io.Writer) ArchiveWriter
}

// ArchiveWriter appends named entries to an archive.
type ArchiveWriter interface {
	Add(name string, modified time.Time, data []byte) error

	// Close writes the archive trailer. It does not close the underlying writer.
	Close() error
}

// Saver delivers a finished file to the user and returns where it went.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
