package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceClosed means the video source went away mid-operation.
	ErrSourceClosed = errors.New("video source closed")
	// ErrNotSettled means a seek did not report completion in time.
	ErrNotSettled = errors.New("seek did not settle")
	// ErrAckTimeout means the background context never acknowledged an operation.
	ErrAckTimeout = errors.New("acknowledgement timed out")
	// ErrUnknownSession means the background context has no stream for an id.
	ErrUnknownSession = errors.New("unknown transport session")
)

// CaptureError reports a frame that could not be drawn or encoded.
type CaptureError struct {
	Position time.Duration
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture frame at %.3fs: %v", e.Position.Seconds(), e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ArchiveEntryConflict reports an entry refused because its name is taken.
type ArchiveEntryConflict struct {
	Name string
	Err  error
}

func (e *ArchiveEntryConflict) Error() string {
	return fmt.Sprintf("archive entry %q: %v", e.Name, e.Err)
}

func (e *ArchiveEntryConflict) Unwrap() error { return e.Err }

// TransportError reports a failure of the streaming channel between the
// page and the background context.
type TransportError struct {
	Op  string
	ID  string
	Err error
}

func (e *TransportError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SourceStateError reports a video source that cannot do what the export
// needs, such as a closed source or a seek that never settles.
type SourceStateError struct {
	Op       string
	Position time.Duration
	Err      error
}

func (e *SourceStateError) Error() string {
	return fmt.Sprintf("source %s at %.3fs: %v", e.Op, e.Position.Seconds(), e.Err)
}

func (e *SourceStateError) Unwrap() error { return e.Err }
