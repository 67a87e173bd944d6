package archivesink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

type base struct {
	id     string
	kind   Kind
	logger ports.Logger
	stats  Stats
}

func (b *base) ID() string   { return b.id }
func (b *base) Kind() Kind   { return b.kind }
func (b *base) Stats() Stats { return b.stats }
func (b *base) Abort()       {}

// conflict records a dropped duplicate and returns the error reported to
// the caller.
func (b *base) conflict(name string, err error) error {
	b.stats.Conflicts++
	b.logger.Warn("Dropping duplicate entry %s", name)
	return &pipeline.ArchiveEntryConflict{Name: name, Err: err}
}

// =============================================================================
// link
// =============================================================================

type linkSink struct {
	base
	saver ports.Saver
}

func (s *linkSink) AddEntry(ctx context.Context, entry pipeline.ArchiveEntry) error {
	path, err := s.saver.Save(ctx, entry.Name, entry.Frame.Data)
	if err != nil {
		return fmt.Errorf("save %s: %w", entry.Name, err)
	}
	s.stats.Entries++
	s.stats.Bytes += int64(len(entry.Frame.Data))
	s.stats.Location = path
	s.logger.Info("Downloaded %s", path)
	return nil
}

func (s *linkSink) Finalize(context.Context, string) error {
	return nil
}

// =============================================================================
// zip (in memory)
// =============================================================================

type zipSink struct {
	base
	saver  ports.Saver
	buf    bytes.Buffer
	writer ports.ArchiveWriter
	now    func() time.Time
}

func (s *zipSink) AddEntry(_ context.Context, entry pipeline.ArchiveEntry) error {
	err := s.writer.Add(entry.Name, s.now(), entry.Frame.Data)
	if errors.Is(err, ports.ErrDuplicateEntry) {
		return s.conflict(entry.Name, err)
	}
	if err != nil {
		return fmt.Errorf("add %s: %w", entry.Name, err)
	}
	s.stats.Entries++
	return nil
}

func (s *zipSink) Finalize(ctx context.Context, outputName string) error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	s.stats.Bytes = int64(s.buf.Len())
	path, err := s.saver.Save(ctx, outputName, s.buf.Bytes())
	if err != nil {
		return fmt.Errorf("save %s: %w", outputName, err)
	}
	s.stats.Location = path
	s.logger.Info("Downloaded %s", path)
	return nil
}

// =============================================================================
// zipstream
// =============================================================================

// streamSink writes the archive into a transport session. The session is
// buffered so each WriteFile carries a full chunk rather than every small
// header write of the archive encoder.
type streamSink struct {
	base
	session  *transport.Session
	buffered *bufio.Writer
	writer   ports.ArchiveWriter
	delivery ports.Delivery
	cancel   context.CancelFunc
	now      func() time.Time
}

func (s *streamSink) AddEntry(_ context.Context, entry pipeline.ArchiveEntry) error {
	err := s.writer.Add(entry.Name, s.now(), entry.Frame.Data)
	if errors.Is(err, ports.ErrDuplicateEntry) {
		return s.conflict(entry.Name, err)
	}
	if err != nil {
		return s.transportError("write", err)
	}
	s.stats.Entries++
	return nil
}

func (s *streamSink) Finalize(ctx context.Context, _ string) error {
	defer s.cancel()

	if err := s.writer.Close(); err != nil {
		return s.transportError("write", err)
	}
	if err := s.buffered.Flush(); err != nil {
		return s.transportError("write", err)
	}
	if err := s.session.Close(); err != nil {
		return s.transportError("close", err)
	}
	s.stats.Bytes = s.session.Written()

	res, err := s.delivery.Wait(ctx)
	if err != nil {
		return s.transportError("deliver", err)
	}
	s.stats.Location = res.Path
	if res.Path != "" {
		s.logger.Info("Downloaded %s", res.Path)
	}
	return nil
}

func (s *streamSink) Abort() {
	if err := s.session.Abort(); err != nil {
		s.logger.Warn("Could not abort stream %s: %v", s.id, err)
	}
	s.cancel()
}

func (s *streamSink) transportError(op string, err error) error {
	var te *pipeline.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &pipeline.TransportError{Op: op, ID: s.id, Err: err}
}

// =============================================================================
// share
// =============================================================================

type shareSink struct {
	base
	sharer   ports.Sharer
	notifier ports.Notifier

	mu    sync.Mutex
	files []ports.SharedFile
}

func (s *shareSink) AddEntry(_ context.Context, entry pipeline.ArchiveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, ports.SharedFile{
		Name:      entry.Name,
		MediaType: entry.Frame.MediaType,
		Data:      entry.Frame.Data,
	})
	s.stats.Entries++
	s.stats.Bytes += int64(len(entry.Frame.Data))
	return nil
}

// Finalize hands the files to the sharer. A failed share is not a failed
// job: the user gets a notice with a retry action instead.
func (s *shareSink) Finalize(ctx context.Context, _ string) error {
	s.mu.Lock()
	files := append([]ports.SharedFile(nil), s.files...)
	s.mu.Unlock()

	err := s.sharer.Share(ctx, files)
	if err == nil {
		return nil
	}
	s.logger.Warn("Sharing failed: %v", err)
	s.notifier.Notify(ctx, ports.Notice{
		Title:      "Sharing failed",
		Message:    "We tried to share the files.",
		RetryLabel: "Share again",
		Retry: func(ctx context.Context) error {
			return s.sharer.Share(ctx, files)
		},
	})
	return nil
}
