package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// DefaultQueueDepth is how many chunks a stream buffers before WriteFile
// blocks waiting for the reader.
const DefaultQueueDepth = 8

var (
	// ErrStreamExists is returned by CreateFile for an id already in use.
	ErrStreamExists = errors.New("stream already exists")
	// ErrStreamClosed is returned when writing to a closed stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrAlreadyDelivered is returned when a stream is taken twice.
	ErrAlreadyDelivered = errors.New("stream already delivered")
	// ErrStreamAborted is returned to the reader of a stream the page gave up on.
	ErrStreamAborted = errors.New("stream aborted by sender")
)

// WorkerStats are running totals for a Worker.
type WorkerStats struct {
	Created   int
	Delivered int
	Active    int
	Bytes     int64
}

// Worker is the background side of the transport. It owns one readable
// stream per id and acknowledges each operation once it has completed.
type Worker struct {
	acks       AckPublisher
	queueDepth int
	logger     ports.Logger

	mu      sync.Mutex
	streams map[string]*Stream
	stats   WorkerStats
}

// NewWorker creates a worker that publishes acknowledgements on acks.
func NewWorker(acks AckPublisher, logger ports.Logger) *Worker {
	return &Worker{
		acks:       acks,
		queueDepth: DefaultQueueDepth,
		logger:     logger.WithComponent("worker"),
		streams:    make(map[string]*Stream),
	}
}

// Post implements Poster so a page in the same process can talk to the
// worker directly.
func (w *Worker) Post(ctx context.Context, msg Message) error {
	return w.Handle(ctx, msg)
}

// Handle performs msg and publishes its operation id on success. Failed
// operations are not acknowledged; the page observes them as a timeout.
func (w *Worker) Handle(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	var err error
	switch msg.Action {
	case ActionCreateFile:
		err = w.create(msg.ID, msg.Name)
	case ActionWriteFile:
		err = w.write(ctx, msg.ID, msg.Chunk)
	case ActionCloseFile:
		err = w.close(msg.ID)
	case ActionAbortFile:
		w.abort(msg.ID)
	}
	if err != nil {
		w.logger.Warn("%s %s failed: %v", msg.Action, msg.ID, err)
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: err}
	}

	if err := w.acks.Publish(ctx, msg.OperationID); err != nil {
		return &pipeline.TransportError{Op: "ack", ID: msg.ID, Err: err}
	}
	return nil
}

func (w *Worker) create(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.streams[id]; ok {
		return ErrStreamExists
	}
	w.streams[id] = newStream(id, name, w.queueDepth)
	w.stats.Created++
	w.stats.Active++
	return nil
}

func (w *Worker) lookup(id string) (*Stream, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.streams[id]
	if !ok {
		return nil, pipeline.ErrUnknownSession
	}
	return s, nil
}

func (w *Worker) write(ctx context.Context, id string, chunk []byte) error {
	s, err := w.lookup(id)
	if err != nil {
		return err
	}
	if err := s.push(ctx, chunk); err != nil {
		return err
	}
	w.mu.Lock()
	w.stats.Bytes += int64(len(chunk))
	w.mu.Unlock()
	return nil
}

func (w *Worker) close(id string) error {
	s, err := w.lookup(id)
	if err != nil {
		return err
	}
	s.finish(nil)
	return nil
}

// abort ends stream id with ErrStreamAborted so its reader fails instead
// of seeing a clean end of a truncated file. Unknown ids are ignored since
// the consumer may already have released the stream.
func (w *Worker) abort(id string) {
	if s, err := w.lookup(id); err == nil {
		s.finish(ErrStreamAborted)
	}
}

// Take hands the readable half of stream id to a consumer. A stream can be
// taken once.
func (w *Worker) Take(id string) (*Stream, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.streams[id]
	if !ok {
		return nil, pipeline.ErrUnknownSession
	}
	if s.delivered {
		return nil, ErrAlreadyDelivered
	}
	s.delivered = true
	w.stats.Delivered++
	return s, nil
}

// Release forgets stream id once its consumer is done with it. An unread
// stream is aborted so a blocked writer wakes up.
func (w *Worker) Release(id string) {
	w.mu.Lock()
	s, ok := w.streams[id]
	if ok {
		delete(w.streams, id)
		w.stats.Active--
	}
	w.mu.Unlock()
	if ok {
		s.finish(io.ErrClosedPipe)
	}
}

// Stats returns a snapshot of the running totals.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Stream is the readable half of one transport session.
type Stream struct {
	ID        string
	Name      string
	CreatedAt time.Time

	chunks    chan []byte
	done      chan struct{}
	once      sync.Once
	err       error
	pending   []byte
	delivered bool
}

func newStream(id, name string, depth int) *Stream {
	return &Stream{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		chunks:    make(chan []byte, depth),
		done:      make(chan struct{}),
	}
}

func (s *Stream) push(ctx context.Context, chunk []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.chunks <- chunk:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish ends the stream. A nil err means a clean end of data.
func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Read implements io.Reader. It blocks until a chunk arrives or the stream
// is closed, then drains whatever was queued before returning io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case chunk := <-s.chunks:
			s.pending = chunk
		case <-s.done:
			select {
			case chunk := <-s.chunks:
				s.pending = chunk
			default:
				if s.err != nil {
					return 0, s.err
				}
				return 0, io.EOF
			}
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Done is closed once CloseFile has been handled.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// String implements fmt.Stringer.
func (s *Stream) String() string {
	return fmt.Sprintf("%s (%s)", s.ID, s.Name)
}
