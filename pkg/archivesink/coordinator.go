package archivesink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// Deps are the collaborators sinks are built from. Only the ones needed by
// the kinds actually opened must be set.
type Deps struct {
	Encoder  ports.ArchiveEncoder
	Saver    ports.Saver
	Sharer   ports.Sharer
	Notifier ports.Notifier

	// Streamer, Opener and DownloadURL are needed for KindZipStream.
	Streamer    *transport.Client
	Opener      ports.DownloadOpener
	DownloadURL func(id string) string

	Logger ports.Logger
}

// Coordinator opens one sink per export job.
type Coordinator struct {
	deps   Deps
	logger ports.Logger
	now    func() time.Time

	popupOnce sync.Once
}

// NewCoordinator creates a coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{
		deps:   deps,
		logger: deps.Logger.WithComponent("archive"),
		now:    time.Now,
	}
}

// Open creates the sink for a job. name is the archive name for the zip
// kinds.
func (c *Coordinator) Open(ctx context.Context, kind Kind, name string) (Sink, error) {
	b := base{id: uuid.NewString(), kind: kind, logger: c.logger}

	switch kind {
	case KindLink:
		if c.deps.Saver == nil {
			return nil, errors.New("link sink needs a saver")
		}
		return &linkSink{base: b, saver: c.deps.Saver}, nil

	case KindZip:
		if c.deps.Saver == nil || c.deps.Encoder == nil {
			return nil, errors.New("zip sink needs a saver and an encoder")
		}
		s := &zipSink{base: b, saver: c.deps.Saver, now: c.now}
		s.writer = c.deps.Encoder.NewWriter(&s.buf)
		return s, nil

	case KindZipStream:
		return c.openStream(ctx, b, name)

	case KindShare:
		if c.deps.Sharer == nil || c.deps.Notifier == nil {
			return nil, errors.New("share sink needs a sharer and a notifier")
		}
		return &shareSink{base: b, sharer: c.deps.Sharer, notifier: c.deps.Notifier}, nil
	}
	return nil, fmt.Errorf("unknown archive kind %q", kind)
}

func (c *Coordinator) openStream(ctx context.Context, b base, name string) (Sink, error) {
	if c.deps.Streamer == nil || c.deps.Opener == nil || c.deps.DownloadURL == nil || c.deps.Encoder == nil {
		return nil, errors.New("zipstream sink needs a streamer, an opener, a download URL and an encoder")
	}

	session, err := c.deps.Streamer.Open(ctx, b.id, name)
	if err != nil {
		return nil, err
	}

	// The delivery outlives Open; it is cancelled by Finalize or Abort.
	deliveryCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	delivery, err := c.openDelivery(deliveryCtx, c.deps.DownloadURL(b.id))
	if err != nil {
		cancel()
		session.Close()
		return nil, &pipeline.TransportError{Op: "open", ID: b.id, Err: err}
	}

	buffered := bufio.NewWriterSize(session, c.deps.Streamer.ChunkSize())
	return &streamSink{
		base:     b,
		session:  session,
		buffered: buffered,
		writer:   c.deps.Encoder.NewWriter(buffered),
		delivery: delivery,
		cancel:   cancel,
		now:      c.now,
	}, nil
}

// openDelivery points the opener at url. A blocked popup is reported to the
// user once per coordinator and, when the opener can, retried through a
// hidden frame.
func (c *Coordinator) openDelivery(ctx context.Context, url string) (ports.Delivery, error) {
	delivery, err := c.deps.Opener.Open(ctx, url)
	if !errors.Is(err, ports.ErrPopupBlocked) {
		return delivery, err
	}

	c.popupOnce.Do(func() {
		c.logger.Warn("A pop-up window was blocked. Please allow it so the download can start.")
		if c.deps.Notifier != nil {
			c.deps.Notifier.Notify(ctx, ports.Notice{
				Title:   "Download blocked",
				Message: "A pop-up window was blocked. Please allow it so the download can start.",
			})
		}
	})

	framer, ok := c.deps.Opener.(ports.FrameOpener)
	if !ok {
		return nil, err
	}
	return framer.OpenFrame(ctx, url)
}
