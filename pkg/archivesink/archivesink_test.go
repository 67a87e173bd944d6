package archivesink_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/zipencoder"
	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/downloader"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

func entry(name, data string) pipeline.ArchiveEntry {
	return pipeline.ArchiveEntry{Name: name, Frame: pipeline.CapturedFrame{Data: []byte(data), MediaType: "image/jpeg"}}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func TestLinkSink(t *testing.T) {
	saver := mocks.NewSaver()
	c := archivesink.NewCoordinator(archivesink.Deps{Saver: saver, Logger: logger.NewNoop()})

	sink, err := c.Open(context.Background(), archivesink.KindLink, "")
	require.NoError(t, err)
	require.NoError(t, sink.AddEntry(context.Background(), entry("a.jpg", "A")))
	require.NoError(t, sink.AddEntry(context.Background(), entry("b.jpg", "B")))
	require.NoError(t, sink.Finalize(context.Background(), "ignored.zip"))

	assert.Equal(t, []string{"a.jpg", "b.jpg"}, saver.Order, "each entry is saved immediately")
	assert.Equal(t, 2, sink.Stats().Entries)
}

func TestZipSink_DuplicateIsNonFatal(t *testing.T) {
	saver := mocks.NewSaver()
	c := archivesink.NewCoordinator(archivesink.Deps{Saver: saver, Encoder: zipencoder.New(), Logger: logger.NewNoop()})
	ctx := context.Background()

	sink, err := c.Open(ctx, archivesink.KindZip, "")
	require.NoError(t, err)
	require.NoError(t, sink.AddEntry(ctx, entry("frame.jpg", "first")))

	err = sink.AddEntry(ctx, entry("frame.jpg", "second"))
	var conflict *pipeline.ArchiveEntryConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "frame.jpg", conflict.Name)

	require.NoError(t, sink.Finalize(ctx, "clip [0.00-1.00].zip"))
	files := readZip(t, saver.Files["clip [0.00-1.00].zip"])
	assert.Equal(t, map[string]string{"frame.jpg": "first"}, files)
	assert.Equal(t, 1, sink.Stats().Entries)
	assert.Equal(t, 1, sink.Stats().Conflicts)
}

type streamRig struct {
	worker *transport.Worker
	client *transport.Client
	server *downloader.Server
	base   string
}

func newStreamRig(t *testing.T, ackTimeout time.Duration) *streamRig {
	t.Helper()
	bus := broadcast.NewLocal()
	worker := transport.NewWorker(bus, logger.NewNoop())
	srv := downloader.NewServer(downloader.Config{Worker: worker, Logger: logger.NewNoop()})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	client, err := transport.NewClient(context.Background(), worker, bus,
		transport.ClientOptions{AckTimeout: ackTimeout, ChunkSize: 512}, logger.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return &streamRig{worker: worker, client: client, server: srv, base: hs.URL}
}

func (r *streamRig) downloadURL(id string) string {
	return r.base + "/downloader?id=" + id
}

func TestZipStreamSink(t *testing.T) {
	rig := newStreamRig(t, 2*time.Second)
	var delivered *mocks.Delivery
	opener := &mocks.Opener{}
	opener.OpenFunc = func(ctx context.Context, url string) (ports.Delivery, error) {
		d, err := (&mocks.Opener{}).Open(ctx, url)
		delivered = d.(*mocks.Delivery)
		return d, err
	}

	c := archivesink.NewCoordinator(archivesink.Deps{
		Encoder:     zipencoder.New(),
		Streamer:    rig.client,
		Opener:      opener,
		DownloadURL: rig.downloadURL,
		Logger:      logger.NewNoop(),
	})
	ctx := context.Background()

	sink, err := c.Open(ctx, archivesink.KindZipStream, "clip [0.00-1.00].zip")
	require.NoError(t, err)

	big := string(bytes.Repeat([]byte("j"), 5000))
	require.NoError(t, sink.AddEntry(ctx, entry("clip-0.00.jpg", big)))
	require.NoError(t, sink.AddEntry(ctx, entry("clip-0.03.jpg", "small")))
	require.Error(t, sink.AddEntry(ctx, entry("clip-0.03.jpg", "dup")))
	require.NoError(t, sink.Finalize(ctx, ""))

	require.NotNil(t, delivered)
	assert.Equal(t, "attachment; filename*=UTF-8''clip%20%5B0.00-1.00%5D.zip", delivered.Header.Get("Content-Disposition"))
	files := readZip(t, delivered.Body)
	assert.Equal(t, big, files["clip-0.00.jpg"])
	assert.Equal(t, "small", files["clip-0.03.jpg"])
	assert.Len(t, files, 2)

	assert.Equal(t, int64(len(delivered.Body)), sink.Stats().Bytes)
	assert.Zero(t, rig.client.Acks().Pending())
	assert.Zero(t, rig.worker.Stats().Active)
}

func TestZipStreamSink_PopupBlockedFallsBackOnce(t *testing.T) {
	rig := newStreamRig(t, 2*time.Second)
	notifier := &mocks.Notifier{}
	opener := &mocks.Opener{
		OpenFunc: func(context.Context, string) (ports.Delivery, error) { return nil, ports.ErrPopupBlocked },
	}
	c := archivesink.NewCoordinator(archivesink.Deps{
		Encoder:     zipencoder.New(),
		Streamer:    rig.client,
		Opener:      opener,
		Notifier:    notifier,
		DownloadURL: rig.downloadURL,
		Logger:      logger.NewNoop(),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sink, err := c.Open(ctx, archivesink.KindZipStream, "x.zip")
		require.NoError(t, err)
		require.NoError(t, sink.AddEntry(ctx, entry("a.jpg", "A")))
		require.NoError(t, sink.Finalize(ctx, ""))
	}

	assert.Equal(t, 1, notifier.Count(), "the blocked popup notice is shown once")
	assert.Len(t, opener.Frames, 2, "each job falls back to a hidden frame")
}

func TestZipStreamSink_CreateNeverAcknowledged(t *testing.T) {
	bus := broadcast.NewLocal()
	silent := posterFunc(func(context.Context, transport.Message) error { return nil })
	client, err := transport.NewClient(context.Background(), silent, bus,
		transport.ClientOptions{AckTimeout: 20 * time.Millisecond}, logger.NewNoop())
	require.NoError(t, err)
	defer client.Close()

	opener := &mocks.Opener{}
	c := archivesink.NewCoordinator(archivesink.Deps{
		Encoder:     zipencoder.New(),
		Streamer:    client,
		Opener:      opener,
		DownloadURL: func(id string) string { return "http://unused/" + id },
		Logger:      logger.NewNoop(),
	})

	_, err = c.Open(context.Background(), archivesink.KindZipStream, "x.zip")
	var te *pipeline.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, pipeline.ErrAckTimeout)
	assert.Empty(t, opener.URLs, "no download is opened without a stream")
}

func TestShareSink_FailureOffersRetry(t *testing.T) {
	calls := 0
	sharer := &mocks.Sharer{ShareFunc: func(_ context.Context, files []ports.SharedFile) error {
		calls++
		if calls == 1 {
			return errors.New("share dismissed")
		}
		return nil
	}}
	notifier := &mocks.Notifier{}
	c := archivesink.NewCoordinator(archivesink.Deps{Sharer: sharer, Notifier: notifier, Logger: logger.NewNoop()})
	ctx := context.Background()

	sink, err := c.Open(ctx, archivesink.KindShare, "")
	require.NoError(t, err)
	require.NoError(t, sink.AddEntry(ctx, entry("a.jpg", "A")))
	require.NoError(t, sink.AddEntry(ctx, entry("b.jpg", "B")))
	require.NoError(t, sink.Finalize(ctx, ""), "a failed share does not fail the job")

	require.Equal(t, 1, notifier.Count())
	notice := notifier.Notices[0]
	assert.Equal(t, "Share again", notice.RetryLabel)
	require.NoError(t, notice.Retry(ctx))
	assert.Equal(t, 2, calls)
	assert.Len(t, sharer.LastFiles, 2)
}

func TestKinds(t *testing.T) {
	k, err := archivesink.ParseKind(" ZIP ")
	require.NoError(t, err)
	assert.Equal(t, archivesink.KindZip, k)
	assert.Equal(t, archivesink.KindZipStream, archivesink.ResolveKind(k, true))
	assert.Equal(t, archivesink.KindZip, archivesink.ResolveKind(k, false))
	assert.Equal(t, archivesink.KindLink, archivesink.ResolveKind(archivesink.KindLink, true))

	_, err = archivesink.ParseKind("tar")
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "holiday", archivesink.BaseName("/videos/holiday.mp4"))
	assert.Equal(t, ".hidden", archivesink.BaseName(".hidden"))
	assert.Equal(t, "holiday [1.50-3.00].zip", archivesink.IntervalArchiveName("holiday", 1500*time.Millisecond, 3*time.Second))
	assert.Equal(t, "holiday - Queue [1700000000123].zip", archivesink.QueueArchiveName("holiday", at))
	assert.Equal(t, "framegrab-1700000000123.zip", archivesink.DefaultArchiveName(at))
}

type posterFunc func(context.Context, transport.Message) error

func (f posterFunc) Post(ctx context.Context, msg transport.Message) error { return f(ctx, msg) }

func TestZipStreamSink_AbortEndsDownload(t *testing.T) {
	rig := newStreamRig(t, 2*time.Second)
	var delivery ports.Delivery
	opener := &mocks.Opener{}
	opener.OpenFunc = func(_ context.Context, url string) (ports.Delivery, error) {
		// Detached from the job so only the abort message can end the download.
		d, err := (&mocks.Opener{}).Open(context.Background(), url)
		delivery = d
		return d, err
	}
	c := archivesink.NewCoordinator(archivesink.Deps{
		Encoder:     zipencoder.New(),
		Streamer:    rig.client,
		Opener:      opener,
		DownloadURL: rig.downloadURL,
		Logger:      logger.NewNoop(),
	})
	ctx := context.Background()

	sink, err := c.Open(ctx, archivesink.KindZipStream, "x.zip")
	require.NoError(t, err)
	require.NoError(t, sink.AddEntry(ctx, entry("a.jpg", "A")))
	sink.Abort()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = delivery.Wait(waitCtx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded, "the download must fail, not hang")
	assert.Eventually(t, func() bool { return rig.worker.Stats().Active == 0 }, 2*time.Second, 10*time.Millisecond)
}
