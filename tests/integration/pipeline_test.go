// Package integration drives complete exports through the real transport,
// download route and file consumers.
package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/adapters/fetchopener"
	"github.com/user/framegrab/pkg/adapters/filesink"
	"github.com/user/framegrab/pkg/adapters/ggrenderer"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/osfilesystem"
	"github.com/user/framegrab/pkg/adapters/sqliteledger"
	"github.com/user/framegrab/pkg/adapters/wsport"
	"github.com/user/framegrab/pkg/adapters/zipencoder"
	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/downloader"
	"github.com/user/framegrab/pkg/exportloop"
	"github.com/user/framegrab/pkg/framequeue"
	"github.com/user/framegrab/pkg/jobs"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/sampler"
	"github.com/user/framegrab/pkg/seeksync"
	"github.com/user/framegrab/pkg/transport"
)

type harness struct {
	dir    string
	ledger *sqliteledger.Ledger
	worker *transport.Worker
	server *downloader.Server
	loop   *exportloop.Loop
}

// newHarness starts a worker and the download route on a real listener.
// When remote is set the exporter talks to them over the websocket route,
// as a separate process would.
func newHarness(t *testing.T, remote bool) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := logger.NewNoop()

	bus := broadcast.NewLocal()
	worker := transport.NewWorker(bus, log)
	srv := downloader.NewServer(downloader.Config{Worker: worker, Acks: bus, Logger: log})
	base, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}

	var poster transport.Poster = worker
	var acks transport.AckSource = bus
	if remote {
		conn, err := wsport.Dial(ctx, base, log)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		poster, acks = conn, conn
	}

	client, err := transport.NewClient(ctx, poster, acks, transport.ClientOptions{AckTimeout: 5 * time.Second, ChunkSize: 4096}, log)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	dir := t.TempDir()
	files := filesink.New(dir, osfilesystem.New(), log)
	opener := fetchopener.New(files, "download.zip", log)
	t.Cleanup(func() { opener.Close() })

	ledger, err := sqliteledger.Open(filepath.Join(t.TempDir(), "jobs.db"), log)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	coord := archivesink.NewCoordinator(archivesink.Deps{
		Encoder:     zipencoder.New(),
		Saver:       files,
		Streamer:    client,
		Opener:      opener,
		DownloadURL: srv.DownloadURL,
		Logger:      log,
	})
	loop := exportloop.New(
		sampler.New(ggrenderer.New(), log),
		coord,
		jobs.NewTracker(ledger, log),
		nil,
		seeksync.Options{SettleTimeout: 2 * time.Second},
		log,
	)
	return &harness{dir: dir, ledger: ledger, worker: worker, server: srv, loop: loop}
}

func readZip(t *testing.T, path string) map[string][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		out[f.Name], _ = io.ReadAll(rc)
		rc.Close()
	}
	return out
}

func TestIntervalExport_StreamedToDisk(t *testing.T) {
	h := newHarness(t, false)
	src := mocks.NewVideoSource(ports.SourceInfo{Name: "clip", Width: 160, Height: 90, Duration: 5 * time.Second})

	res, err := h.loop.ExportInterval(context.Background(), exportloop.IntervalRequest{
		Source: src,
		Start:  500 * time.Millisecond,
		End:    1500 * time.Millisecond,
		Rate:   10,
		Kind:   archivesink.KindZipStream,
		Frame:  exportloop.FrameOptions{Format: ports.FormatJPEG, Quality: 0.8, Resize: sampler.Resize{Mode: sampler.ResizePercentage, Value: 50}},
		Mode:   seeksync.ModePrivate,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if res.Entries != 10 || res.Skipped != 0 {
		t.Errorf("expected 10 entries, got %+v", res)
	}
	want := filepath.Join(h.dir, "clip [0.50-1.50].zip")
	if res.Location != want {
		t.Errorf("expected the archive at %s, got %s", want, res.Location)
	}

	files := readZip(t, want)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) != 10 || names[0] != "clip-0.50.jpg" || names[9] != "clip-1.40.jpg" {
		t.Errorf("unexpected entries %v", names)
	}
	img, err := jpeg.Decode(bytes.NewReader(files["clip-0.50.jpg"]))
	if err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 45 {
		t.Errorf("expected 80x45 frames, got %v", b)
	}

	if len(src.Seeks) != 0 {
		t.Errorf("the opened video should not move, saw seeks %v", src.Seeks)
	}
	if stats := h.worker.Stats(); stats.Active != 0 || stats.Delivered != 1 {
		t.Errorf("unexpected worker stats %+v", stats)
	}

	recs, err := h.ledger.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].State != ports.JobFinished || recs[0].Entries != 10 {
		t.Errorf("unexpected history %+v", recs)
	}
}

func TestQueueExport_ThroughRemoteWorker(t *testing.T) {
	h := newHarness(t, true)
	src := mocks.NewVideoSource(ports.SourceInfo{Name: "clip", Width: 32, Height: 18, Duration: 5 * time.Second})

	q := framequeue.New()
	q.Add(framequeue.Item{Position: time.Second})
	q.Add(framequeue.Item{Position: 2500 * time.Millisecond})

	res, err := h.loop.ExportQueue(context.Background(), exportloop.QueueRequest{
		Source:      src,
		Items:       q.List(),
		Kind:        archivesink.KindZipStream,
		Frame:       exportloop.FrameOptions{Format: ports.FormatPNG},
		ArchiveName: "picked.zip",
		Mode:        seeksync.ModePrivate,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	files := readZip(t, filepath.Join(h.dir, "picked.zip"))
	if len(files) != 2 || files["clip-1.00.png"] == nil || files["clip-2.50.png"] == nil {
		t.Errorf("unexpected entries in %v", res)
	}
}

func TestIntervalExport_InMemoryZip(t *testing.T) {
	h := newHarness(t, false)
	src := mocks.NewVideoSource(ports.SourceInfo{Name: "clip", Width: 16, Height: 9, Duration: time.Second})

	res, err := h.loop.ExportInterval(context.Background(), exportloop.IntervalRequest{
		Source: src,
		Start:  0,
		End:    time.Second,
		Rate:   4,
		Kind:   archivesink.KindZip,
		Frame:  exportloop.FrameOptions{Format: ports.FormatPNG},
		Mode:   seeksync.ModePrimary,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	files := readZip(t, res.Location)
	if len(files) != 4 {
		t.Errorf("expected 4 entries, got %d", len(files))
	}
	if !src.ControlsEnabled() {
		t.Error("controls must be re-enabled after a primary export")
	}
	if h.worker.Stats().Created != 0 {
		t.Error("an in-memory zip must not open a stream")
	}
}
