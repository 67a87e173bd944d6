package downloader_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/wsport"
	"github.com/user/framegrab/pkg/downloader"
	"github.com/user/framegrab/pkg/transport"
)

type fixture struct {
	bus    *broadcast.Local
	worker *transport.Worker
	server *downloader.Server
	http   *httptest.Server
}

func newFixture(t *testing.T, fallback http.Handler) *fixture {
	t.Helper()
	bus := broadcast.NewLocal()
	worker := transport.NewWorker(bus, logger.NewNoop())
	srv := downloader.NewServer(downloader.Config{
		Worker:   worker,
		Acks:     bus,
		Fallback: fallback,
		Logger:   logger.NewNoop(),
	})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &fixture{bus: bus, worker: worker, server: srv, http: hs}
}

func fetch(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestDownload_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := fetch(t, f.http.URL+"/downloader")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = fetch(t, f.http.URL+"/downloader?id=missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = fetch(t, f.http.URL+"/elsewhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func streamThrough(t *testing.T, f *fixture, poster transport.Poster, acks transport.AckSource) {
	t.Helper()
	ctx := context.Background()

	client, err := transport.NewClient(ctx, poster, acks, transport.ClientOptions{ChunkSize: 3, AckTimeout: 2 * time.Second}, logger.NewNoop())
	require.NoError(t, err)
	defer client.Close()

	session, err := client.Open(ctx, "job-1", "clip [0.00-1.00].zip")
	require.NoError(t, err)

	type result struct {
		resp *http.Response
		body string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := http.Get(f.http.URL + "/downloader?id=job-1")
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		got <- result{resp, string(body), err}
	}()

	_, err = session.Write([]byte("PK\x03\x04 archive bytes"))
	require.NoError(t, err)
	require.NoError(t, session.Close())

	var r result
	select {
	case r = <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("download did not complete")
	}
	require.NoError(t, r.err)

	assert.Equal(t, http.StatusOK, r.resp.StatusCode)
	assert.Equal(t, "PK\x03\x04 archive bytes", r.body)
	assert.Equal(t, "application/zip", r.resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename*=UTF-8''clip%20%5B0.00-1.00%5D.zip", r.resp.Header.Get("Content-Disposition"))

	// The stream is detached once delivered.
	resp, _ := fetch(t, f.http.URL+"/downloader?id=job-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownload_InProcess(t *testing.T) {
	f := newFixture(t, nil)
	streamThrough(t, f, f.worker, f.bus)
}

func TestDownload_OverWebsocket(t *testing.T) {
	f := newFixture(t, nil)

	conn, err := wsport.Dial(context.Background(), f.http.URL, logger.NewNoop())
	require.NoError(t, err)
	defer conn.Close()

	streamThrough(t, f, conn, conn)

	_, body := fetch(t, f.http.URL+"/metrics")
	assert.Contains(t, body, `framegrab_transport_messages_total{action="WriteFile",result="ok"}`)
	assert.Contains(t, body, `framegrab_downloads_total{result="ok"} 1`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := fetch(t, f.http.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(0), health["active_streams"])
}

func TestFallbackHandlesOtherPaths(t *testing.T) {
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "app shell for "+r.URL.Path)
	})
	f := newFixture(t, fallback)

	resp, body := fetch(t, f.http.URL+"/index.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "app shell for /index.html", body)
}

func TestDownloadURL(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := downloader.NewServer(downloader.Config{Worker: f.worker, Logger: logger.NewNoop()})
	base, err := srv.Start(ctx)
	require.NoError(t, err)

	assert.Equal(t, base+"/downloader?id=a+b%26c", srv.DownloadURL("a b&c"))
	resp, _ := fetch(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchDelivery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.server.WatchDelivery(f.http.URL + "/downloader")
	assert.ErrorIs(t, err, downloader.ErrNotDownloaded)

	client, err := transport.NewClient(ctx, f.worker, f.bus, transport.ClientOptions{AckTimeout: 2 * time.Second}, logger.NewNoop())
	require.NoError(t, err)
	defer client.Close()

	session, err := client.Open(ctx, "watched", "w.zip")
	require.NoError(t, err)

	wait, err := f.server.WatchDelivery(f.http.URL + "/downloader?id=watched")
	require.NoError(t, err)

	go func() {
		session.Write([]byte("hello"))
		session.Close()
	}()
	resp, body := fetch(t, f.http.URL+"/downloader?id=watched")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestDownload_ClientGoneReleasesStream(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.worker.Handle(ctx, transport.Message{Action: transport.ActionCreateFile, ID: "s1", OperationID: "c", Name: "x.zip"}))
	require.NoError(t, f.worker.Handle(ctx, transport.Message{Action: transport.ActionWriteFile, ID: "s1", OperationID: "w", Chunk: []byte("abc")}))

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.http.URL+"/downloader?id=s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))

	// The sender never closes the file; the client gives up instead.
	cancel()
	resp.Body.Close()

	assert.Eventually(t, func() bool { return f.worker.Stats().Active == 0 }, 2*time.Second, 10*time.Millisecond,
		"the stream must be released once the client is gone")
}

func TestDownload_AbortedStreamFailsDownload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.worker.Handle(ctx, transport.Message{Action: transport.ActionCreateFile, ID: "s1", OperationID: "c", Name: "x.zip"}))
	require.NoError(t, f.worker.Handle(ctx, transport.Message{Action: transport.ActionWriteFile, ID: "s1", OperationID: "w", Chunk: []byte("abc")}))

	go func() {
		time.Sleep(50 * time.Millisecond)
		f.worker.Handle(ctx, transport.Message{Action: transport.ActionAbortFile, ID: "s1", OperationID: "a"})
	}()

	resp, err := http.Get(f.http.URL + "/downloader?id=s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err, "a truncated archive must not look complete")
	assert.Eventually(t, func() bool { return f.worker.Stats().Active == 0 }, 2*time.Second, 10*time.Millisecond)
}
