package fetchopener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/filesink"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/transport"
)

func TestOpen_StoresUnderSuggestedName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", transport.ContentDisposition("clip [0.00-1.00].zip"))
		w.Write([]byte("PK\x03\x04"))
	}))
	defer srv.Close()

	fs := mocks.NewFileSystem()
	o := New(filesink.New("out", fs, logger.NewNoop()), "download.zip", logger.NewNoop())
	defer o.Close()

	d, err := o.Open(context.Background(), srv.URL+"/downloader?id=1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := d.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if res.Path != filepath.Join("out", "clip [0.00-1.00].zip") || res.Bytes != 4 {
		t.Errorf("unexpected result %+v", res)
	}
	if data, ok := fs.GetFile(res.Path); !ok || string(data) != "PK\x03\x04" {
		t.Errorf("body not stored, got %q", data)
	}
}

func TestOpen_FallbackNameAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	fs := mocks.NewFileSystem()
	o := New(filesink.New("out", fs, logger.NewNoop()), "download.zip", logger.NewNoop())

	d, _ := o.Open(context.Background(), srv.URL+"/downloader?id=ok")
	res, err := d.Wait(context.Background())
	if err != nil || filepath.Base(res.Path) != "download.zip" {
		t.Errorf("expected the fallback name, got %+v, %v", res, err)
	}

	d, _ = o.Open(context.Background(), srv.URL+"/downloader?id=missing")
	if _, err := d.Wait(context.Background()); err == nil {
		t.Error("expected a 404 to fail the delivery")
	}
}
