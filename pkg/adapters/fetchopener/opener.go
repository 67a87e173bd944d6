// Package fetchopener consumes download URLs itself and stores the body in
// a directory. It is the opener used when no browser is involved.
package fetchopener

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// FileCreator reserves a file for a suggested name. filesink.Sink
// implements it.
type FileCreator interface {
	Create(name string) (string, io.WriteCloser, error)
}

// Opener implements ports.DownloadOpener by fetching the URL over HTTP.
type Opener struct {
	client   *http.Client
	files    FileCreator
	fallback string
	logger   ports.Logger
}

// New creates an Opener. fallback names files whose response carries no
// Content-Disposition.
func New(files FileCreator, fallback string, logger ports.Logger) *Opener {
	return &Opener{
		// No overall timeout: the body arrives as the archive is built.
		client:   &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}},
		files:    files,
		fallback: fallback,
		logger:   logger.WithComponent("fetch"),
	}
}

// Open starts the request and returns at once; the body is copied in the
// background.
func (o *Opener) Open(ctx context.Context, url string) (ports.Delivery, error) {
	d := &delivery{done: make(chan struct{})}
	go o.fetch(ctx, url, d)
	return d, nil
}

func (o *Opener) fetch(ctx context.Context, url string, d *delivery) {
	defer close(d.done)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.err = err
		return
	}
	resp, err := o.client.Do(req)
	if err != nil {
		d.err = fmt.Errorf("fetch %s: %w", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.err = fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
		return
	}

	path, w, err := o.files.Create(o.filename(resp))
	if err != nil {
		d.err = err
		return
	}
	n, err := io.Copy(w, resp.Body)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.err = fmt.Errorf("store %s: %w", path, err)
		return
	}
	o.logger.Info("Downloaded %s", path)
	d.result = ports.DeliveryResult{Path: path, Bytes: n}
}

func (o *Opener) filename(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return o.fallback
}

// Close implements ports.DownloadOpener.
func (o *Opener) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

type delivery struct {
	done   chan struct{}
	result ports.DeliveryResult
	err    error
}

func (d *delivery) Wait(ctx context.Context) (ports.DeliveryResult, error) {
	select {
	case <-d.done:
		return d.result, d.err
	case <-ctx.Done():
		return ports.DeliveryResult{}, ctx.Err()
	}
}

var _ ports.DownloadOpener = (*Opener)(nil)
