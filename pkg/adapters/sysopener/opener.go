// Package sysopener hands download URLs to the desktop's default browser.
package sysopener

import (
	"context"
	"fmt"

	"github.com/pkg/browser"

	"github.com/user/framegrab/pkg/ports"
)

// Watcher registers interest in a download before it is opened and
// returns a function that blocks until the bytes have been served.
// downloader.Server.WatchDelivery satisfies it.
type Watcher func(url string) (func(ctx context.Context) (int64, error), error)

// Opener implements ports.DownloadOpener with the system browser. The
// browser does not report where it saved the file, so results carry no
// path.
type Opener struct {
	watch  Watcher
	open   func(url string) error
	logger ports.Logger
}

// New creates an Opener. watch may be nil, in which case deliveries
// complete as soon as the browser has been launched.
func New(watch Watcher, logger ports.Logger) *Opener {
	return &Opener{watch: watch, open: browser.OpenURL, logger: logger.WithComponent("sysopener")}
}

// Open implements ports.DownloadOpener.
func (o *Opener) Open(ctx context.Context, url string) (ports.Delivery, error) {
	var wait func(ctx context.Context) (int64, error)
	if o.watch != nil {
		w, err := o.watch(url)
		if err != nil {
			return nil, err
		}
		wait = w
	}

	if err := o.open(url); err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	o.logger.Debug("Opened %s in the system browser", url)
	return delivery(wait), nil
}

// Close implements ports.DownloadOpener.
func (o *Opener) Close() error { return nil }

type delivery func(ctx context.Context) (int64, error)

func (d delivery) Wait(ctx context.Context) (ports.DeliveryResult, error) {
	if d == nil {
		return ports.DeliveryResult{}, ctx.Err()
	}
	n, err := d(ctx)
	return ports.DeliveryResult{Bytes: n}, err
}

var _ ports.DownloadOpener = (*Opener)(nil)
