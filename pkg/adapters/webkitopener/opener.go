// Package webkitopener triggers downloads from a hidden inline frame in a
// WebKit page driven by playwright. WebKit browsers only start a streamed
// download when an auxiliary frame navigates to it.
package webkitopener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/user/framegrab/pkg/ports"
)

// DefaultStartTimeout bounds the wait for the download to begin.
const DefaultStartTimeout = 30 * time.Second

// Reserver picks a free path for a suggested file name. filesink.Sink
// implements it.
type Reserver interface {
	Reserve(name string) (string, error)
}

// Options configures the browser.
type Options struct {
	Headless bool
	// AutoInstall installs playwright's WebKit build before the first launch.
	AutoInstall bool
	// StartTimeout is how long a frame may take to start its download.
	StartTimeout time.Duration
}

// Opener implements ports.DownloadOpener and ports.FrameOpener. Both open
// a hidden frame; there is no popup channel in this family.
type Opener struct {
	opts   Options
	files  Reserver
	logger ports.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
}

// New creates an Opener. WebKit starts on the first Open.
func New(files Reserver, opts Options, logger ports.Logger) *Opener {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	return &Opener{opts: opts, files: files, logger: logger.WithComponent("webkit")}
}

func (o *Opener) launch() (playwright.BrowserContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bctx != nil {
		return o.bctx, nil
	}

	if o.opts.AutoInstall {
		o.logger.Info("Installing WebKit")
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"webkit"}, Verbose: false}); err != nil {
			return nil, fmt.Errorf("install webkit: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.WebKit.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(o.opts.Headless)})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch webkit: %w", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{AcceptDownloads: playwright.Bool(true)})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("new webkit context: %w", err)
	}

	o.pw, o.browser, o.bctx = pw, browser, bctx
	o.logger.Debug("WebKit started")
	return bctx, nil
}

// Open implements ports.DownloadOpener through a hidden frame.
func (o *Opener) Open(ctx context.Context, url string) (ports.Delivery, error) {
	return o.OpenFrame(ctx, url)
}

// OpenFrame loads url in a hidden frame of a fresh page and saves the
// download it starts. It returns once the page exists; the download is
// awaited in the background.
func (o *Opener) OpenFrame(ctx context.Context, url string) (ports.Delivery, error) {
	bctx, err := o.launch()
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page for %s: %w", url, err)
	}

	d := &delivery{done: make(chan struct{})}
	go o.capture(ctx, page, url, d)
	return d, nil
}

func (o *Opener) capture(ctx context.Context, page playwright.Page, url string, d *delivery) {
	defer close(d.done)
	defer page.Close()
	// Closing the page cancels a download still in flight.
	stop := context.AfterFunc(ctx, func() { page.Close() })
	defer stop()

	dl, err := page.ExpectDownload(func() error {
		_, err := page.Evaluate(FrameScript(url))
		return err
	}, playwright.PageExpectDownloadOptions{Timeout: playwright.Float(float64(o.opts.StartTimeout.Milliseconds()))})
	if err != nil {
		d.err = fmt.Errorf("start download %s: %w", url, err)
		return
	}

	path, err := o.files.Reserve(dl.SuggestedFilename())
	if err != nil {
		d.err = err
		return
	}
	if err := dl.SaveAs(path); err != nil {
		d.err = fmt.Errorf("save download %s: %w", path, err)
		return
	}
	if err := dl.Failure(); err != nil {
		d.err = fmt.Errorf("download %s: %w", url, err)
		return
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	o.logger.Info("Downloaded %s", path)
	d.result = ports.DeliveryResult{Path: path, Bytes: size}
}

// FrameScript injects a near-invisible frame pointed at url. The frame
// stays laid out because WebKit does not navigate frames hidden with
// display:none.
func FrameScript(url string) string {
	return fmt.Sprintf(`(() => {
		const f = document.createElement("iframe");
		f.src = %q;
		f.style.cssText = "width:1px;height:1px;position:fixed;top:-1px;left:-1px;opacity:0";
		(document.body || document.documentElement).appendChild(f);
		return true;
	})()`, url)
}

// Close shuts WebKit and the playwright driver down.
func (o *Opener) Close() error {
	o.mu.Lock()
	pw, browser := o.pw, o.browser
	o.pw, o.browser, o.bctx = nil, nil, nil
	o.mu.Unlock()

	var errs []error
	if browser != nil {
		errs = append(errs, browser.Close())
	}
	if pw != nil {
		errs = append(errs, pw.Stop())
	}
	return errors.Join(errs...)
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

var (
	_ ports.DownloadOpener = (*Opener)(nil)
	_ ports.FrameOpener    = (*Opener)(nil)
)
