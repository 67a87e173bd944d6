// Package chromeopener opens download URLs in a Chrome tab and reports when
// the browser has stored the file.
package chromeopener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// Options configures the browser.
type Options struct {
	ChromePath  string
	Headless    bool
	DownloadDir string
	// AutoInstall installs playwright's Chromium when no browser is found.
	AutoInstall bool
	// AllowPopups disables Chrome's popup blocker. When false, a blocked
	// window.open surfaces as ports.ErrPopupBlocked.
	AllowPopups bool
}

// Opener implements ports.DownloadOpener and ports.FrameOpener.
type Opener struct {
	opts   Options
	logger ports.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	ctx         context.Context
	pending     map[string]*delivery // by URL until the download begins
	active      map[string]*delivery // by download GUID
}

// New creates an Opener. The browser starts on the first Open.
func New(opts Options, logger ports.Logger) *Opener {
	return &Opener{
		opts:    opts,
		logger:  logger.WithComponent("chrome"),
		pending: make(map[string]*delivery),
		active:  make(map[string]*delivery),
	}
}

func (o *Opener) launch() (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		return o.ctx, nil
	}

	chromePath := ResolveChromePath(o.opts.ChromePath)
	if chromePath == "" && o.opts.AutoInstall {
		o.logger.Info("Chrome not found, installing Chromium")
		installed, err := InstallChromium()
		if err != nil {
			return nil, err
		}
		chromePath = installed
	}
	if chromePath == "" {
		return nil, errors.New("chrome not found: install Chrome/Chromium, set CHROME_PATH or use --chrome-path")
	}

	if err := os.MkdirAll(o.opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-gpu", true),
	}
	if o.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if o.opts.AllowPopups {
		allocOpts = append(allocOpts, chromedp.Flag("disable-popup-blocking", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	chromedp.ListenBrowser(ctx, o.onBrowserEvent)
	err := chromedp.Run(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(o.opts.DownloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	o.ctx, o.cancel, o.allocCancel = ctx, cancel, allocCancel
	o.logger.Debug("Chrome started from %s", chromePath)
	return ctx, nil
}

// Open asks the host tab to open url in a new window.
func (o *Opener) Open(ctx context.Context, url string) (ports.Delivery, error) {
	return o.start(ctx, url, fmt.Sprintf(`window.open(%q, "_blank") !== null`, url))
}

// OpenFrame loads url in a hidden inline frame of the host tab.
func (o *Opener) OpenFrame(ctx context.Context, url string) (ports.Delivery, error) {
	script := fmt.Sprintf(`(() => {
		const f = document.createElement("iframe");
		f.style.display = "none";
		f.src = %q;
		document.body.appendChild(f);
		return true;
	})()`, url)
	return o.start(ctx, url, script)
}

func (o *Opener) start(ctx context.Context, url, script string) (ports.Delivery, error) {
	tab, err := o.launch()
	if err != nil {
		return nil, err
	}

	d := newDelivery(url)
	o.mu.Lock()
	o.pending[url] = d
	o.mu.Unlock()

	var opened bool
	if err := chromedp.Run(tab, chromedp.Evaluate(script, &opened, withUserGesture)); err != nil {
		o.forget(url)
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	if !opened {
		o.forget(url)
		return nil, ports.ErrPopupBlocked
	}
	return d, nil
}

// withUserGesture runs the script as if the user clicked, which is what
// the popup blocker lets through.
func withUserGesture(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithUserGesture(true)
}

func (o *Opener) forget(url string) {
	o.mu.Lock()
	delete(o.pending, url)
	o.mu.Unlock()
}

func (o *Opener) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		o.mu.Lock()
		d, ok := o.pending[e.URL]
		if ok {
			delete(o.pending, e.URL)
			d.guid, d.suggested = e.GUID, e.SuggestedFilename
			o.active[e.GUID] = d
		}
		o.mu.Unlock()

	case *browser.EventDownloadProgress:
		o.mu.Lock()
		d, ok := o.active[e.GUID]
		if ok && e.State != browser.DownloadProgressStateInProgress {
			delete(o.active, e.GUID)
		}
		o.mu.Unlock()
		if !ok {
			return
		}

		switch e.State {
		case browser.DownloadProgressStateCompleted:
			path, err := o.finalName(d)
			d.finish(ports.DeliveryResult{Path: path, Bytes: int64(e.ReceivedBytes)}, err)
		case browser.DownloadProgressStateCanceled:
			d.finish(ports.DeliveryResult{}, errors.New("download canceled"))
		}
	}
}

// finalName moves the GUID-named download to its suggested name.
func (o *Opener) finalName(d *delivery) (string, error) {
	from := filepath.Join(o.opts.DownloadDir, d.guid)
	name := transport.SanitizeFilename(d.suggested)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		to := filepath.Join(o.opts.DownloadDir, candidate)
		if _, err := os.Stat(to); err == nil {
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return from, fmt.Errorf("rename download: %w", err)
		}
		return to, nil
	}
	return from, nil
}

// Close shuts the browser down.
func (o *Opener) Close() error {
	o.mu.Lock()
	cancel, allocCancel := o.cancel, o.allocCancel
	o.ctx, o.cancel, o.allocCancel = nil, nil, nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		time.Sleep(100 * time.Millisecond)
	}
	if allocCancel != nil {
		allocCancel()
	}
	return nil
}

var (
	_ ports.DownloadOpener = (*Opener)(nil)
	_ ports.FrameOpener    = (*Opener)(nil)
)
