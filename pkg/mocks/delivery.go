package mocks

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// Saver is a mock implementation of ports.Saver that keeps files in memory.
type Saver struct {
	mu    sync.Mutex
	Files map[string][]byte
	Order []string

	SaveFunc func(ctx context.Context, name string, data []byte) (string, error)
}

func NewSaver() *Saver {
	return &Saver{Files: make(map[string][]byte)}
}

func (m *Saver) Save(ctx context.Context, name string, data []byte) (string, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, name, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[name] = append([]byte(nil), data...)
	m.Order = append(m.Order, name)
	return "/mem/" + name, nil
}

var _ ports.Saver = (*Saver)(nil)

// Notifier records notices.
type Notifier struct {
	mu      sync.Mutex
	Notices []ports.Notice
}

func (m *Notifier) Notify(ctx context.Context, n ports.Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, n)
}

// Count returns the number of notices shown.
func (m *Notifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notices)
}

var _ ports.Notifier = (*Notifier)(nil)

// Sharer is a mock implementation of ports.Sharer.
type Sharer struct {
	mu        sync.Mutex
	Calls     int
	LastFiles []ports.SharedFile

	ShareFunc func(ctx context.Context, files []ports.SharedFile) error
}

func (m *Sharer) Share(ctx context.Context, files []ports.SharedFile) error {
	m.mu.Lock()
	m.Calls++
	m.LastFiles = files
	fn := m.ShareFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, files)
	}
	return nil
}

var _ ports.Sharer = (*Sharer)(nil)

// Opener is a mock ports.DownloadOpener. By default it consumes the URL
// with an HTTP GET, like a browser window would, and reports the bytes read.
type Opener struct {
	mu     sync.Mutex
	URLs   []string
	Frames []string

	OpenFunc      func(ctx context.Context, url string) (ports.Delivery, error)
	OpenFrameFunc func(ctx context.Context, url string) (ports.Delivery, error)
	Client        *http.Client
}

func (m *Opener) Open(ctx context.Context, url string) (ports.Delivery, error) {
	m.mu.Lock()
	m.URLs = append(m.URLs, url)
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, url)
	}
	return m.fetch(ctx, url), nil
}

func (m *Opener) OpenFrame(ctx context.Context, url string) (ports.Delivery, error) {
	m.mu.Lock()
	m.Frames = append(m.Frames, url)
	m.mu.Unlock()
	if m.OpenFrameFunc != nil {
		return m.OpenFrameFunc(ctx, url)
	}
	return m.fetch(ctx, url), nil
}

func (m *Opener) Close() error { return nil }

func (m *Opener) fetch(ctx context.Context, url string) *Delivery {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	d := &Delivery{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			d.err = err
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			d.err = err
			return
		}
		defer resp.Body.Close()
		d.Header = resp.Header
		d.Body, d.err = io.ReadAll(resp.Body)
	}()
	return d
}

var (
	_ ports.DownloadOpener = (*Opener)(nil)
	_ ports.FrameOpener    = (*Opener)(nil)
)

// Delivery is the mock ports.Delivery returned by Opener.
type Delivery struct {
	done   chan struct{}
	err    error
	Header http.Header
	Body   []byte
}

// CompletedDelivery returns a delivery that is already done.
func CompletedDelivery() *Delivery {
	d := &Delivery{done: make(chan struct{})}
	close(d.done)
	return d
}

func (d *Delivery) Wait(ctx context.Context) (ports.DeliveryResult, error) {
	select {
	case <-d.done:
		return ports.DeliveryResult{Bytes: int64(len(d.Body))}, d.err
	case <-ctx.Done():
		return ports.DeliveryResult{}, ctx.Err()
	}
}

var _ ports.Delivery = (*Delivery)(nil)
