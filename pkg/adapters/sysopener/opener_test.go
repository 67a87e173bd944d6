package sysopener

import (
	"context"
	"errors"
	"testing"

	"github.com/user/framegrab/pkg/adapters/logger"
)

func TestOpen_WaitsForWatcher(t *testing.T) {
	var order []string
	watch := func(url string) (func(ctx context.Context) (int64, error), error) {
		order = append(order, "watch")
		return func(ctx context.Context) (int64, error) { return 42, nil }, nil
	}
	o := New(watch, logger.NewNoop())
	o.open = func(url string) error {
		order = append(order, "open "+url)
		return nil
	}

	d, err := o.Open(context.Background(), "http://127.0.0.1/downloader?id=x")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := d.Wait(context.Background())
	if err != nil || res.Bytes != 42 {
		t.Errorf("unexpected result %+v, %v", res, err)
	}
	if len(order) != 2 || order[0] != "watch" {
		t.Errorf("the watch must be registered before the browser opens, got %v", order)
	}
}

func TestOpen_BrowserFailure(t *testing.T) {
	o := New(nil, logger.NewNoop())
	o.open = func(string) error { return errors.New("no display") }

	if _, err := o.Open(context.Background(), "http://x"); err == nil {
		t.Error("expected an error when the browser cannot start")
	}
}

func TestOpen_NoWatcherCompletesImmediately(t *testing.T) {
	o := New(nil, logger.NewNoop())
	o.open = func(string) error { return nil }

	d, _ := o.Open(context.Background(), "http://x")
	if _, err := d.Wait(context.Background()); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
