package ports

import (
	"context"
	"errors"
)

// ErrPopupBlocked is returned by a DownloadOpener whose window could not be opened.
var ErrPopupBlocked = errors.New("popup window blocked")

// DownloadOpener points a consumer at a download URL served by the
// background context, so that the streamed bytes land in a file.
type DownloadOpener interface {
	Open(ctx context.Context, url string) (Delivery, error)
	Close() error
}

// FrameOpener is implemented by openers that can fall back to a hidden
// inline frame when their primary channel is blocked.
type FrameOpener interface {
	OpenFrame(ctx context.Context, url string) (Delivery, error)
}

// Delivery tracks one download in flight.
type Delivery interface {
	// Wait blocks until the consumer has stored the file.
	Wait(ctx context.Context) (DeliveryResult, error)
}

// DeliveryResult describes a stored download. Path is empty when the
// consumer does not report where it saved the file.
type DeliveryResult struct {
	Path  string
	Bytes int64
}

// SharedFile is one file handed to a Sharer.
type SharedFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// Sharer hands files to the platform share facility.
type Sharer interface {
	Share(ctx context.Context, files []SharedFile) error
}

// Notice is a one-shot message shown to the user. When Retry is set the
// user is offered RetryLabel to run it again.
type Notice struct {
	Title      string
	Message    string
	RetryLabel string
	Retry      func(ctx context.Context) error
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}
