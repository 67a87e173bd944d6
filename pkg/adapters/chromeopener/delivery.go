package chromeopener

import (
	"context"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

type delivery struct {
	url       string
	guid      string
	suggested string

	once   sync.Once
	done   chan struct{}
	result ports.DeliveryResult
	err    error
}

func newDelivery(url string) *delivery {
	return &delivery{url: url, done: make(chan struct{})}
}

func (d *delivery) finish(res ports.DeliveryResult, err error) {
	d.once.Do(func() {
		d.result, d.err = res, err
		close(d.done)
	})
}

// Wait implements ports.Delivery.
func (d *delivery) Wait(ctx context.Context) (ports.DeliveryResult, error) {
	select {
	case <-d.done:
		return d.result, d.err
	case <-ctx.Done():
		return ports.DeliveryResult{}, ctx.Err()
	}
}
