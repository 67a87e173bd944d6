// Package broadcast provides acknowledgement buses for the transport.
package broadcast

import (
	"context"
	"sync"

	"github.com/user/framegrab/pkg/transport"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 64

// Local fans tokens out to every subscriber in the same process.
// Unlike a lossy broadcaster it never drops a token: Publish waits for
// each live subscriber to accept it.
type Local struct {
	mu     sync.RWMutex
	subs   map[int]*localSub
	nextID int
}

type localSub struct {
	ch  chan string
	ctx context.Context
}

var _ transport.AckBus = (*Local)(nil)

// NewLocal creates an empty bus.
func NewLocal() *Local {
	return &Local{subs: make(map[int]*localSub)}
}

// Subscribe implements transport.AckSource.
func (l *Local) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := &localSub{ch: make(chan string, DefaultBufferSize), ctx: ctx}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = sub
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(sub.ch)
		l.mu.Unlock()
	}()
	return sub.ch, nil
}

// Publish implements transport.AckPublisher.
func (l *Local) Publish(ctx context.Context, token string) error {
	// The read lock keeps subscriber channels open while sending.
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, sub := range l.subs {
		select {
		case sub.ch <- token:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}
