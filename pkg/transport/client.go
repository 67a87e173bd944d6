package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dchest/uniuri"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

const (
	// DefaultAckTimeout bounds the wait for each acknowledgement.
	DefaultAckTimeout = 10 * time.Second
	// DefaultChunkSize is the largest payload of a single WriteFile.
	DefaultChunkSize = 256 * 1024
)

// ErrClientClosed is returned by operations on a closed Client.
var ErrClientClosed = errors.New("transport client closed")

// ClientOptions configures a Client.
type ClientOptions struct {
	AckTimeout time.Duration
	ChunkSize  int
}

// Client is the page side of the transport.
type Client struct {
	poster Poster
	acks   *AckTable
	opts   ClientOptions
	logger ports.Logger

	newOperationID func() string

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewClient subscribes to the ack source and starts resolving
// acknowledgements until Close.
func NewClient(ctx context.Context, poster Poster, acks AckSource, opts ClientOptions, logger ports.Logger) (*Client, error) {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	subCtx, cancel := context.WithCancel(ctx)
	tokens, err := acks.Subscribe(subCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to acks: %w", err)
	}

	c := &Client{
		poster:         poster,
		acks:           NewAckTable(),
		opts:           opts,
		logger:         logger.WithComponent("transport"),
		newOperationID: func() string { return uniuri.NewLen(16) },
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go c.listen(tokens)
	return c, nil
}

func (c *Client) listen(tokens <-chan string) {
	defer close(c.done)
	for token := range tokens {
		if !c.acks.Resolve(token) {
			// Acks are broadcast to every page; most are for someone else.
			c.logger.Debug("Ignoring stray ack %s", token)
		}
	}
}

// Acks exposes the ack table for inspection.
func (c *Client) Acks() *AckTable {
	return c.acks
}

// ChunkSize returns the effective WriteFile payload limit.
func (c *Client) ChunkSize() int {
	return c.opts.ChunkSize
}

// Close stops listening for acknowledgements.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

// call posts msg and waits for its acknowledgement.
func (c *Client) call(ctx context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: ErrClientClosed}
	}

	msg.OperationID = c.newOperationID()
	acked, err := c.acks.Register(msg.OperationID)
	if err != nil {
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: err}
	}

	if err := c.poster.Post(ctx, msg); err != nil {
		c.acks.Forget(msg.OperationID)
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: err}
	}

	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()

	select {
	case <-acked:
		return nil
	case <-timer.C:
		c.acks.Forget(msg.OperationID)
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: pipeline.ErrAckTimeout}
	case <-ctx.Done():
		c.acks.Forget(msg.OperationID)
		return &pipeline.TransportError{Op: string(msg.Action), ID: msg.ID, Err: ctx.Err()}
	}
}

// Open creates the background stream for id and returns a session that
// writes into it. name is the suggested download file name.
func (c *Client) Open(ctx context.Context, id, name string) (*Session, error) {
	if err := c.call(ctx, Message{Action: ActionCreateFile, ID: id, Name: name}); err != nil {
		return nil, err
	}
	c.logger.Debug("Stream %s created for %s", id, name)
	return &Session{client: c, ctx: ctx, id: id}, nil
}

// Session is one open stream. Writes are split into chunks and each chunk
// waits for its acknowledgement before the next is sent, so at most one
// write is outstanding. A Session is not safe for concurrent use.
type Session struct {
	client  *Client
	ctx     context.Context
	id      string
	written int64
	closed  bool
	err     error
}

// ID returns the stream id.
func (s *Session) ID() string {
	return s.id
}

// Written returns the number of bytes acknowledged so far.
func (s *Session) Written() int64 {
	return s.written
}

// Write sends p as one or more WriteFile messages.
func (s *Session) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.closed {
		return 0, &pipeline.TransportError{Op: string(ActionWriteFile), ID: s.id, Err: errors.New("session closed")}
	}

	n := 0
	size := s.client.opts.ChunkSize
	for n < len(p) {
		end := n + size
		if end > len(p) {
			end = len(p)
		}
		// The chunk is copied because callers may reuse p after Write returns.
		chunk := append([]byte(nil), p[n:end]...)
		if err := s.client.call(s.ctx, Message{Action: ActionWriteFile, ID: s.id, Chunk: chunk}); err != nil {
			s.err = err
			return n, err
		}
		n = end
		s.written += int64(len(chunk))
	}
	return n, nil
}

// Abort tells the background context the file will never be completed so
// its reader stops waiting. It is best effort: the acknowledgement is
// awaited for at most one ack timeout even when the session's context is
// already done.
func (s *Session) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.client.opts.AckTimeout)
	defer cancel()
	return s.client.call(ctx, Message{Action: ActionAbortFile, ID: s.id})
}

// Close sends CloseFile and waits for its acknowledgement.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.call(s.ctx, Message{Action: ActionCloseFile, ID: s.id}); err != nil {
		return err
	}
	return s.err
}
