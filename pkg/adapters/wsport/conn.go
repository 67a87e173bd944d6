// Package wsport connects a page in one process to a downloader server's
// websocket message route.
package wsport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// Conn posts transport messages over a websocket and republishes the acks
// the server sends back to local subscribers.
type Conn struct {
	ws     *websocket.Conn
	acks   *broadcast.Local
	logger ports.Logger

	writeMu sync.Mutex
	done    chan struct{}
	cancel  context.CancelFunc
}

var (
	_ transport.Poster    = (*Conn)(nil)
	_ transport.AckSource = (*Conn)(nil)
)

// Dial opens the message route of the server at baseURL.
func Dial(ctx context.Context, baseURL string, logger ports.Logger) (*Conn, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/messages")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		acks:   broadcast.NewLocal(),
		logger: logger.WithComponent("wsport"),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.readLoop(readCtx)
	return c, nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("Websocket closed: %v", err)
			return
		}
		if err := c.acks.Publish(ctx, string(data)); err != nil {
			return
		}
	}
}

// Post implements transport.Poster.
func (c *Conn) Post(ctx context.Context, msg transport.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("post %s: %w", msg.Action, err)
	}
	return nil
}

// Subscribe implements transport.AckSource.
func (c *Conn) Subscribe(ctx context.Context) (<-chan string, error) {
	return c.acks.Subscribe(ctx)
}

// Close sends a close frame and waits for the reader to stop.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	c.cancel()
	<-c.done
	return err
}
