// Package downloader answers the interception route with the readable half
// of a transport stream, so the browser saves the archive as an ordinary
// download while it is still being built.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// DefaultAddr listens on an ephemeral loopback port.
const DefaultAddr = "127.0.0.1:0"

// Config holds the server's collaborators.
type Config struct {
	Addr   string
	Worker *transport.Worker
	// Acks is the bus the worker publishes on. It is required for the
	// websocket message route.
	Acks transport.AckSource
	// Fallback serves every other path, usually a cachepolicy.Handler.
	Fallback http.Handler
	Logger   ports.Logger
}

// Server hosts the interception route.
type Server struct {
	cfg       Config
	router    chi.Router
	metrics   *Metrics
	logger    ports.Logger
	upgrader  websocket.Upgrader
	startedAt time.Time

	mu         sync.Mutex
	httpServer *http.Server
	baseURL    string
	watchers   map[string]chan served
}

type served struct {
	bytes int64
	err   error
}

// NewServer builds the router. Call Start to listen.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		cfg:       cfg,
		metrics:   newMetrics(cfg.Worker),
		logger:    cfg.Logger.WithComponent("downloader"),
		startedAt: time.Now(),
		watchers:  make(map[string]chan served),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     sameHost,
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/downloader", s.handleDownload)
	if s.cfg.Acks != nil {
		r.Get("/messages", s.handleMessages)
	}

	if s.cfg.Fallback != nil {
		r.NotFound(s.cfg.Fallback.ServeHTTP)
		r.MethodNotAllowed(s.cfg.Fallback.ServeHTTP)
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address and serves until ctx is done.
// It returns the base URL the server is reachable at.
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	base := "http://" + ln.Addr().String()

	s.mu.Lock()
	s.httpServer = srv
	s.baseURL = base
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Listening on %s", base)
	return base, nil
}

// BaseURL returns the address Start is serving on.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// DownloadURL returns the interception URL for stream id.
func (s *Server) DownloadURL(id string) string {
	return s.BaseURL() + "/downloader?id=" + url.QueryEscape(id)
}

// ErrNotDownloaded is returned by a delivery watch whose URL names no stream.
var ErrNotDownloaded = errors.New("not a download URL")

// WatchDelivery registers interest in the download at rawURL before it is
// opened. The returned function blocks until the route has served it.
func (s *Server) WatchDelivery(rawURL string) (func(ctx context.Context) (int64, error), error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	id := u.Query().Get("id")
	if id == "" {
		return nil, ErrNotDownloaded
	}

	ch := make(chan served, 1)
	s.mu.Lock()
	s.watchers[id] = ch
	s.mu.Unlock()

	return func(ctx context.Context) (int64, error) {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()
		select {
		case res := <-ch:
			return res.bytes, res.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, nil
}

func (s *Server) notify(id string, n int64, err error) {
	s.mu.Lock()
	ch, ok := s.watchers[id]
	s.mu.Unlock()
	if ok {
		select {
		case ch <- served{bytes: n, err: err}:
		default:
		}
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	UptimeS   int64  `json:"uptime_s"`
	Active    int    `json:"active_streams"`
	Created   int    `json:"created_streams"`
	Delivered int    `json:"delivered_streams"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.cfg.Worker.Stats()
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		UptimeS:   int64(time.Since(s.startedAt).Seconds()),
		Active:    stats.Active,
		Created:   stats.Created,
		Delivered: stats.Delivered,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.metrics.Downloads.WithLabelValues("bad_request").Inc()
		WriteError(w, http.StatusBadRequest, "id is required", "BAD_REQUEST")
		return
	}

	stream, err := s.cfg.Worker.Take(id)
	switch {
	case errors.Is(err, pipeline.ErrUnknownSession):
		s.metrics.Downloads.WithLabelValues("not_found").Inc()
		WriteError(w, http.StatusNotFound, "unknown download", "NOT_FOUND")
		return
	case errors.Is(err, transport.ErrAlreadyDelivered):
		s.metrics.Downloads.WithLabelValues("conflict").Inc()
		WriteError(w, http.StatusConflict, "download already in progress", "CONFLICT")
		return
	case err != nil:
		s.metrics.Downloads.WithLabelValues("error").Inc()
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return
	}
	defer s.cfg.Worker.Release(id)
	// A client that goes away must not leave the copy blocked on a stream
	// nobody will finish.
	stop := context.AfterFunc(r.Context(), func() { s.cfg.Worker.Release(id) })
	defer stop()

	s.logger.Info("Delivering %s as %s", id, stream.Name)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", transport.ContentDisposition(stream.Name))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := copyFlushing(w, stream)
	s.metrics.Bytes.Add(float64(n))
	s.notify(id, n, err)
	if err != nil {
		s.metrics.Downloads.WithLabelValues("aborted").Inc()
		s.logger.Warn("Download %s aborted after %d bytes: %v", id, n, err)
		// Drop the connection so the consumer sees a failed download
		// instead of a truncated file that ends cleanly.
		panic(http.ErrAbortHandler)
	}
	s.metrics.Downloads.WithLabelValues("ok").Inc()
}

// copyFlushing copies src to w, flushing after every read so the client
// sees bytes as soon as each chunk arrives.
func copyFlushing(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// handleMessages lets a page in another process drive the worker. Every
// text frame from the client is a JSON Message; every ack on the bus is
// sent back as a bare operation id.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tokens, err := s.cfg.Acks.Subscribe(ctx)
	if err != nil {
		s.logger.Error("Ack subscription failed: %v", err)
		return
	}

	go func() {
		for token := range tokens {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(token)); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		var msg transport.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Websocket closed: %v", err)
			}
			return
		}
		if err := s.cfg.Worker.Handle(ctx, msg); err != nil {
			s.metrics.Messages.WithLabelValues(string(msg.Action), "error").Inc()
			continue
		}
		s.metrics.Messages.WithLabelValues(string(msg.Action), "ok").Inc()
	}
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
