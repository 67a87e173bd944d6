package cachepolicy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// DefaultMarker is the path fragment that bypasses the cache.
const DefaultMarker = "updatecode"

// Header values reported in X-Cache.
const (
	CacheMiss     = "MISS"
	CacheFallback = "FALLBACK"
	CacheBypass   = "BYPASS"
)

// hop-by-hop headers are never copied between upstream and client.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Handler forwards requests to an upstream origin. GET responses are
// stored as they pass through and replayed when the upstream fails at the
// network level.
type Handler struct {
	Upstream *url.URL
	Store    Store
	Client   *http.Client
	Marker   string

	logger ports.Logger
	now    func() time.Time
}

// NewHandler creates a network-first handler for upstream.
func NewHandler(upstream *url.URL, store Store, logger ports.Logger) *Handler {
	return &Handler{
		Upstream: upstream,
		Store:    store,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Marker:   DefaultMarker,
		logger:   logger.WithComponent("cache"),
		now:      time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bypass := r.Method != http.MethodGet || (h.Marker != "" && strings.Contains(r.URL.Path, h.Marker))
	key := r.URL.RequestURI()

	resp, err := h.fetch(r)
	if err != nil {
		if bypass {
			http.Error(w, "upstream unavailable", http.StatusGatewayTimeout)
			return
		}
		h.fallback(w, r, key, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if bypass {
			http.Error(w, "upstream unavailable", http.StatusGatewayTimeout)
			return
		}
		h.fallback(w, r, key, err)
		return
	}

	state := CacheMiss
	if bypass {
		state = CacheBypass
	} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		entry := Entry{Status: resp.StatusCode, Header: cleanHeader(resp.Header), Body: body, StoredAt: h.now()}
		if err := h.Store.Put(r.Context(), key, entry); err != nil {
			h.logger.Warn("Could not cache %s: %v", key, err)
		}
	}

	copyHeader(w.Header(), resp.Header)
	w.Header().Set("X-Cache", state)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

func (h *Handler) fetch(r *http.Request) (*http.Response, error) {
	target := *h.Upstream
	target.Path = strings.TrimSuffix(h.Upstream.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	copyHeader(req.Header, r.Header)
	return h.Client.Do(req)
}

func (h *Handler) fallback(w http.ResponseWriter, r *http.Request, key string, cause error) {
	entry, ok, err := h.Store.Get(r.Context(), key)
	if err != nil {
		h.logger.Warn("Cache lookup for %s failed: %v", key, err)
	}
	if !ok {
		h.logger.Debug("Upstream failed for %s with nothing cached: %v", key, cause)
		http.Error(w, "upstream unavailable", http.StatusGatewayTimeout)
		return
	}

	h.logger.Debug("Serving cached %s: %v", key, cause)
	copyHeader(w.Header(), entry.Header)
	w.Header().Set("X-Cache", CacheFallback)
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
}

func cleanHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	copyHeader(dst, src)
	return dst
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(k string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, k) {
			return true
		}
	}
	return false
}
