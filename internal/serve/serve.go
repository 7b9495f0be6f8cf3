// Package serve implements the dev server: static files out of the
// staging directory with cache headers matched to whether the asset
// name is content-hashed, an autoreload WebSocket endpoint, and an
// optional reverse proxy for backend API requests. Grounded on
// src/serve/mod.rs, src/ws.rs, src/serve/proxy.rs, and the
// cache-header logic of tryServeAsset/addCacheHeaders/isHashedAsset.
package serve

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trunkrs/trunk/internal/logx"
)

// clientMessage is the JSON frame sent to connected autoreload
// clients, mirroring the tagged {type, data} shape of src/ws.rs's
// ClientMessage enum.
type clientMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func reloadMessage() clientMessage { return clientMessage{Type: "reload"} }

func buildFailureMessage(reason string) clientMessage {
	return clientMessage{Type: "buildFailure", Data: map[string]string{"reason": reason}}
}

var hashPattern = regexp.MustCompile(`-[a-fA-F0-9]{8,}\.`)

func isHashedAsset(name string) bool {
	return hashPattern.MatchString(filepath.Base(name))
}

// Server serves the staging directory, proxies configured API
// prefixes to a backend, and multiplexes live-reload notifications to
// connected WebSocket clients.
type Server struct {
	root    string
	proxy   *httputil.ReverseProxy
	log     *logx.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*clientState
}

// clientState tracks whether a connection has received its first
// reload notification yet; the first one is discarded so a client
// connecting right after a successful build doesn't immediately
// reload itself.
type clientState struct {
	first bool
}

// New builds a Server rooted at dir, with a reverse proxy to backend
// (proxy disabled when backend is empty). proxyPrefix is not used
// here; the prefix passed to Handler decides which paths are proxied.
func New(dir, proxyPrefix, backend string, log *logx.Logger) (*Server, error) {
	s := &Server{root: dir, log: log, clients: map[*websocket.Conn]*clientState{}}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	if backend != "" {
		target, err := url.Parse(backend)
		if err != nil {
			return nil, err
		}
		s.proxy = httputil.NewSingleHostReverseProxy(target)
		_ = proxyPrefix
	}
	return s, nil
}

// Handler returns the top-level http.Handler: WS upgrade, proxy, then
// static file serving, in that order.
func (s *Server) Handler(wsPath, proxyPrefix string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.handleWS)
	if s.proxy != nil && proxyPrefix != "" {
		prefix := strings.TrimSuffix(proxyPrefix, "/")
		mux.Handle(prefix+"/", http.StripPrefix(prefix, s.proxy))
	}
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := normalizeAssetPath(r.URL.Path)
	if rel == "" {
		rel = "index.html"
	}

	full := filepath.Join(s.root, rel)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		full = filepath.Join(s.root, "index.html")
		info, err = os.Stat(full)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		rel = "index.html"
	}

	s.addCacheHeaders(w, rel, info)
	http.ServeFile(w, r, full)
}

func (s *Server) addCacheHeaders(w http.ResponseWriter, rel string, info os.FileInfo) {
	cacheValue := "public, max-age=300"
	if isHashedAsset(rel) {
		cacheValue = "public, max-age=31536000, immutable"
	}
	w.Header().Set("Cache-Control", cacheValue)

	if data, err := os.ReadFile(filepath.Join(s.root, rel)); err == nil {
		sum := sha1.Sum(data)
		w.Header().Set("ETag", fmt.Sprintf(`"%x"`, sum))
	}
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
}

func normalizeAssetPath(requestPath string) string {
	clean := path.Clean(strings.TrimPrefix(requestPath, "/"))
	if clean == "." || clean == "" || strings.HasPrefix(clean, "..") {
		return ""
	}
	return clean
}

// handleWS upgrades the connection and registers it to receive
// broadcast reload notifications; it otherwise does nothing but wait
// for the client to disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Error("ws upgrade failed: %v", err)
		}
		return
	}
	s.mu.Lock()
	s.clients[conn] = &clientState{first: true}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastReload notifies every connected client of a successful
// rebuild. A client's very first notification is discarded rather
// than sent, since connecting after a successful build should not
// immediately trigger a self-reload.
func (s *Server) BroadcastReload() {
	s.broadcast(reloadMessage(), true)
}

// BroadcastBuildFailure notifies every connected client that a
// rebuild failed, so the browser can surface reason instead of
// reloading into a stale or missing page.
func (s *Server) BroadcastBuildFailure(reason string) {
	s.broadcast(buildFailureMessage(reason), false)
}

func (s *Server) broadcast(msg clientMessage, skipFirst bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, state := range s.clients {
		if skipFirst && state.first {
			state.first = false
			continue
		}
		state.first = false
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
