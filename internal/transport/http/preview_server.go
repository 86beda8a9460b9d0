// Package httpserver handles all message traffic between the deck and the browser.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-live-slides/internal/contracts"
	"go-live-slides/internal/render"
)

type renderPayload struct {
	html     string
	filename string
	active   string
}

// Handlers receive browser requests. Unset handlers drop the message.
type Handlers struct {
	OnStep     func(contracts.StepMessage)
	OnGoto     func(contracts.GotoMessage)
	OnGoToLine func(contracts.GoToLineMessage)
}

// PreviewServer coordinates HTTP serving and WebSocket updates.
type PreviewServer struct {
	addr  string
	shell string
	log   *zap.Logger

	mu       sync.Mutex
	started  bool
	server   *http.Server
	handlers Handlers

	// limiter bounds the rate of browser messages acted upon.
	limiter *rate.Limiter

	updates    chan renderPayload
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}

	upgrader websocket.Upgrader
}

// NewPreviewServer creates an HTTP/WebSocket preview server bound to addr.
// A nil limiter accepts every browser message.
func NewPreviewServer(addr string, shell string, limiter *rate.Limiter, log *zap.Logger) *PreviewServer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PreviewServer{
		addr:    addr,
		shell:   shell,
		log:     log,
		limiter: limiter,

		updates:    make(chan renderPayload, 8),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopLoop:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// URL returns the browser URL for the preview server.
func (m *PreviewServer) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "http://" + m.addr
}

// SetHandlers registers the callbacks for browser requests.
func (m *PreviewServer) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// Handler returns the HTTP routes of the preview.
func (m *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc(render.AssetPrefix, m.handleAsset)
	return mux
}

// StartOrUpdate starts the preview server on first call and publishes new HTML.
func (m *PreviewServer) StartOrUpdate(fragment, path, active string) error {
	m.mu.Lock()
	if !m.started {
		ln, err := net.Listen("tcp", m.addr)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("unable to listen on %s: %w", m.addr, err)
		}
		m.addr = ln.Addr().String()
		m.server = &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
		m.started = true

		go m.runLoop(m.stopLoop)
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				m.log.Error("Preview server stopped", zap.Error(err))
			}
		}(m.server)
		m.log.Info("Preview server started", zap.String("url", "http://"+m.addr))
	}
	m.mu.Unlock()

	m.publish(renderPayload{html: fragment, filename: filepath.Base(path), active: active})
	return nil
}

func (m *PreviewServer) publish(p renderPayload) {
	m.updates <- p
}

// Stop gracefully shuts down the HTTP server and run loop.
func (m *PreviewServer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.server.Shutdown(ctx)

	close(m.stopLoop)
	m.stopLoop = make(chan struct{})

	m.started = false
	m.server = nil
	return err
}

// handleIndex serves the initial HTML shell.
func (m *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(m.shell))
}

// handleWS upgrades the connection and dispatches browser messages. Messages
// are dispatched on the connection goroutine so handlers may publish updates
// without blocking the run loop.
func (m *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	stop := m.stopLoop
	m.mu.Unlock()

	select {
	case m.register <- conn:
	case <-stop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case m.unregister <- conn:
		case <-stop:
		}
	}()

	// Block here until the connection closes / errors outs
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !m.limiter.Allow() {
			m.log.Debug("Browser message dropped by rate limit")
			continue
		}
		m.dispatch(msg)
	}
}

func (m *PreviewServer) dispatch(raw []byte) {
	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		m.log.Debug("Malformed browser message", zap.Error(err))
		return
	}

	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()

	switch envelope.Type {
	case contracts.MessageTypeInnerStep:
		var msg contracts.StepMessage
		if err := json.Unmarshal(raw, &msg); err == nil && h.OnStep != nil {
			h.OnStep(msg)
		}
	case contracts.MessageTypeGoto:
		var msg contracts.GotoMessage
		if err := json.Unmarshal(raw, &msg); err == nil && h.OnGoto != nil {
			h.OnGoto(msg)
		}
	case contracts.MessageTypeGoToLine:
		var msg contracts.GoToLineMessage
		if err := json.Unmarshal(raw, &msg); err == nil && h.OnGoToLine != nil {
			h.OnGoToLine(msg)
		}
	default:
		m.log.Debug("Unknown browser message", zap.String("type", envelope.Type))
	}
}

// handleAsset serves local markdown assets via encoded absolute paths.
func (m *PreviewServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, render.AssetPrefix)
	if id == "" {
		http.NotFound(w, r)
		return
	}

	decoded, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	assetPath := filepath.Clean(string(decoded))
	if assetPath == "." || !filepath.IsAbs(assetPath) {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(assetPath)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, assetPath)
}

// runLoop serializes state updates and websocket writes on a single goroutine.
func (m *PreviewServer) runLoop(stop <-chan struct{}) {
	var conn *websocket.Conn
	lastRender := contracts.RenderMessage{Type: contracts.MessageTypeRender}

	for {
		select {
		case update := <-m.updates:
			lastRender.Rev++
			lastRender.HTML = update.html
			lastRender.Filename = update.filename
			lastRender.Active = update.active

			if conn == nil {
				continue
			}
			if !writeJSON(conn, lastRender) {
				conn = nil
			}

		case c := <-m.register:
			if conn != nil {
				_ = conn.Close()
			}
			conn = c

			if !writeJSON(conn, lastRender) {
				conn = nil
			}

		case c := <-m.unregister:
			if conn == c {
				_ = conn.Close()
				conn = nil
			}

		case <-stop:
			if conn != nil {
				_ = conn.Close()
				conn = nil
			}
			return
		}
	}
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
