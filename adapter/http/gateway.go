// Package http serves a tool server over HTTP: the remote tool protocol on
// a WebSocket endpoint, a health check and, optionally, Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scttfrdmn/toolplan/adapter/local"
	"github.com/scttfrdmn/toolplan/adapter/transport"
)

// Routes served by a Gateway.
const (
	PathHealth    = "/healthz"
	PathWebSocket = "/ws"
	PathMetrics   = "/metrics"
)

// Health is the /healthz response body.
type Health struct {
	Status string  `json:"status"`
	Server string  `json:"server"`
	Tools  int     `json:"tools"`
	Uptime float64 `json:"uptime_seconds"`
}

// Gateway is an HTTP front end for a local.Server.
type Gateway struct {
	addr     string
	server   *local.Server
	logger   *slog.Logger
	metrics  bool
	upgrader websocket.Upgrader
	started  time.Time

	// ctx outlives individual requests; WebSocket sessions end when it is
	// cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics serves the default Prometheus registry at /metrics.
func WithMetrics() Option {
	return func(g *Gateway) { g.metrics = true }
}

// NewGateway creates a gateway for server that will listen on addr
// ("host:port").
func NewGateway(addr string, server *local.Server, opts ...Option) (*Gateway, error) {
	if server == nil {
		return nil, fmt.Errorf("server must be provided")
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		addr:    addr,
		server:  server,
		logger:  slog.Default(),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	return g, nil
}

// Handler returns the gateway routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, g.handleHealth)
	mux.HandleFunc(PathWebSocket, g.handleWebSocket)
	if g.metrics {
		mux.Handle(PathMetrics, promhttp.Handler())
	}
	return mux
}

// Start binds addr and serves in the background.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.srv != nil {
		return fmt.Errorf("gateway is already running")
	}

	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	g.listener = listener
	g.srv = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := g.srv
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway stopped", "addr", listener.Addr().String(), "error", err)
		}
	}()
	g.logger.Info("gateway listening", "server", g.server.Name(), "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Stop ends WebSocket sessions and shuts the HTTP server down. A stopped
// Gateway cannot be restarted.
func (g *Gateway) Stop(ctx context.Context) error {
	g.cancel()

	g.mu.Lock()
	srv := g.srv
	g.srv = nil
	g.listener = nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status: "healthy",
		Server: g.server.Name(),
		Tools:  g.server.ToolCount(),
		Uptime: time.Since(g.started).Seconds(),
	})
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed", "peer", r.RemoteAddr, "error", err)
		return
	}
	t := transport.NewWebSocketConnTransport(conn, g.server.Config().MaxFrameSize)
	g.server.Serve(g.ctx, t, r.RemoteAddr)
}
