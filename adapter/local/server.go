// Package local provides the server side of the remote tool protocol: it
// exposes an in-process tool registry to remote clients.
package local

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/netutil"

	"github.com/scttfrdmn/toolplan/adapter/codec"
	"github.com/scttfrdmn/toolplan/adapter/errors"
	"github.com/scttfrdmn/toolplan/adapter/transport"
	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// ToolProvider is the read-only registry view a Server serves from.
type ToolProvider interface {
	Get(name string) (toolplan.Tool, bool)
	Specs() []toolplan.ToolSpec
}

// Config holds server tuning knobs.
type Config struct {
	// MaxConnections caps concurrent client connections (0 = unlimited).
	MaxConnections int

	// MaxFrameSize bounds a single request frame.
	MaxFrameSize int

	// CallTimeout bounds a single call_tool execution (0 = no limit).
	CallTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 64,
		MaxFrameSize:   transport.DefaultMaxFrameSize,
		CallTimeout:    30 * time.Second,
	}
}

// Server accepts connections and answers handshake, list_tools and
// call_tool requests. Each connection is served by its own goroutine and
// its requests are handled in arrival order.
type Server struct {
	name     string
	endpoint transport.Endpoint
	tools    ToolProvider
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.ToolMetrics

	mu       sync.Mutex
	listener net.Listener
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	connMu      sync.Mutex
	connections map[io.Closer]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.config = cfg }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics records every call_tool invocation.
func WithMetrics(m *observability.ToolMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// NewServer creates a new tool server.
//
// Args:
//   - name: Server label used in logs
//   - endpoint: Endpoint URL (e.g. "tcp://0.0.0.0:7001" or "unix:///tmp/tools.sock")
//   - tools: The registry to expose
func NewServer(name, endpoint string, tools ToolProvider, opts ...Option) (*Server, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint must be provided")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool provider must be provided")
	}
	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	s := &Server{
		name:        name,
		endpoint:    ep,
		tools:       tools,
		config:      DefaultConfig(),
		logger:      slog.Default(),
		tracer:      observability.GetTracer("toolplan/toolserver"),
		connections: make(map[io.Closer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the server label.
func (s *Server) Name() string {
	return s.name
}

// ToolCount returns the number of tools served.
func (s *Server) ToolCount() int {
	return len(s.tools.Specs())
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// Start binds the endpoint and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := transport.Listen(s.endpoint)
	if err != nil {
		return err
	}
	if s.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.MaxConnections)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.running = true

	s.logger.Info("tool server listening",
		"server", s.name, "addr", listener.Addr().String(), "tools", len(s.tools.Specs()))

	s.wg.Add(1)
	go s.acceptConnections(serveCtx, listener)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all client connections and waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	if s.endpoint.Network == "unix" {
		if err := os.Remove(s.endpoint.Address); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove socket file", "path", s.endpoint.Address, "error", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("tool server stopped", "server", s.name)
	return nil
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptConnections(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.isRunning() || stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", "server", s.name, "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		go s.handleClient(ctx, conn)
	}
}

func (s *Server) handleClient(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	s.Serve(ctx, transport.NewConnTransport(conn, s.config.MaxFrameSize), conn.RemoteAddr().String())
}

// Serve answers requests arriving on t, in order, until the peer
// disconnects, ctx is cancelled or the server stops. It closes t. The
// listener calls it for every accepted connection; other front ends, such
// as a WebSocket upgrade handler, call it directly.
func (s *Server) Serve(ctx context.Context, t transport.Transport, peer string) {
	defer t.Close()

	s.connMu.Lock()
	s.connections[t] = struct{}{}
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.connections, t)
		s.connMu.Unlock()
	}()

	s.logger.Debug("client connected", "server", s.name, "peer", peer)

	for {
		frame, err := t.ReceiveFrame(ctx)
		if err != nil {
			if err != io.EOF && s.isRunning() && ctx.Err() == nil {
				s.logger.Debug("connection read ended", "server", s.name, "peer", peer, "error", err)
			}
			break
		}

		req, err := codec.DecodeRequest(frame)
		if err != nil {
			s.logger.Debug("dropping malformed frame", "server", s.name, "peer", peer, "error", err)
			continue
		}

		resp := s.Handle(ctx, req)
		data, err := codec.Encode(resp)
		if err != nil {
			s.logger.Error("failed to encode response", "server", s.name, "method", req.Method, "error", err)
			data, _ = codec.Encode(codec.NewErrorResponse(req.ID, errors.CodeInternal, "failed to encode result"))
		}
		if err := t.SendFrame(ctx, data); err != nil {
			s.logger.Debug("failed to send response", "server", s.name, "peer", peer, "error", err)
			break
		}
	}

	s.logger.Debug("client disconnected", "server", s.name, "peer", peer)
}

// Handle answers a single request. It never returns nil: handler failures
// and panics become error responses.
func (s *Server) Handle(ctx context.Context, req *codec.Request) (resp *codec.Response) {
	ctx = observability.ExtractMeta(ctx, req.Meta)
	spanName := "toolserver." + req.Method
	if req.Method == "" {
		spanName = "toolserver.request"
	}
	ctx, span := s.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", req.Method), attribute.String("rpc.id", req.ID)),
	)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", "server", s.name, "method", req.Method, "panic", r, "stack", string(debug.Stack()))
			resp = codec.NewErrorResponse(req.ID, errors.CodeInternal, fmt.Sprintf("internal error: %v", r))
		}
		var err error
		if resp.Error != nil {
			err = stderrors.New(resp.Error.Message)
		}
		observability.EndSpan(span, err)
	}()

	switch req.Method {
	case codec.MethodHandshake:
		return s.respond(req.ID, codec.HandshakeResult{
			Protocol:     codec.ProtocolVersion,
			Capabilities: codec.Capabilities{Tools: s.schemas()},
		})
	case codec.MethodListTools:
		return s.respond(req.ID, codec.ListToolsResult{Tools: s.schemas()})
	case codec.MethodCallTool:
		return s.callTool(ctx, req)
	case "":
		return codec.NewErrorResponse(req.ID, errors.CodeUnknownMethod, "unknown method: request has no method")
	default:
		return codec.NewErrorResponse(req.ID, errors.CodeUnknownMethod, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *codec.Request) *codec.Response {
	var params codec.CallToolParams
	if err := req.DecodeParams(&params); err != nil {
		return codec.NewErrorResponse(req.ID, errors.CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	if params.Name == "" {
		return codec.NewErrorResponse(req.ID, errors.CodeInvalidParams, "missing tool name")
	}

	tool, ok := s.tools.Get(params.Name)
	if !ok {
		s.metrics.Record(ctx, params.Name, "not_found", 0)
		return codec.NewErrorResponse(req.ID, errors.CodeUnknownTool, fmt.Sprintf("tool '%s' not found", params.Name))
	}

	if s.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params.Args)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		s.metrics.Record(ctx, params.Name, "error", elapsed)
		s.logger.Warn("tool failed", "server", s.name, "tool", params.Name, "error", err)
		return codec.NewErrorResponse(req.ID, errors.CodeToolError, err.Error())
	case result == nil:
		s.metrics.Record(ctx, params.Name, "error", elapsed)
		return codec.NewErrorResponse(req.ID, errors.CodeToolError, "tool returned no result")
	case !result.Success:
		s.metrics.Record(ctx, params.Name, "error", elapsed)
		return codec.NewErrorResponse(req.ID, errors.CodeToolError, result.Error)
	}

	s.metrics.Record(ctx, params.Name, "success", elapsed)
	s.logger.Debug("tool executed", "server", s.name, "tool", params.Name, "duration", elapsed)
	return s.respond(req.ID, codec.CallToolResult{Result: codec.ResultValue(result.Output)})
}

func (s *Server) respond(id string, result interface{}) *codec.Response {
	resp, err := codec.NewResponse(id, result)
	if err != nil {
		return codec.NewErrorResponse(id, errors.CodeInternal, err.Error())
	}
	return resp
}

func (s *Server) schemas() []codec.ToolSchema {
	specs := s.tools.Specs()
	out := make([]codec.ToolSchema, 0, len(specs))
	for _, spec := range specs {
		out = append(out, codec.SchemaFromSpec(spec))
	}
	return out
}
