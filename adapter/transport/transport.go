// Package transport provides the stream transports and the frame format of
// the remote tool protocol.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scttfrdmn/toolplan/adapter/errors"
)

// Transport defines the interface for framed communication with a peer.
type Transport interface {
	// Connect establishes a connection to the remote endpoint.
	Connect(ctx context.Context) error

	// SendFrame sends one delimiter-terminated frame.
	SendFrame(ctx context.Context, data []byte) error

	// ReceiveFrame receives the next non-blank frame.
	ReceiveFrame(ctx context.Context) ([]byte, error)

	// Close closes the connection.
	Close() error

	// IsConnected returns whether the transport is currently connected.
	IsConnected() bool
}

// Endpoint is a parsed transport address.
type Endpoint struct {
	Network string // "tcp", "unix" or "ws"
	// Address is host:port, a socket path, or the full ws:// or wss:// URL.
	Address string
}

// String returns the endpoint in URL form.
func (e Endpoint) String() string {
	switch e.Network {
	case "unix":
		return "unix://" + e.Address
	case "ws":
		return e.Address
	default:
		return "tcp://" + e.Address
	}
}

// ParseEndpoint parses an endpoint string.
// Supported formats:
//   - unix:///path/to/socket
//   - tcp://host:port
//   - host:port (TCP)
//   - ws://host:port/path or wss://host:port/path
func ParseEndpoint(endpoint string) (Endpoint, error) {
	if endpoint == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			return Endpoint{}, fmt.Errorf("invalid websocket endpoint: %s", endpoint)
		}
		return Endpoint{Network: "ws", Address: u.String()}, nil
	}

	if path, ok := strings.CutPrefix(endpoint, "unix://"); ok {
		if path == "" {
			return Endpoint{}, fmt.Errorf("invalid unix endpoint: %s", endpoint)
		}
		return Endpoint{Network: "unix", Address: path}, nil
	}

	addr := strings.TrimPrefix(endpoint, "tcp://")
	if strings.Contains(addr, "://") {
		return Endpoint{}, fmt.Errorf("unsupported endpoint format: %s", endpoint)
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid TCP endpoint format: %s", endpoint)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint: %s", endpoint)
	}
	return Endpoint{Network: "tcp", Address: net.JoinHostPort(host, strconv.Itoa(port))}, nil
}

// NewTransport returns a client transport for the endpoint.
func NewTransport(endpoint Endpoint, maxFrameSize int) Transport {
	if endpoint.Network == "ws" {
		return NewWebSocketTransport(endpoint.Address, maxFrameSize)
	}
	return NewStreamTransport(endpoint, maxFrameSize)
}

// StreamTransport implements Transport over a TCP or Unix stream socket.
type StreamTransport struct {
	endpoint     Endpoint
	maxFrameSize int

	mu     sync.Mutex
	conn   net.Conn
	frames *FrameReader
}

// NewStreamTransport creates a transport that dials the given endpoint.
func NewStreamTransport(endpoint Endpoint, maxFrameSize int) *StreamTransport {
	return &StreamTransport{endpoint: endpoint, maxFrameSize: maxFrameSize}
}

// NewConnTransport wraps an already-established connection, such as one
// returned by a listener.
func NewConnTransport(conn net.Conn, maxFrameSize int) *StreamTransport {
	return &StreamTransport{
		endpoint:     Endpoint{Network: conn.RemoteAddr().Network(), Address: conn.RemoteAddr().String()},
		maxFrameSize: maxFrameSize,
		conn:         conn,
		frames:       NewFrameReader(conn, maxFrameSize),
	}
}

// Connect dials the endpoint.
func (t *StreamTransport) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, t.endpoint.Network, t.endpoint.Address)
	if err != nil {
		return errors.NewConnectionError(t.endpoint.String(), "failed to connect", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.frames = NewFrameReader(conn, t.maxFrameSize)
	t.mu.Unlock()
	return nil
}

// SendFrame writes one frame, honouring the context deadline.
func (t *StreamTransport) SendFrame(ctx context.Context, data []byte) error {
	conn := t.current()
	if conn == nil {
		return errors.NewConnectionError(t.endpoint.String(), "not connected", nil)
	}

	stop := bindDeadline(ctx, conn.SetWriteDeadline)
	defer stop()

	if err := WriteFrame(conn, data); err != nil {
		return errors.NewConnectionError(t.endpoint.String(), "failed to send frame", err)
	}
	return nil
}

// ReceiveFrame reads the next non-blank frame, honouring the context
// deadline. Errors are returned unwrapped so callers can tell io.EOF and
// timeouts apart.
func (t *StreamTransport) ReceiveFrame(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	conn, frames := t.conn, t.frames
	t.mu.Unlock()
	if conn == nil {
		return nil, errors.NewConnectionError(t.endpoint.String(), "not connected", nil)
	}

	stop := bindDeadline(ctx, conn.SetReadDeadline)
	defer stop()

	return frames.Next()
}

// Close closes the connection.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		t.frames = nil
		return err
	}
	return nil
}

// IsConnected returns whether the transport is connected.
func (t *StreamTransport) IsConnected() bool {
	return t.current() != nil
}

// RemoteAddr returns the peer address, or "" when not connected.
func (t *StreamTransport) RemoteAddr() string {
	if conn := t.current(); conn != nil {
		return conn.RemoteAddr().String()
	}
	return ""
}

func (t *StreamTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// bindDeadline applies the context deadline through set and forces pending
// I/O to return when the context is cancelled. The returned func clears both.
func bindDeadline(ctx context.Context, set func(time.Time) error) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = set(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(time.Now())
	})
	return func() {
		stop()
		_ = set(time.Time{})
	}
}

// Listen creates a listener for the endpoint.
func Listen(endpoint Endpoint) (net.Listener, error) {
	switch endpoint.Network {
	case "unix":
		return CreateUnixSocketServer(endpoint.Address)
	case "tcp":
		return CreateTCPServer(endpoint.Address)
	default:
		return nil, fmt.Errorf("cannot listen on %s endpoint %s", endpoint.Network, endpoint)
	}
}

// CreateUnixSocketServer creates a Unix socket listener.
func CreateUnixSocketServer(socketPath string) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a stale socket left by a previous run
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket listener: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return listener, nil
}

// CreateTCPServer creates a TCP listener on host:port.
func CreateTCPServer(address string) (net.Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP listener: %w", err)
	}
	return listener, nil
}
