package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/toolplan/adapter/errors"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

// WebSocketTransport carries protocol frames over a WebSocket connection.
// Each frame travels as one text message; the message boundary replaces
// the stream delimiter, so a trailing delimiter on a received message is
// ignored.
type WebSocketTransport struct {
	url          string
	maxFrameSize int
	dialer       *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	// gorilla allows one concurrent writer and one concurrent reader.
	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewWebSocketTransport creates a transport that dials a ws:// or wss://
// URL. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewWebSocketTransport(url string, maxFrameSize int) *WebSocketTransport {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &WebSocketTransport{
		url:          url,
		maxFrameSize: maxFrameSize,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// NewWebSocketConnTransport wraps an accepted connection, such as one
// returned by websocket.Upgrader.
func NewWebSocketConnTransport(conn *websocket.Conn, maxFrameSize int) *WebSocketTransport {
	t := NewWebSocketTransport(conn.RemoteAddr().String(), maxFrameSize)
	conn.SetReadLimit(int64(t.maxFrameSize))
	t.conn = conn
	return t
}

// Connect dials the URL. It is a no-op on an accepted connection.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.IsConnected() {
		return nil
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return errors.NewConnectionError(t.url, fmt.Sprintf("websocket handshake failed (HTTP %d)", resp.StatusCode), err)
		}
		return errors.NewConnectionError(t.url, "failed to connect", err)
	}
	conn.SetReadLimit(int64(t.maxFrameSize))

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// SendFrame writes one frame as a text message.
func (t *WebSocketTransport) SendFrame(ctx context.Context, data []byte) error {
	conn := t.current()
	if conn == nil {
		return errors.NewConnectionError(t.url, "not connected", nil)
	}
	if bytes.Contains(data, Delimiter) {
		return ErrDelimiterInPayload
	}
	if len(data) > t.maxFrameSize {
		return ErrFrameTooLarge
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	stop := bindDeadline(ctx, conn.SetWriteDeadline)
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.NewConnectionError(t.url, "failed to send frame", err)
	}
	return nil
}

// ReceiveFrame reads the next non-blank message. A normal close from the
// peer is reported as io.EOF.
func (t *WebSocketTransport) ReceiveFrame(ctx context.Context) ([]byte, error) {
	conn := t.current()
	if conn == nil {
		return nil, errors.NewConnectionError(t.url, "not connected", nil)
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	stop := bindDeadline(ctx, conn.SetReadDeadline)
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if stderrors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		data = bytes.TrimSuffix(data, Delimiter)
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return data, nil
	}
}

// Close sends a close message and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	return conn.Close()
}

// IsConnected returns whether the transport is connected.
func (t *WebSocketTransport) IsConnected() bool {
	return t.current() != nil
}

func (t *WebSocketTransport) current() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}
