// Package remote provides the client side of the remote tool protocol.
package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/scttfrdmn/toolplan/adapter/codec"
	"github.com/scttfrdmn/toolplan/adapter/errors"
	"github.com/scttfrdmn/toolplan/adapter/transport"
	"github.com/scttfrdmn/toolplan/observability"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 30 * time.Second

// Client talks to one tool server. Every call opens its own connection,
// sends one request and waits for the response carrying the same id, so a
// Client is safe for concurrent use.
type Client struct {
	name         string
	endpoint     transport.Endpoint
	timeout      time.Duration
	maxFrameSize int
	dial         func(transport.Endpoint) transport.Transport
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxFrameSize sets the largest response frame the client accepts.
func WithMaxFrameSize(n int) Option {
	return func(c *Client) { c.maxFrameSize = n }
}

// WithLogger sets the logger used for discarded frames.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTransportFactory replaces the function that creates the per-call
// transport.
func WithTransportFactory(dial func(transport.Endpoint) transport.Transport) Option {
	return func(c *Client) { c.dial = dial }
}

// NewClient creates a new tool server client.
//
// Args:
//   - name: Label for logs and errors (e.g. "weather")
//   - endpoint: Endpoint URL (e.g. "tcp://mcp-weather:7001" or "unix:///tmp/tools.sock")
//   - timeout: Per-call timeout (0 for default 30s)
func NewClient(name, endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint must be provided")
	}

	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		name:     name,
		endpoint: ep,
		timeout:  timeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ep transport.Endpoint) transport.Transport {
			return transport.NewTransport(ep, c.maxFrameSize)
		}
	}
	return c, nil
}

// Name returns the client label.
func (c *Client) Name() string {
	return c.name
}

// Endpoint returns the server endpoint in URL form.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Handshake asks the server for its protocol version and tool summary.
func (c *Client) Handshake(ctx context.Context) (*codec.HandshakeResult, error) {
	var result codec.HandshakeResult
	if err := c.Call(ctx, codec.MethodHandshake, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTools returns the tool schemas the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]codec.ToolSchema, error) {
	var result codec.ListToolsResult
	if err := c.Call(ctx, codec.MethodListTools, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name and returns its output as text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	var result codec.CallToolResult
	if err := c.Call(ctx, codec.MethodCallTool, codec.CallToolParams{Name: name, Args: args}, &result); err != nil {
		return "", err
	}
	return result.Text(), nil
}

// Call performs one request/response exchange on a fresh connection.
// Frames that are not valid responses, and responses whose id does not
// match the request, are discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	req, err := codec.NewRequest(method, params)
	if err != nil {
		return err
	}
	req.Meta = observability.InjectMeta(ctx, req.Meta)
	payload, err := codec.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	trans := c.dial(c.endpoint)
	if err := trans.Connect(callCtx); err != nil {
		return c.classify(ctx, callCtx, method, err)
	}
	defer trans.Close()

	if err := trans.SendFrame(callCtx, payload); err != nil {
		return c.classify(ctx, callCtx, method, err)
	}

	for {
		frame, err := trans.ReceiveFrame(callCtx)
		if err != nil {
			if err == io.EOF {
				return errors.NewConnectionError(c.endpoint.String(), "connection closed before response", err)
			}
			return c.classify(ctx, callCtx, method, err)
		}

		resp, err := codec.DecodeResponse(frame)
		if err != nil {
			c.logger.Debug("discarding malformed frame",
				"server", c.name, "method", method, "error", err)
			continue
		}
		if resp.ID != req.ID {
			c.logger.Debug("discarding unmatched response",
				"server", c.name, "method", method, "want_id", req.ID, "got_id", resp.ID)
			continue
		}

		if resp.Error != nil {
			return errors.NewRemoteExecutionError(method, resp.Error.Code, resp.Error.Message)
		}
		if result == nil {
			return nil
		}
		if err := resp.DecodeResult(result); err != nil {
			return errors.NewInvalidMessageError(
				fmt.Sprintf("unexpected result shape for %s", method),
				map[string]interface{}{"error": err.Error()},
			)
		}
		return nil
	}
}

// classify maps a transport failure to a timeout, the caller's context
// error, or a connection error.
func (c *Client) classify(parent, callCtx context.Context, method string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s to %s: %w", method, c.name, parent.Err())
	}
	var netErr net.Error
	if callCtx.Err() == context.DeadlineExceeded || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewTimeoutError(c.endpoint.String(), method, c.timeout)
	}
	var connErr *errors.ConnectionError
	if stderrors.As(err, &connErr) {
		return err
	}
	return errors.NewConnectionError(c.endpoint.String(), fmt.Sprintf("%s failed", method), err)
}
