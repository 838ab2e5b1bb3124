// Package errors defines error types for the remote tool protocol.
package errors

import (
	"fmt"
	"time"
)

// Protocol error codes carried in the "code" field of an error envelope.
const (
	CodeUnknownMethod = "unknown_method"
	CodeInvalidParams = "invalid_params"
	CodeUnknownTool   = "unknown_tool"
	CodeToolError     = "tool_error"
	CodeInternal      = "internal_error"
)

// ConnectionError represents a failure to reach or talk to a tool server.
type ConnectionError struct {
	Endpoint string
	Message  string
	Cause    error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error (%s): %s: %v", e.Endpoint, e.Message, e.Cause)
	}
	return fmt.Sprintf("connection error (%s): %s", e.Endpoint, e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(endpoint, message string, cause error) *ConnectionError {
	return &ConnectionError{Endpoint: endpoint, Message: message, Cause: cause}
}

// ProtocolError represents a protocol-level error, such as a handshake
// that reports an unexpected protocol version or a response that is not
// a valid envelope.
type ProtocolError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *ProtocolError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("protocol error [%s]: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("protocol error [%s]: %s", e.Code, e.Message)
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(code, message string, details map[string]interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Details: details}
}

// InvalidMessageError represents a frame that could not be decoded into
// a request or response document.
type InvalidMessageError struct {
	Message string
	Details map[string]interface{}
}

func (e *InvalidMessageError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("invalid message: %s (details: %v)", e.Message, e.Details)
	}
	return fmt.Sprintf("invalid message: %s", e.Message)
}

// NewInvalidMessageError creates a new invalid message error.
func NewInvalidMessageError(message string, details map[string]interface{}) *InvalidMessageError {
	return &InvalidMessageError{Message: message, Details: details}
}

// RemoteExecutionError is returned by the client when the server answers
// with an error envelope.
type RemoteExecutionError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error in '%s' [%s]: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error in '%s': %s", e.Method, e.Message)
}

// NewRemoteExecutionError creates a new remote execution error.
func NewRemoteExecutionError(method, code, message string) *RemoteExecutionError {
	return &RemoteExecutionError{Method: method, Code: code, Message: message}
}

// TimeoutError represents a timeout waiting for a matching response.
type TimeoutError struct {
	Endpoint string
	Method   string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for '%s' from %s (timeout: %s)", e.Method, e.Endpoint, e.After)
}

// Timeout reports true so the error satisfies net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(endpoint, method string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Endpoint: endpoint, Method: method, After: timeout}
}
