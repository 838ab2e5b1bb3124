// Package toolplan provides the core types shared by the planner, the tool
// registry and the step executor.
package toolplan

import (
	"context"
	"fmt"
	"time"
)

// Message represents one turn of a conversation.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

const maxContentSize = 1024 * 1024

// NewMessage creates a new message with the given role and content.
// NOTE: This function does not validate the message. Call Validate() when the
// content comes from outside the process.
func NewMessage(role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// WithMetadata adds metadata to the message and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}

// Validate checks the role and the content size.
func (m *Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
	case "":
		return fmt.Errorf("message role cannot be empty")
	default:
		return fmt.Errorf("invalid message role: %s. Must be one of: user, assistant, system, tool", m.Role)
	}
	if len(m.Content) > maxContentSize {
		return fmt.Errorf("message content exceeds maximum size of %d bytes (got %d bytes)", maxContentSize, len(m.Content))
	}
	return nil
}

// ToolResult represents the result of a tool invocation: either a success
// payload or an error message, never both.
type ToolResult struct {
	Success  bool                   `json:"success"`
	Output   string                 `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewToolResult creates a successful tool result.
func NewToolResult(output string) *ToolResult {
	return &ToolResult{
		Success:  true,
		Output:   output,
		Metadata: make(map[string]interface{}),
	}
}

// NewToolError creates a tool result representing an error.
func NewToolError(msg string) *ToolResult {
	return &ToolResult{
		Success:  false,
		Error:    msg,
		Metadata: make(map[string]interface{}),
	}
}

// WithMetadata adds metadata to the tool result and returns it for chaining.
func (t *ToolResult) WithMetadata(key string, value interface{}) *ToolResult {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata[key] = value
	return t
}

// Text returns the output of a successful result or the error message of a
// failed one.
func (t *ToolResult) Text() string {
	if t.Success {
		return t.Output
	}
	return t.Error
}

// Tool is the interface every invocable capability implements, whether it
// runs in-process or is forwarded to a remote tool server.
//
// Implementations must be safe for concurrent use: a registry is shared by
// the executor and by remote protocol workers.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns the human-readable documentation shown to the planner.
	Description() string

	// Parameters returns the declared parameters.
	Parameters() []ParamSpec

	// Execute runs the tool with the given parameters.
	//
	// A returned error means the invocation itself failed (transport, timeout,
	// panic). Domain failures are reported with NewToolError.
	Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error)
}

// Parameter types understood by the planner and the remote protocol.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// ParamSpec describes one named tool parameter.
type ParamSpec struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolSpec is the static description of a tool.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamSpec `json:"parameters"`
}

// SpecOf returns the static description of a tool.
func SpecOf(t Tool) ToolSpec {
	params := t.Parameters()
	out := make([]ParamSpec, len(params))
	copy(out, params)
	return ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  out,
	}
}

// Required returns the names of the required parameters, in declaration order.
func (s ToolSpec) Required() []string {
	var names []string
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Param returns the parameter with the given name.
func (s ToolSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// ToolFunc is the bound implementation behind a FuncTool.
type ToolFunc func(ctx context.Context, params map[string]interface{}) (*ToolResult, error)

// FuncTool is a Tool built from a static spec and a bound function.
type FuncTool struct {
	spec ToolSpec
	fn   ToolFunc
}

// NewFuncTool creates a tool from a spec and a function.
func NewFuncTool(spec ToolSpec, fn ToolFunc) *FuncTool {
	return &FuncTool{spec: spec, fn: fn}
}

// Name returns the tool name.
func (f *FuncTool) Name() string { return f.spec.Name }

// Description returns the tool description.
func (f *FuncTool) Description() string { return f.spec.Description }

// Parameters returns the declared parameters.
func (f *FuncTool) Parameters() []ParamSpec { return f.spec.Parameters }

// Execute calls the bound function after checking required parameters.
func (f *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	for _, name := range f.spec.Required() {
		if _, ok := params[name]; !ok {
			return nil, &MissingParamError{Tool: f.spec.Name, Param: name}
		}
	}
	return f.fn(ctx, params)
}

// MissingParamError is returned when a required parameter is absent.
type MissingParamError struct {
	Tool  string
	Param string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("tool '%s': missing required parameter '%s'", e.Tool, e.Param)
}
