// Package codec provides the request and response documents of the remote
// tool protocol and their JSON encoding.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// JSONRPCVersion is the marker carried by every document.
const JSONRPCVersion = "2.0"

// ProtocolVersion is reported by the server in the handshake result.
const ProtocolVersion = "mcp/1"

// Methods understood by a tool server.
const (
	MethodHandshake = "handshake"
	MethodListTools = "list_tools"
	MethodCallTool  = "call_tool"
)

// Request is a single request document.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	// Meta carries out-of-band data such as W3C trace context. Servers
	// that do not know the field ignore it.
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Response is a single response document. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the payload of an error response.
type ErrorObject struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PropertySchema describes one input property of a tool.
type PropertySchema struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// InputSchema is the JSON-schema-like argument description of a tool.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ToolSchema is the wire form of a tool spec.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Capabilities lists what a server offers.
type Capabilities struct {
	Tools []ToolSchema `json:"tools"`
}

// HandshakeResult is the result of the handshake method.
type HandshakeResult struct {
	Protocol     string       `json:"protocol"`
	Capabilities Capabilities `json:"capabilities"`
}

// ListToolsResult is the result of the list_tools method.
type ListToolsResult struct {
	Tools []ToolSchema `json:"tools"`
}

// CallToolParams are the params of the call_tool method.
type CallToolParams struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// CallToolResult is the result of the call_tool method.
type CallToolResult struct {
	Result json.RawMessage `json:"result"`
}

// NewRequest creates a request with a fresh correlation id.
func NewRequest(method string, params interface{}) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      uuid.New().String(),
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params for %s: %w", method, err)
		}
		req.Params = data
	}
	return req, nil
}

// NewResponse creates a success response for the request with the given id.
func NewResponse(id string, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: data}, nil
}

// NewErrorResponse creates an error response for the request with the given id.
func NewErrorResponse(id, code, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// Encode marshals a request or response document.
func Encode(doc interface{}) ([]byte, error) {
	return json.Marshal(doc)
}

// DecodeRequest decodes and validates a request document. A request with
// an id but no method is accepted so the server can answer it; one with
// neither has nobody to answer and is rejected.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, fmt.Errorf("missing or unsupported 'jsonrpc' marker: %q", req.JSONRPC)
	}
	if req.Method == "" && req.ID == "" {
		return nil, fmt.Errorf("missing 'method' field in request")
	}
	return &req, nil
}

// DecodeResponse decodes and validates a response document.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if resp.JSONRPC != JSONRPCVersion {
		return nil, fmt.Errorf("missing or unsupported 'jsonrpc' marker: %q", resp.JSONRPC)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("response has neither 'result' nor 'error'")
	}
	return &resp, nil
}

// DecodeParams unmarshals request params into v. Absent params leave v
// untouched.
func (r *Request) DecodeParams(v interface{}) error {
	if len(r.Params) == 0 || bytes.Equal(r.Params, []byte("null")) {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// DecodeResult unmarshals a success result into v.
func (r *Response) DecodeResult(v interface{}) error {
	if r.Error != nil {
		return fmt.Errorf("response is an error: %s", r.Error.Message)
	}
	return json.Unmarshal(r.Result, v)
}

// Text renders a call_tool result as plain text: a JSON string is returned
// unquoted, anything else as compact JSON.
func (r *CallToolResult) Text() string {
	if len(r.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Result); err != nil {
		return string(r.Result)
	}
	return buf.String()
}

// ResultValue returns the call_tool payload for a tool output. Output that
// is a JSON object or array is embedded as a document; anything else is
// sent as a string.
func ResultValue(output string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(output))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	data, _ := json.Marshal(output)
	return data
}

// SchemaFromSpec converts a tool spec to its wire form.
func SchemaFromSpec(spec toolplan.ToolSpec) ToolSchema {
	schema := ToolSchema{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: InputSchema{
			Type:       toolplan.TypeObject,
			Properties: make(map[string]PropertySchema, len(spec.Parameters)),
		},
	}
	for _, p := range spec.Parameters {
		typ := p.Type
		if typ == "" {
			typ = toolplan.TypeString
		}
		schema.InputSchema.Properties[p.Name] = PropertySchema{
			Type:        typ,
			Description: p.Description,
			Enum:        p.Enum,
			Default:     p.Default,
		}
		if p.Required {
			schema.InputSchema.Required = append(schema.InputSchema.Required, p.Name)
		}
	}
	return schema
}

// SpecFromSchema converts a wire tool schema to a spec. Parameters are
// ordered required first, then by name.
func SpecFromSchema(schema ToolSchema) toolplan.ToolSpec {
	required := make(map[string]bool, len(schema.InputSchema.Required))
	for _, name := range schema.InputSchema.Required {
		required[name] = true
	}

	spec := toolplan.ToolSpec{Name: schema.Name, Description: schema.Description}
	for _, name := range sortedKeys(schema.InputSchema.Properties, required) {
		prop := schema.InputSchema.Properties[name]
		spec.Parameters = append(spec.Parameters, toolplan.ParamSpec{
			Name:        name,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
			Enum:        prop.Enum,
			Default:     prop.Default,
		})
	}
	return spec
}

func sortedKeys(props map[string]PropertySchema, required map[string]bool) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := required[keys[i]], required[keys[j]]
		if ri != rj {
			return ri
		}
		return keys[i] < keys[j]
	})
	return keys
}
