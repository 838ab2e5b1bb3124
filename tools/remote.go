package tools

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/toolplan/adapter/codec"
	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// RemoteClient is the part of remote.Client the registry needs.
type RemoteClient interface {
	Name() string
	Handshake(ctx context.Context) (*codec.HandshakeResult, error)
	ListTools(ctx context.Context) ([]codec.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// RemoteSource is one tool server whose tools are merged into a registry.
type RemoteSource struct {
	// Name identifies the source in logs and in Registry.Source.
	Name string

	Client RemoteClient

	// Prefix is prepended to every discovered tool name ("wx_" turns
	// get_weather into wx_get_weather). The server still sees the bare name.
	Prefix string

	// Retry configures discovery retries. Nil means a single attempt.
	Retry *middleware.RetryConfig
}

// RemoteTool forwards calls to a tool on a remote server.
//
// Every declared argument is sent as a string and undeclared arguments are
// dropped, so a planner that passes a number where the server declared
// one still reaches the tool in the form the server expects.
type RemoteTool struct {
	spec       toolplan.ToolSpec
	remoteName string
	client     RemoteClient
}

var _ toolplan.Tool = (*RemoteTool)(nil)

// NewRemoteTool binds a discovered schema to client under prefix.
func NewRemoteTool(client RemoteClient, schema codec.ToolSchema, prefix string) *RemoteTool {
	spec := codec.SpecFromSchema(schema)
	spec.Name = prefix + schema.Name
	return &RemoteTool{spec: spec, remoteName: schema.Name, client: client}
}

// Name returns the registry name, including any prefix.
func (t *RemoteTool) Name() string { return t.spec.Name }

// RemoteName returns the name the server knows the tool by.
func (t *RemoteTool) RemoteName() string { return t.remoteName }

// Description returns the server-provided description.
func (t *RemoteTool) Description() string { return t.spec.Description }

// Parameters returns the discovered parameters.
func (t *RemoteTool) Parameters() []toolplan.ParamSpec { return t.spec.Parameters }

// Execute forwards the call. Transport failures, timeouts and error
// envelopes are returned as errors.
func (t *RemoteTool) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	args, err := t.coerceArgs(params)
	if err != nil {
		return nil, err
	}
	text, err := t.client.CallTool(ctx, t.remoteName, args)
	if err != nil {
		return nil, err
	}
	return toolplan.NewToolResult(text).WithMetadata("remote", t.client.Name()), nil
}

func (t *RemoteTool) coerceArgs(params map[string]interface{}) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(t.spec.Parameters))
	for _, p := range t.spec.Parameters {
		v, ok := params[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &toolplan.MissingParamError{Tool: t.spec.Name, Param: p.Name}
			}
			continue
		}
		args[p.Name] = toolplan.Stringify(v)
	}
	return args, nil
}

// Discover performs the handshake and lists the source's tools. A protocol
// version other than codec.ProtocolVersion is reported through warn but
// does not fail discovery.
func Discover(ctx context.Context, src RemoteSource, warn func(msg string, args ...any)) ([]toolplan.Tool, error) {
	if src.Client == nil {
		return nil, fmt.Errorf("source '%s' has no client", src.Name)
	}

	var schemas []codec.ToolSchema
	discover := func(ctx context.Context) error {
		hs, err := src.Client.Handshake(ctx)
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		if hs.Protocol != codec.ProtocolVersion && warn != nil {
			warn("unexpected protocol version", "source", src.Name, "protocol", hs.Protocol, "want", codec.ProtocolVersion)
		}
		schemas, err = src.Client.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("list_tools: %w", err)
		}
		return nil
	}

	var err error
	if src.Retry != nil {
		err = middleware.Retry(ctx, *src.Retry, discover)
	} else {
		err = discover(ctx)
	}
	if err != nil {
		return nil, err
	}

	tools := make([]toolplan.Tool, 0, len(schemas))
	for _, s := range schemas {
		if s.Name == "" {
			continue
		}
		tools = append(tools, NewRemoteTool(src.Client, s, src.Prefix))
	}
	return tools, nil
}
