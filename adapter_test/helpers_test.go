package adapter_test

import (
	"context"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/scttfrdmn/toolplan/adapter/codec"
	"github.com/scttfrdmn/toolplan/adapter/local"
	"github.com/scttfrdmn/toolplan/adapter/transport"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// staticTools is a minimal ToolProvider backed by a map.
type staticTools map[string]toolplan.Tool

func (s staticTools) Get(name string) (toolplan.Tool, bool) {
	t, ok := s[name]
	return t, ok
}

func (s staticTools) Specs() []toolplan.ToolSpec {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]toolplan.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, toolplan.SpecOf(s[name]))
	}
	return specs
}

func newTestTools() staticTools {
	tools := staticTools{}
	add := func(t toolplan.Tool) { tools[t.Name()] = t }

	add(toolplan.NewFuncTool(toolplan.ToolSpec{
		Name:        "echo",
		Description: "Echo the text back",
		Parameters:  []toolplan.ParamSpec{{Name: "text", Type: toolplan.TypeString, Required: true}},
	}, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		return toolplan.NewToolResult("Echo: " + toolplan.StringParam(params, "text", "")), nil
	}))

	add(toolplan.NewFuncTool(toolplan.ToolSpec{
		Name:        "forecast",
		Description: "Returns a structured document",
		Parameters:  []toolplan.ParamSpec{{Name: "location", Type: toolplan.TypeString, Required: true}},
	}, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		return toolplan.NewToolResult(`{"location":"` + toolplan.StringParam(params, "location", "") + `","temp":21.5}`), nil
	}))

	add(toolplan.NewFuncTool(toolplan.ToolSpec{
		Name:        "reject",
		Description: "Always reports a domain failure",
	}, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		return toolplan.NewToolError("city not found"), nil
	}))

	add(toolplan.NewFuncTool(toolplan.ToolSpec{
		Name:        "explode",
		Description: "Panics",
	}, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		panic("kaboom")
	}))

	add(toolplan.NewFuncTool(toolplan.ToolSpec{
		Name:        "slow",
		Description: "Sleeps until cancelled",
	}, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return toolplan.NewToolResult("late"), nil
		}
	}))

	return tools
}

// startServer starts a tool server on an ephemeral TCP port and returns
// its endpoint.
func startServer(t *testing.T, tools local.ToolProvider, opts ...local.Option) (*local.Server, string) {
	t.Helper()
	server, err := local.NewServer("test", "tcp://127.0.0.1:0", tools, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Stop() })
	return server, "tcp://" + server.Addr().String()
}

// fakeServer accepts a single connection and hands it to serve.
func fakeServer(t *testing.T, serve func(conn net.Conn, frames *transport.FrameReader)) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, transport.NewFrameReader(conn, 0))
	}()
	return "tcp://" + listener.Addr().String()
}

// readRequest reads and decodes the next request frame.
func readRequest(frames *transport.FrameReader) (*codec.Request, error) {
	frame, err := frames.Next()
	if err != nil {
		return nil, err
	}
	return codec.DecodeRequest(frame)
}

func writeDoc(conn net.Conn, doc interface{}) {
	data, _ := codec.Encode(doc)
	_ = transport.WriteFrame(conn, data)
}
