package adapter_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scttfrdmn/toolplan/adapter/codec"
	"github.com/scttfrdmn/toolplan/adapter/errors"
	"github.com/scttfrdmn/toolplan/adapter/local"
	"github.com/scttfrdmn/toolplan/adapter/remote"
)

func TestHandshakeAndListTools(t *testing.T) {
	ctx := context.Background()
	_, endpoint := startServer(t, newTestTools())

	client, err := remote.NewClient("test", endpoint, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	hs, err := client.Handshake(ctx)
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	if hs.Protocol != codec.ProtocolVersion {
		t.Errorf("Expected protocol %q, got %q", codec.ProtocolVersion, hs.Protocol)
	}
	if len(hs.Capabilities.Tools) != 5 {
		t.Errorf("Expected 5 tools in capabilities, got %d", len(hs.Capabilities.Tools))
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 5 {
		t.Fatalf("Expected 5 tools, got %d", len(tools))
	}
	echo := tools[0]
	if echo.Name != "echo" {
		t.Fatalf("Expected tools sorted by name, got %q first", echo.Name)
	}
	if len(echo.InputSchema.Required) != 1 || echo.InputSchema.Required[0] != "text" {
		t.Errorf("Expected 'text' required, got %v", echo.InputSchema.Required)
	}
	if echo.InputSchema.Properties["text"].Type != "string" {
		t.Errorf("Expected string property, got %+v", echo.InputSchema.Properties["text"])
	}
}

func TestCallTool(t *testing.T) {
	ctx := context.Background()
	_, endpoint := startServer(t, newTestTools())
	client, _ := remote.NewClient("test", endpoint, 5*time.Second)

	out, err := client.CallTool(ctx, "echo", map[string]interface{}{"text": "Hello"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if out != "Echo: Hello" {
		t.Errorf("Expected 'Echo: Hello', got %q", out)
	}

	doc, err := client.CallTool(ctx, "forecast", map[string]interface{}{"location": "Seoul"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if doc != `{"location":"Seoul","temp":21.5}` {
		t.Errorf("Expected structured result as compact JSON, got %q", doc)
	}
}

func TestCallToolErrors(t *testing.T) {
	ctx := context.Background()
	_, endpoint := startServer(t, newTestTools())
	client, _ := remote.NewClient("test", endpoint, 5*time.Second)

	tests := []struct {
		tool string
		args map[string]interface{}
		code string
	}{
		{tool: "missing", code: errors.CodeUnknownTool},
		{tool: "reject", code: errors.CodeToolError},
		{tool: "echo", code: errors.CodeToolError}, // required 'text' absent
		{tool: "explode", code: errors.CodeInternal},
	}

	for _, tt := range tests {
		_, err := client.CallTool(ctx, tt.tool, tt.args)
		var remoteErr *errors.RemoteExecutionError
		if !stderrors.As(err, &remoteErr) {
			t.Errorf("%s: expected RemoteExecutionError, got %v", tt.tool, err)
			continue
		}
		if remoteErr.Code != tt.code {
			t.Errorf("%s: expected code %q, got %q (%s)", tt.tool, tt.code, remoteErr.Code, remoteErr.Message)
		}
	}

	// The server keeps serving after a handler panic
	if out, err := client.CallTool(ctx, "echo", map[string]interface{}{"text": "still here"}); err != nil || out != "Echo: still here" {
		t.Errorf("Expected server to survive panic, got %q, %v", out, err)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, endpoint := startServer(t, newTestTools())
	client, _ := remote.NewClient("test", endpoint, 5*time.Second)

	err := client.Call(context.Background(), "reboot", nil, nil)
	var remoteErr *errors.RemoteExecutionError
	if !stderrors.As(err, &remoteErr) {
		t.Fatalf("Expected RemoteExecutionError, got %v", err)
	}
	if remoteErr.Code != errors.CodeUnknownMethod {
		t.Errorf("Expected unknown_method, got %q", remoteErr.Code)
	}
}

func TestServerCallTimeout(t *testing.T) {
	cfg := local.DefaultConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	_, endpoint := startServer(t, newTestTools(), local.WithConfig(cfg))
	client, _ := remote.NewClient("test", endpoint, 5*time.Second)

	start := time.Now()
	_, err := client.CallTool(context.Background(), "slow", nil)
	if err == nil {
		t.Fatal("Expected error from slow tool")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected server-side timeout, call took %s", elapsed)
	}
}

func TestConcurrentClients(t *testing.T) {
	ctx := context.Background()
	_, endpoint := startServer(t, newTestTools())
	client, _ := remote.NewClient("test", endpoint, 5*time.Second)

	numCalls := 20
	var wg sync.WaitGroup
	errs := make(chan error, numCalls)

	for i := 0; i < numCalls; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			text := fmt.Sprintf("Message %d", id)
			out, err := client.CallTool(ctx, "echo", map[string]interface{}{"text": text})
			if err != nil {
				errs <- fmt.Errorf("call %d: %w", id, err)
				return
			}
			if out != "Echo: "+text {
				errs <- fmt.Errorf("call %d: expected %q, got %q", id, "Echo: "+text, out)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestUnixSocketEndpoint(t *testing.T) {
	ctx := context.Background()
	endpoint := "unix://" + filepath.Join(t.TempDir(), "tools.sock")

	server, err := local.NewServer("unix-test", endpoint, newTestTools())
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	client, _ := remote.NewClient("test", endpoint, 5*time.Second)
	out, err := client.CallTool(ctx, "echo", map[string]interface{}{"text": "sock"})
	if err != nil {
		t.Fatalf("CallTool over unix socket failed: %v", err)
	}
	if out != "Echo: sock" {
		t.Errorf("Expected 'Echo: sock', got %q", out)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	server, _ := startServer(t, newTestTools())
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}
