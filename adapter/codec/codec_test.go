package codec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/scttfrdmn/toolplan/toolplan"
)

func TestNewRequestHasUniqueIDs(t *testing.T) {
	a, err := NewRequest(MethodListTools, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	b, _ := NewRequest(MethodListTools, nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.JSONRPC != JSONRPCVersion {
		t.Errorf("expected marker %q, got %q", JSONRPCVersion, a.JSONRPC)
	}
	if a.Params != nil {
		t.Errorf("expected no params, got %s", a.Params)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(MethodCallTool, CallToolParams{
		Name: "get_weather",
		Args: map[string]interface{}{"location": "Seoul"},
	})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if decoded.ID != req.ID || decoded.Method != MethodCallTool {
		t.Errorf("unexpected request: %+v", decoded)
	}

	var params CallToolParams
	if err := decoded.DecodeParams(&params); err != nil {
		t.Fatalf("DecodeParams failed: %v", err)
	}
	if params.Name != "get_weather" || params.Args["location"] != "Seoul" {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestDecodeRequestRejectsMissingMarker(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{"id":"1","method":"handshake"}`)); err == nil {
		t.Error("expected error for missing jsonrpc marker")
	}
	if _, err := DecodeRequest([]byte(`{"jsonrpc":"2.0"}`)); err == nil {
		t.Error("expected error for missing method and id")
	}
	if _, err := DecodeRequest([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeRequestKeepsAnswerableRequestWithoutMethod(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":"1"}`))
	if err != nil {
		t.Fatalf("expected request with an id to decode, got %v", err)
	}
	if req.ID != "1" || req.Method != "" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := NewErrorResponse("abc", "unknown_method", "unknown method: foo")
	data, _ := Encode(resp)

	decoded, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != "unknown_method" {
		t.Fatalf("expected unknown_method error, got %+v", decoded.Error)
	}
	if decoded.Result != nil {
		t.Errorf("expected no result, got %s", decoded.Result)
	}
	if !strings.Contains(string(data), `"id":"abc"`) {
		t.Errorf("expected id echoed in %s", data)
	}
}

func TestDecodeResponseRequiresResultOrError(t *testing.T) {
	if _, err := DecodeResponse([]byte(`{"jsonrpc":"2.0","id":"1"}`)); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestCallToolResultText(t *testing.T) {
	str := CallToolResult{Result: json.RawMessage(`"sunny"`)}
	if got := str.Text(); got != "sunny" {
		t.Errorf("expected unquoted string, got %q", got)
	}

	obj := CallToolResult{Result: json.RawMessage(`{ "temp": 21.5 }`)}
	if got := obj.Text(); got != `{"temp":21.5}` {
		t.Errorf("expected compact JSON, got %q", got)
	}
}

func TestResultValue(t *testing.T) {
	if got := string(ResultValue(`{"a":1}`)); got != `{"a":1}` {
		t.Errorf("expected embedded object, got %s", got)
	}
	if got := string(ResultValue("plain text")); got != `"plain text"` {
		t.Errorf("expected JSON string, got %s", got)
	}
	if got := string(ResultValue("{not json")); got != `"{not json"` {
		t.Errorf("expected invalid JSON to be quoted, got %s", got)
	}
}

func TestSchemaSpecConversion(t *testing.T) {
	spec := toolplan.ToolSpec{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Parameters: []toolplan.ParamSpec{
			{Name: "units", Type: "string", Enum: []string{"metric", "imperial"}, Default: "metric"},
			{Name: "location", Type: "string", Required: true},
		},
	}

	schema := SchemaFromSpec(spec)
	if schema.InputSchema.Type != "object" {
		t.Errorf("expected object schema, got %q", schema.InputSchema.Type)
	}
	if len(schema.InputSchema.Required) != 1 || schema.InputSchema.Required[0] != "location" {
		t.Errorf("unexpected required list: %v", schema.InputSchema.Required)
	}

	back := SpecFromSchema(schema)
	if len(back.Parameters) != 2 {
		t.Fatalf("expected 2 params, got %d", len(back.Parameters))
	}
	if back.Parameters[0].Name != "location" || !back.Parameters[0].Required {
		t.Errorf("expected required 'location' first, got %+v", back.Parameters[0])
	}
	if back.Parameters[1].Default != "metric" {
		t.Errorf("expected default to survive, got %v", back.Parameters[1].Default)
	}
}
