package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mnemohq/mnemo-mcp/internal/tools"
	"github.com/mnemohq/mnemo-mcp/pkg/version"
)

type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echoes its input back." }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}
func (t *echoTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}
	if req.Text == "panic" {
		panic("echo exploded")
	}
	return map[string]interface{}{"echo": req.Text}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := tools.NewRegistry()
	if err := registry.Register(&echoTool{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return NewServer(registry)
}

func TestHandleInitialize(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": version.ProtocolVersion,
			"clientInfo":      map[string]interface{}{"name": "test-client", "version": "1.0"},
		},
	})

	if resp.Error != nil {
		t.Fatalf("Initialize failed: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected result type %T", resp.Result)
	}
	if result["protocolVersion"] != version.ProtocolVersion {
		t.Errorf("Expected protocol %s, got %v", version.ProtocolVersion, result["protocolVersion"])
	}
}

func TestHandleInitializeUnknownProtocolFallsBack(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params:  map[string]interface{}{"protocolVersion": "1900-01-01"},
	})

	result := resp.Result.(map[string]interface{})
	if result["protocolVersion"] != version.ProtocolVersion {
		t.Errorf("Expected fallback to %s, got %v", version.ProtocolVersion, result["protocolVersion"])
	}
}

func TestHandleListTools(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("tools/list failed: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	toolsData := result["tools"].([]map[string]interface{})
	if len(toolsData) != 1 || toolsData[0]["name"] != "echo" {
		t.Errorf("Expected the echo tool listed, got %v", toolsData)
	}
}

func TestHandleCallTool(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{"text": "hello"},
		},
	})
	if resp.Error != nil {
		t.Fatalf("tools/call failed: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || !strings.Contains(content[0]["text"].(string), "hello") {
		t.Errorf("Unexpected tool call content: %v", content)
	}
}

func TestHandleCallUnknownTool(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{
		JSONRPC: "2.0",
		ID:      4,
		Method:  "tools/call",
		Params:  map[string]interface{}{"name": "nope"},
	})
	if resp.Error == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Expected code -32601, got %d", resp.Error.Code)
	}
}

func TestHandleCallToolPanicRecovered(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{
		JSONRPC: "2.0",
		ID:      5,
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{"text": "panic"},
		},
	})
	if resp.Error == nil {
		t.Fatal("Expected error from panicking tool")
	}
	if !strings.Contains(resp.Error.Message, "panicked") {
		t.Errorf("Expected panic reported, got %q", resp.Error.Message)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(&Request{JSONRPC: "2.0", ID: 6, Method: "bogus/method"})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("Expected method-not-found, got %v", resp.Error)
	}
}

func TestProcessStream(t *testing.T) {
	server := newTestServer(t)

	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}
not json
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
`
	var out strings.Builder
	if err := server.ProcessStream(strings.NewReader(input), &out); err != nil {
		t.Fatalf("ProcessStream failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(lines))
	}

	var parseErr Response
	if err := json.Unmarshal([]byte(lines[1]), &parseErr); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if parseErr.Error == nil || parseErr.Error.Code != -32700 {
		t.Errorf("Expected parse error on bad line, got %v", parseErr.Error)
	}
}
