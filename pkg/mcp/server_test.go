package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.mcp == nil {
		t.Fatal("expected non-nil mcp server")
	}
	if s.logger == nil {
		t.Error("expected logger to be set")
	}
}

func TestServer_MCP(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	mcpServer := s.MCP()
	if mcpServer == nil {
		t.Fatal("expected non-nil mcp server from MCP()")
	}
	if mcpServer != s.mcp {
		t.Error("expected MCP() to return the internal mcp server")
	}
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	tool := mcp.NewTool("echo", mcp.WithDescription("Echoes its input"))
	calls := 0
	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls++
		return mcp.NewToolResultText("echo"), nil
	})

	if calls != 0 {
		t.Fatal("handler should not be called during registration")
	}

	result := s.mcp.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo"},"id":1}`))
	if _, err := json.Marshal(result); err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected handler to be called once, got %d", calls)
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	httpServer := s.NewStreamableHTTPServer()
	if httpServer == nil {
		t.Fatal("expected non-nil HTTP server")
	}
}
