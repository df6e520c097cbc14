package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

type healthResult struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	IndexReady bool   `json:"index_ready"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and whether a value index has
// been published. snapshots may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, snapshots *services.SnapshotHolder) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ready := snapshots != nil && snapshots.Load() != nil
		status := "ok"
		if !ready {
			status = "indexing"
		}
		result, err := json.Marshal(healthResult{Status: status, Version: version, IndexReady: ready})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
