package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
)

type indexStatsResponse struct {
	BuiltAt           time.Time                 `json:"built_at"`
	Tables            []string                  `json:"tables"`
	Index             valueindex.Stats          `json:"index"`
	AbbreviationRules int                       `json:"abbreviation_rules"`
	Rules             []models.AbbreviationRule `json:"rules,omitempty"`
}

// RegisterIndexTools adds index_stats.
func RegisterIndexTools(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"index_stats",
		mcp.WithDescription(
			"Describes the published value index: when it was built, which tables it covers, "+
				"entry and variation counts, and optionally the learned abbreviation rules.",
		),
		mcp.WithBoolean("include_rules", mcp.Description("Include every abbreviation rule in the response")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Snapshots.Load()
		if snap == nil {
			return NewErrorResult("index_not_ready", "the value index has not been built yet"), nil
		}

		resp := indexStatsResponse{
			BuiltAt:           snap.BuiltAt,
			Tables:            snap.Tables(),
			Index:             snap.Index.Stats(),
			AbbreviationRules: snap.Learner.Len(),
		}
		if req.GetBool("include_rules", false) {
			resp.Rules = snap.Learner.Rules()
		}
		return jsonResult(resp)
	})
}
