package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// recordChoiceResponse is returned by record_entity_choice.
type recordChoiceResponse struct {
	Recorded bool            `json:"recorded"`
	Selected models.EntryKey `json:"selected"`
	// Offered is what resolve_entity returns for the same mention right now.
	Offered *models.ResolutionResult `json:"offered,omitempty"`
}

type historyResponse struct {
	UserID  string                        `json:"user_id"`
	Records []*models.ClarificationRecord `json:"records"`
}

// RegisterResolveTools adds resolve_entity, record_entity_choice and, when a
// preference store is configured, clarification_history.
func RegisterResolveTools(s *server.MCPServer, deps *Deps) {
	registerResolveEntityTool(s, deps)
	registerRecordChoiceTool(s, deps)
	if deps.Preferences != nil {
		registerHistoryTool(s, deps)
	}
}

func registerResolveEntityTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"resolve_entity",
		mcp.WithDescription(
			"Maps a free-text entity mention from a user's question (an abbreviation, a typo, a partial name) "+
				"to the canonical value stored in the database. Returns the matched value with its table and column, "+
				"or a clarification question with up to three candidates when the mention is ambiguous. "+
				"Always ground entity names with this tool before writing SQL filters on them.",
		),
		mcp.WithString(
			"mention",
			mcp.Required(),
			mcp.Description("The entity text as the user wrote it (e.g., 'LBG', 'Acme')"),
		),
		mcp.WithString(
			"query",
			mcp.Description("The full question the mention came from. Improves disambiguation; defaults to the mention"),
		),
		mcp.WithString(
			"user_id",
			mcp.Description("Stable identifier of the asking user. Enables remembered choices"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mention, err := req.RequireString("mention")
		if err != nil {
			return nil, err
		}
		query := trimString(req.GetString("query", ""))
		if query == "" {
			query = mention
		}
		userID := trimString(req.GetString("user_id", ""))

		start := time.Now()
		result, err := deps.Resolver.Resolve(ctx, mention, query, userID)
		if err != nil {
			return errorResult(err)
		}
		deps.Logger.Debug("resolve_entity",
			zap.String("source", string(result.Source)),
			zap.Bool("requires_clarification", result.RequiresClarification),
			zap.Duration("elapsed", time.Since(start)))

		return jsonResult(result)
	})
}

func registerRecordChoiceTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"record_entity_choice",
		mcp.WithDescription(
			"Records which value the user meant for a mention, after answering a clarification question "+
				"or correcting a resolve_entity match. The choice is remembered for similar questions from the same user.",
		),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Stable identifier of the user who chose")),
		mcp.WithString("mention", mcp.Required(), mcp.Description("The mention that was resolved")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question the mention came from")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table of the chosen value")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column of the chosen value")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The chosen canonical value, exactly as returned")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]string, 6)
		for _, name := range []string{"user_id", "mention", "query", "table", "column", "value"} {
			v, err := requireTrimmed(req, name)
			if err != nil {
				return NewErrorResult("invalid_parameters", err.Error()), nil
			}
			args[name] = v
		}
		selected := models.EntryKey{Table: args["table"], Column: args["column"], CanonicalValue: args["value"]}

		// Re-resolve to learn what the user was offered before this choice.
		offered, err := deps.Resolver.Resolve(ctx, args["mention"], args["query"], args["user_id"])
		if err != nil {
			return errorResult(err)
		}

		if err := deps.Resolver.RecordResolution(ctx, args["user_id"], args["mention"], args["query"], offered, selected); err != nil {
			if code := ErrorCode(err); code != "" {
				return NewErrorResultWithDetails(code, err.Error(), map[string]any{"selected": selected}), nil
			}
			return nil, fmt.Errorf("failed to record entity choice: %w", err)
		}

		return jsonResult(recordChoiceResponse{Recorded: true, Selected: selected, Offered: offered})
	})
}

func registerHistoryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"clarification_history",
		mcp.WithDescription("Lists a user's recorded entity choices, newest first"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Stable identifier of the user")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum records to return (default %d, max %d)", defaultHistoryLimit, maxHistoryLimit))),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := requireTrimmed(req, "user_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		limit := req.GetInt("limit", defaultHistoryLimit)
		if limit < 1 || limit > maxHistoryLimit {
			return NewErrorResult("invalid_parameters", fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)), nil
		}

		records, err := deps.Preferences.History(ctx, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load clarification history: %w", err)
		}
		if records == nil {
			records = []*models.ClarificationRecord{}
		}
		return jsonResult(historyResponse{UserID: userID, Records: records})
	})
}
