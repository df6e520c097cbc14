package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/intent"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/preferences"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

type toolTestContext struct {
	t         *testing.T
	mcpServer *server.MCPServer
	snapshots *services.SnapshotHolder
	store     *preferences.MemoryStore
}

func setupToolTest(t *testing.T, indexed bool) *toolTestContext {
	t.Helper()

	holder := services.NewSnapshotHolder()
	if indexed {
		indexer := services.NewValueIndexer(nil, services.IndexerConfig{}, nil, zap.NewNop())
		snap, err := indexer.BuildFromProfiles(context.Background(), []models.ColumnProfile{
			{
				Spec: models.ColumnSpec{Table: "clients", Column: "name"},
				Values: []models.ValueFrequency{
					{Value: "Acme Corp", Count: 100},
					{Value: "Lloyds Banking Group", Count: 40},
				},
			},
			{
				Spec:   models.ColumnSpec{Table: "projects", Column: "title"},
				Values: []models.ValueFrequency{{Value: "Acme Initiative", Count: 95}},
			},
		})
		require.NoError(t, err)
		holder.Store(snap)
	}

	store := preferences.NewMemoryStore()
	resolver := services.NewEntityResolver(holder, store, intent.New(), metrics.New(nil), zap.NewNop())

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, &Deps{
		Resolver:    resolver,
		Snapshots:   holder,
		Preferences: store,
		Logger:      zap.NewNop(),
	}, "1.0.0")

	return &toolTestContext{t: t, mcpServer: s, snapshots: holder, store: store}
}

// callTool executes an MCP tool via the server's HandleMessage method.
func (tc *toolTestContext) callTool(name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	tc.t.Helper()

	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	})
	require.NoError(tc.t, err)

	resultBytes, err := json.Marshal(tc.mcpServer.HandleMessage(context.Background(), reqBytes))
	require.NoError(tc.t, err)

	var response struct {
		Result *mcp.CallToolResult `json:"result,omitempty"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	require.NoError(tc.t, json.Unmarshal(resultBytes, &response))

	if response.Error != nil {
		return nil, &mcpError{Code: response.Error.Code, Message: response.Error.Message}
	}
	return response.Result, nil
}

// decode unmarshals the text content of result into v.
func (tc *toolTestContext) decode(result *mcp.CallToolResult, v any) {
	tc.t.Helper()
	require.NotNil(tc.t, result)
	require.NotEmpty(tc.t, result.Content)
	require.NoError(tc.t, json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), v))
}

type mcpError struct {
	Code    int
	Message string
}

func (e *mcpError) Error() string {
	return e.Message
}

func TestRegisterAll_ListsTools(t *testing.T) {
	tc := setupToolTest(t, true)

	resultBytes, err := json.Marshal(tc.mcpServer.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"health", "resolve_entity", "record_entity_choice", "clarification_history", "index_stats"}, names)
}

func TestResolveEntityTool_Abbreviation(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("resolve_entity", map[string]any{
		"mention": "LBG",
		"query":   "What is LBG's revenue?",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var resolved models.ResolutionResult
	tc.decode(result, &resolved)
	require.NotNil(t, resolved.Match)
	assert.Equal(t, "Lloyds Banking Group", resolved.Match.Entry.CanonicalValue)
	assert.Equal(t, "clients", resolved.Match.Entry.Table)
	assert.False(t, resolved.RequiresClarification)
}

func TestResolveEntityTool_QueryDefaultsToMention(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("resolve_entity", map[string]any{"mention": "Lloyds Banking Group"})
	require.NoError(t, err)

	var resolved models.ResolutionResult
	tc.decode(result, &resolved)
	require.NotNil(t, resolved.Match)
	assert.Equal(t, models.ResolutionSourceExact, resolved.Source)
}

func TestResolveEntityTool_MissingMention(t *testing.T) {
	tc := setupToolTest(t, true)

	_, err := tc.callTool("resolve_entity", map[string]any{"query": "revenue"})
	assert.Error(t, err)
}

func TestResolveEntityTool_IndexNotReady(t *testing.T) {
	tc := setupToolTest(t, false)

	result, err := tc.callTool("resolve_entity", map[string]any{"mention": "Acme"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	tc.decode(result, &errResp)
	assert.Equal(t, "index_not_ready", errResp.Code)
}

func TestRecordEntityChoiceTool_RemembersClarification(t *testing.T) {
	tc := setupToolTest(t, true)
	query := "Tell me about Acme"

	result, err := tc.callTool("resolve_entity", map[string]any{"mention": "Acme", "query": query, "user_id": "user1"})
	require.NoError(t, err)
	var first models.ResolutionResult
	tc.decode(result, &first)
	require.True(t, first.RequiresClarification)
	require.NotEmpty(t, first.ClarificationQuestion)

	result, err = tc.callTool("record_entity_choice", map[string]any{
		"user_id": "user1",
		"mention": "Acme",
		"query":   query,
		"table":   "projects",
		"column":  "title",
		"value":   "Acme Initiative",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var recorded recordChoiceResponse
	tc.decode(result, &recorded)
	assert.True(t, recorded.Recorded)
	require.NotNil(t, recorded.Offered)
	assert.True(t, recorded.Offered.RequiresClarification)

	result, err = tc.callTool("resolve_entity", map[string]any{"mention": "Acme", "query": query, "user_id": "user1"})
	require.NoError(t, err)
	var second models.ResolutionResult
	tc.decode(result, &second)
	require.NotNil(t, second.Match)
	assert.Equal(t, models.ResolutionSourcePreference, second.Source)
	assert.Equal(t, "Acme Initiative", second.Match.Entry.CanonicalValue)

	result, err = tc.callTool("clarification_history", map[string]any{"user_id": "user1"})
	require.NoError(t, err)
	var history historyResponse
	tc.decode(result, &history)
	require.Len(t, history.Records, 1)
	assert.Equal(t, "Acme Initiative", history.Records[0].Selected.CanonicalValue)
	assert.True(t, history.Records[0].RequiredClarification)
}

func TestRecordEntityChoiceTool_UnknownValue(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("record_entity_choice", map[string]any{
		"user_id": "user1",
		"mention": "Acme",
		"query":   "Tell me about Acme",
		"table":   "clients",
		"column":  "name",
		"value":   "Acme Holdings",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	tc.decode(result, &errResp)
	assert.Equal(t, "not_found", errResp.Code)
}

func TestRecordEntityChoiceTool_BlankParameter(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("record_entity_choice", map[string]any{
		"user_id": "  ",
		"mention": "Acme",
		"query":   "Tell me about Acme",
		"table":   "clients",
		"column":  "name",
		"value":   "Acme Corp",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	tc.decode(result, &errResp)
	assert.Equal(t, "invalid_parameters", errResp.Code)
}

func TestClarificationHistoryTool_Limit(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("clarification_history", map[string]any{"user_id": "nobody", "limit": 0})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = tc.callTool("clarification_history", map[string]any{"user_id": "nobody"})
	require.NoError(t, err)
	var history historyResponse
	tc.decode(result, &history)
	assert.Empty(t, history.Records)
}

func TestIndexStatsTool(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("index_stats", map[string]any{"include_rules": true})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats indexStatsResponse
	tc.decode(result, &stats)
	assert.Equal(t, []string{"clients", "projects"}, stats.Tables)
	assert.Equal(t, 3, stats.Index.Entries)
	assert.Equal(t, 2, stats.Index.ByEntityType["client"])
	assert.False(t, stats.BuiltAt.IsZero())
	assert.Equal(t, stats.AbbreviationRules, len(stats.Rules))
	assert.Positive(t, stats.AbbreviationRules)
}

func TestIndexStatsTool_NotReady(t *testing.T) {
	tc := setupToolTest(t, false)

	result, err := tc.callTool("index_stats", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(assert.AnError))
}

func TestHealthTool_IndexReady(t *testing.T) {
	tc := setupToolTest(t, true)

	result, err := tc.callTool("health", nil)
	require.NoError(t, err)

	var health healthResult
	tc.decode(result, &health)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.IndexReady)
}
