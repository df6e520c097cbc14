package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the calling agent
// as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors the agent should see and
// can potentially fix (e.g., invalid parameters, unknown entry).
//
// Do NOT use this for system failures (preference store outages,
// internal server errors) - those should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorCode maps errors the agent can act on to a result code. Returns ""
// for errors that should surface as protocol errors.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrIndexNotReady):
		return "index_not_ready"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidRule):
		return "invalid_rule"
	default:
		return ""
	}
}

// errorResult converts err into a structured result when the agent can act
// on it, or returns err unchanged.
func errorResult(err error) (*mcp.CallToolResult, error) {
	if code := ErrorCode(err); code != "" {
		return NewErrorResult(code, err.Error()), nil
	}
	return nil, err
}

// jsonResult marshals v into a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
