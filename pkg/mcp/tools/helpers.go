package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// requireTrimmed returns the named string argument with surrounding
// whitespace removed, failing when it is missing or blank.
func requireTrimmed(req mcp.CallToolRequest, name string) (string, error) {
	v, err := req.RequireString(name)
	if err != nil {
		return "", err
	}
	v = trimString(v)
	if v == "" {
		return "", fmt.Errorf("parameter %q must not be empty", name)
	}
	return v, nil
}
