package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/preferences"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

// Deps is what the grounding tools need at call time.
type Deps struct {
	Resolver  services.EntityResolver
	Snapshots *services.SnapshotHolder
	// Preferences backs clarification_history. Nil leaves the tool unregistered.
	Preferences preferences.Store
	Logger      *zap.Logger
}

// RegisterAll registers every grounding tool on s.
func RegisterAll(s *server.MCPServer, deps *Deps, version string) {
	RegisterHealthTool(s, version, deps.Snapshots)
	RegisterResolveTools(s, deps)
	RegisterIndexTools(s, deps)
}
