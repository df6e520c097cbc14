package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// AdapterRegistration pairs adapter info with its profiler factory.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg *config.DatasourceConfig) (ValueProfiler, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// NewProfiler opens a profiler for cfg.Type. Returns an error wrapping
// apperrors.ErrUnknownDatasource when the type is not compiled in.
func NewProfiler(ctx context.Context, cfg *config.DatasourceConfig) (ValueProfiler, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatasource, cfg.Type)
	}
	return reg.Factory(ctx, cfg)
}
