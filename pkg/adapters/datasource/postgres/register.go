package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Factory: func(ctx context.Context, ds *config.DatasourceConfig) (datasource.ValueProfiler, error) {
			cfg, err := FromDatasourceConfig(ds)
			if err != nil {
				return nil, err
			}
			return NewProfiler(ctx, cfg)
		},
	})
}
