package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2016+ and Azure SQL Database with SQL authentication",
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
