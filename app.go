package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
	"github.com/ekaya-inc/ekaya-grounding/pkg/database"
	"github.com/ekaya-inc/ekaya-grounding/pkg/logging"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/preferences"
)

// app holds what every command loads before doing its work.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path, Version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// openProfiler returns the static profiler when --profiles is set, otherwise
// the registered profiler for the configured datasource type. The returned
// columns are the configured ones, or every profiled column of the static file
// when none are configured.
func (a *app) openProfiler(ctx context.Context, cmd *cobra.Command) (datasource.ValueProfiler, []models.ColumnSpec, error) {
	profilesPath, _ := cmd.Flags().GetString("profiles")
	if profilesPath != "" {
		p, err := datasource.LoadStaticProfiler(profilesPath)
		if err != nil {
			return nil, nil, err
		}
		columns := a.cfg.Columns
		if len(columns) == 0 {
			columns = p.Specs()
		}
		a.logger.Info("Indexing from profile file", zap.String("path", profilesPath), zap.Int("columns", len(columns)))
		return p, columns, nil
	}

	if len(a.cfg.Columns) == 0 {
		return nil, nil, fmt.Errorf("no columns configured to index")
	}
	p, err := datasource.NewProfiler(ctx, &a.cfg.Datasource)
	if err != nil {
		return nil, nil, err
	}
	if err := p.TestConnection(ctx); err != nil {
		_ = p.Close()
		return nil, nil, fmt.Errorf("datasource connection failed: %s", logging.SanitizeError(err))
	}
	a.logger.Info("Connected to datasource",
		zap.String("type", a.cfg.Datasource.Type),
		zap.String("host", a.cfg.Datasource.ResolvedHost()),
		zap.String("database", a.cfg.Datasource.Name),
		zap.Int("columns", len(a.cfg.Columns)))
	return p, a.cfg.Columns, nil
}

// openPreferences connects the configured preference backend, running the
// schema migrations for postgres. The cleanup func releases connections.
func (a *app) openPreferences(ctx context.Context) (preferences.Store, func(), error) {
	deps := preferences.Deps{RedisPrefix: a.cfg.Redis.KeyPrefix}
	cleanup := func() {}

	switch a.cfg.Preferences.Backend {
	case preferences.BackendPostgres:
		db, err := database.NewConnection(ctx, database.ConfigFrom(&a.cfg.Database))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect preference database: %s", logging.SanitizeError(err))
		}
		sqlDB := stdlib.OpenDBFromPool(db.Pool)
		if err := database.RunMigrations(sqlDB, a.logger.Named("migrations")); err != nil {
			_ = sqlDB.Close()
			db.Close()
			return nil, nil, err
		}
		_ = sqlDB.Close()
		deps.DB = db
		cleanup = db.Close
	case preferences.BackendRedis:
		client, err := database.NewRedisClient(ctx, &a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		deps.Redis = client
		cleanup = func() { _ = client.Close() }
	}

	store, err := preferences.NewStore(a.cfg.Preferences.Backend, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	a.logger.Info("Preference store ready", zap.String("backend", a.cfg.Preferences.Backend))
	return store, cleanup, nil
}
