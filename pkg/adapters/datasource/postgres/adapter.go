package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// Profiler reads column value distributions from PostgreSQL.
type Profiler struct {
	config    *Config
	pool      *pgxpool.Pool
	ownedPool bool // true if we created the pool
}

// NewProfiler opens a pool for cfg.
func NewProfiler(ctx context.Context, cfg *Config) (*Profiler, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Profiler{config: cfg, pool: pool, ownedPool: true}, nil
}

// NewProfilerFromPool wraps an existing pool. Close leaves the pool open.
func NewProfilerFromPool(pool *pgxpool.Pool) *Profiler {
	return &Profiler{pool: pool}
}

// TestConnection verifies the database is reachable and, when the profiler
// was opened from a Config, that it is the configured database.
func (p *Profiler) TestConnection(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := p.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	// Case-insensitive to match MSSQL behavior.
	if p.config != nil && !strings.EqualFold(currentDB, p.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", p.config.Database, currentDB)
	}
	return nil
}

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// profileQuery builds the bounded distribution query for spec.
// The limit is bound as $1.
func profileQuery(spec models.ColumnSpec) string {
	col := pgx.Identifier{spec.Column}.Sanitize()
	return fmt.Sprintf(`
		SELECT %s::text AS value, COUNT(*) AS count
		FROM %s
		WHERE %s IS NOT NULL AND %s::text <> ''
		GROUP BY %s
		ORDER BY count DESC, value
		LIMIT $1
	`, col, qualifiedTableName(spec.Schema, spec.Table), col, col, col)
}

// ProfileColumn returns up to limit distinct values with their row counts,
// most frequent first.
func (p *Profiler) ProfileColumn(ctx context.Context, spec models.ColumnSpec, limit int) (*models.ColumnProfile, error) {
	if err := datasource.ValidateSpec(spec); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, profileQuery(spec), datasource.ProfileLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", spec.QualifiedName(), err)
	}
	defer rows.Close()

	profile := &models.ColumnProfile{Spec: spec, Values: []models.ValueFrequency{}}
	for rows.Next() {
		var vf models.ValueFrequency
		if err := rows.Scan(&vf.Value, &vf.Count); err != nil {
			return nil, fmt.Errorf("scan value of %s: %w", spec.QualifiedName(), err)
		}
		profile.Values = append(profile.Values, vf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values of %s: %w", spec.QualifiedName(), err)
	}

	return profile, nil
}

// Close releases the pool if the profiler created it.
func (p *Profiler) Close() error {
	if p.ownedPool && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

var _ datasource.ValueProfiler = (*Profiler)(nil)
