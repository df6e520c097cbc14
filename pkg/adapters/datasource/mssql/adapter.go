package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// Profiler reads column value distributions from SQL Server.
type Profiler struct {
	config *Config
	db     *sql.DB
}

// NewProfiler opens and pings a connection for cfg.
func NewProfiler(ctx context.Context, cfg *Config) (*Profiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Profiler{config: cfg, db: db}, nil
}

// buildConnectionString builds a sqlserver:// URL for SQL authentication.
func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// TestConnection verifies the database is reachable with valid credentials.
func (p *Profiler) TestConnection(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// profileQuery builds the bounded distribution query for spec.
// The limit is bound as @p1.
func profileQuery(spec models.ColumnSpec) string {
	col := quoteName(spec.Column)
	return fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT TOP (@p1) CAST(%s AS NVARCHAR(MAX)) AS value, COUNT_BIG(*) AS count
	FROM %s WITH (NOLOCK)
	WHERE %s IS NOT NULL AND CAST(%s AS NVARCHAR(MAX)) <> N''
	GROUP BY %s
	ORDER BY count DESC, value
	`,
		col,
		buildFullyQualifiedName(spec.Schema, spec.Table),
		col, col,
		col,
	)
}

// ProfileColumn returns up to limit distinct values with their row counts,
// most frequent first.
func (p *Profiler) ProfileColumn(ctx context.Context, spec models.ColumnSpec, limit int) (*models.ColumnProfile, error) {
	if err := datasource.ValidateSpec(spec); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, profileQuery(spec), datasource.ProfileLimit(limit))
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

// Close releases the database connection.
func (p *Profiler) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

var _ datasource.ValueProfiler = (*Profiler)(nil)
