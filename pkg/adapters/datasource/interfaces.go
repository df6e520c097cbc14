package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// DefaultProfileLimit is the number of distinct values read per column when
// the caller does not choose one.
const DefaultProfileLimit = 10000

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// ValueProfiler reads the value distribution of entity-bearing columns.
// Each implementation owns its connection and must be closed when done.
type ValueProfiler interface {
	ConnectionTester

	// ProfileColumn returns up to limit distinct non-null, non-empty values of
	// the column with their row counts, most frequent first.
	ProfileColumn(ctx context.Context, spec models.ColumnSpec, limit int) (*models.ColumnProfile, error)
}

// ValidateSpec rejects specs without a table or column.
func ValidateSpec(spec models.ColumnSpec) error {
	if strings.TrimSpace(spec.Table) == "" || strings.TrimSpace(spec.Column) == "" {
		return fmt.Errorf("%w: table and column are required (got %q)", apperrors.ErrInvalidColumn, spec.QualifiedName())
	}
	return nil
}

// ProfileLimit returns limit, or DefaultProfileLimit when limit is not positive.
func ProfileLimit(limit int) int {
	if limit <= 0 {
		return DefaultProfileLimit
	}
	return limit
}
