//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/testhelpers"
)

func TestProfiler_ProfileColumn(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	p := NewProfilerFromPool(testDB.Pool)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.TestConnection(ctx))

	profile, err := p.ProfileColumn(ctx, models.ColumnSpec{Table: "clients", Column: "name"}, 10)
	require.NoError(t, err)

	// NULL and '' are excluded.
	require.Len(t, profile.Values, 3)
	assert.Equal(t, models.ValueFrequency{Value: "Lloyds Banking Group", Count: 3}, profile.Values[0])
	assert.Equal(t, models.ValueFrequency{Value: "Acme Corp", Count: 2}, profile.Values[1])
	assert.Equal(t, models.ValueFrequency{Value: "Barclays", Count: 1}, profile.Values[2])
}

func TestProfiler_ProfileColumn_Limit(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	p := NewProfilerFromPool(testDB.Pool)

	profile, err := p.ProfileColumn(context.Background(), models.ColumnSpec{Table: "projects", Column: "title"}, 1)
	require.NoError(t, err)
	require.Len(t, profile.Values, 1)
	assert.Equal(t, "Acme Initiative", profile.Values[0].Value)
}

func TestProfiler_ProfileColumn_UnknownTable(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	p := NewProfilerFromPool(testDB.Pool)

	_, err := p.ProfileColumn(context.Background(), models.ColumnSpec{Table: "missing", Column: "name"}, 10)
	assert.Error(t, err)
}
