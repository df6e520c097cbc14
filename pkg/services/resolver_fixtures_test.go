package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/intent"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/preferences"
)

func profile(table, column string, values ...models.ValueFrequency) models.ColumnProfile {
	return models.ColumnProfile{
		Spec:   models.ColumnSpec{Table: table, Column: column},
		Values: values,
	}
}

func vf(value string, count int64) models.ValueFrequency {
	return models.ValueFrequency{Value: value, Count: count}
}

// buildHolder indexes profiles and publishes the snapshot.
func buildHolder(t *testing.T, cfg IndexerConfig, profiles ...models.ColumnProfile) *SnapshotHolder {
	t.Helper()
	indexer := NewValueIndexer(nil, cfg, nil, zap.NewNop())
	snap, err := indexer.BuildFromProfiles(context.Background(), profiles)
	require.NoError(t, err)

	holder := NewSnapshotHolder()
	holder.Store(snap)
	return holder
}

// acmeHolder has a client and a project both known as "Acme", with similar frequencies.
func acmeHolder(t *testing.T) *SnapshotHolder {
	return buildHolder(t, IndexerConfig{},
		profile("clients", "name", vf("Acme Corp", 100), vf("Lloyds Banking Group", 40)),
		profile("projects", "title", vf("Acme Initiative", 95)),
	)
}

func newTestResolver(holder *SnapshotHolder, store preferences.Store) EntityResolver {
	return NewEntityResolver(holder, store, intent.New(), metrics.New(nil), zap.NewNop())
}
