package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

func crmProfiler() *datasource.StaticProfiler {
	return datasource.NewStaticProfiler([]models.ColumnProfile{
		profile("clients", "name", vf("Lloyds Banking Group", 3), vf("Acme Corp", 2), vf("", 9), vf("   ", 1)),
		profile("projects", "title", vf("Acme Initiative", 2), vf("Apollo", 1)),
	})
}

func crmColumns() []models.ColumnSpec {
	return []models.ColumnSpec{
		{Table: "clients", Column: "name"},
		{Table: "projects", Column: "title"},
	}
}

func TestValueIndexer_Build(t *testing.T) {
	indexer := NewValueIndexer(crmProfiler(), IndexerConfig{Concurrency: 2}, metrics.New(nil), zap.NewNop())

	snap, err := indexer.Build(context.Background(), crmColumns())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Index.Len(), "empty and blank values are skipped")
	assert.Equal(t, []string{"clients", "projects"}, snap.Tables())
	assert.False(t, snap.BuiltAt.IsZero())

	entry, ok := snap.Index.Get("clients", "name", "Lloyds Banking Group")
	require.True(t, ok)
	assert.Equal(t, models.EntityTypeClient, entry.EntityType)
	assert.Equal(t, int64(3), entry.Frequency)
	assert.Contains(t, entry.Variations, "LBG")

	project, ok := snap.Index.Get("projects", "title", "Apollo")
	require.True(t, ok)
	assert.Equal(t, models.EntityTypeProject, project.EntityType)

	long, ok := snap.Learner.Expand("LBG")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long)
	assert.NoError(t, snap.Index.Validate())
}

func TestValueIndexer_BuildPropagatesProfilerErrors(t *testing.T) {
	indexer := NewValueIndexer(crmProfiler(), IndexerConfig{}, nil, zap.NewNop())

	_, err := indexer.Build(context.Background(), append(crmColumns(), models.ColumnSpec{Table: "missing", Column: "name"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.name")
}

func TestValueIndexer_BuildWithoutProfiler(t *testing.T) {
	indexer := NewValueIndexer(nil, IndexerConfig{}, nil, zap.NewNop())

	_, err := indexer.Build(context.Background(), crmColumns())
	assert.Error(t, err)
}

type countingProfiler struct {
	datasource.ValueProfiler
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *countingProfiler) ProfileColumn(ctx context.Context, spec models.ColumnSpec, limit int) (*models.ColumnProfile, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &models.ColumnProfile{Spec: spec, Values: []models.ValueFrequency{{Value: spec.Table + " value", Count: 1}}}, nil
}

func TestValueIndexer_BoundedConcurrency(t *testing.T) {
	p := &countingProfiler{}
	indexer := NewValueIndexer(p, IndexerConfig{Concurrency: 2}, nil, zap.NewNop())

	var columns []models.ColumnSpec
	for _, table := range []string{"a", "b", "c", "d", "e", "f"} {
		columns = append(columns, models.ColumnSpec{Table: table, Column: "name"})
	}

	snap, err := indexer.Build(context.Background(), columns)
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Index.Len())
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestValueIndexer_ManualRulesAndDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "abbreviations.json")
	indexer := NewValueIndexer(nil, IndexerConfig{
		ManualRules:          []models.AbbreviationRule{{ShortForm: "Lloyds", LongForm: "Lloyds Banking Group"}},
		AbbreviationDumpPath: dump,
	}, nil, zap.NewNop())

	snap, err := indexer.BuildFromProfiles(context.Background(), []models.ColumnProfile{
		profile("clients", "name", vf("Lloyds Banking Group", 3)),
	})
	require.NoError(t, err)

	rule, ok := snap.Learner.Rule("Lloyds")
	require.True(t, ok)
	assert.Equal(t, models.RuleSourceManual, rule.Source)

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	var dumped map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &dumped))
	assert.Contains(t, dumped, "LBG")
	assert.Contains(t, dumped, "Lloyds")
}

func TestValueIndexer_ReusesPreviousDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "abbreviations.json")
	require.NoError(t, os.WriteFile(dump, []byte(`{
  "Lloyds": {"long_form": "Lloyds Banking Group", "confidence": 0.85, "source": "first_word"},
  "OMG": {"long_form": "Old Mutual Group", "confidence": 1, "source": "acronym"},
  "LBG": {"long_form": "Somewhere Else", "confidence": 1, "source": "acronym"}
}`), 0o644))

	indexer := NewValueIndexer(nil, IndexerConfig{AbbreviationDumpPath: dump}, nil, zap.NewNop())
	snap, err := indexer.BuildFromProfiles(context.Background(), []models.ColumnProfile{
		profile("clients", "name", vf("Lloyds Banking Group", 3)),
	})
	require.NoError(t, err)

	long, ok := snap.Learner.Expand("Lloyds")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long)

	long, ok = snap.Learner.Expand("LBG")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long, "discovered rules win over dumped ones")

	_, ok = snap.Learner.Expand("OMG")
	assert.False(t, ok, "long form no longer indexed")

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	var dumped map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &dumped))
	assert.Contains(t, dumped, "Lloyds")
	assert.NotContains(t, dumped, "OMG")
}

func TestValueIndexer_UnreadableDumpIsIgnored(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "abbreviations.json")
	require.NoError(t, os.WriteFile(dump, []byte("{not json"), 0o644))

	indexer := NewValueIndexer(nil, IndexerConfig{AbbreviationDumpPath: dump}, nil, zap.NewNop())
	snap, err := indexer.BuildFromProfiles(context.Background(), []models.ColumnProfile{
		profile("clients", "name", vf("Lloyds Banking Group", 3)),
	})
	require.NoError(t, err)

	_, ok := snap.Learner.Expand("LBG")
	assert.True(t, ok)
}

func TestValueIndexer_InvalidManualRule(t *testing.T) {
	indexer := NewValueIndexer(nil, IndexerConfig{
		ManualRules: []models.AbbreviationRule{{ShortForm: "X"}},
	}, nil, zap.NewNop())

	_, err := indexer.BuildFromProfiles(context.Background(), nil)
	assert.Error(t, err)
}

func TestValueIndexer_DuplicateValuesSumFrequency(t *testing.T) {
	indexer := NewValueIndexer(nil, IndexerConfig{}, nil, zap.NewNop())

	snap, err := indexer.BuildFromProfiles(context.Background(), []models.ColumnProfile{
		profile("clients", "name", vf("Acme Corp", 2), vf("Acme Corp", 3)),
	})
	require.NoError(t, err)

	entry, ok := snap.Index.Get("clients", "name", "Acme Corp")
	require.True(t, ok)
	assert.Equal(t, int64(5), entry.Frequency)
}

func TestValueIndexer_Refresh(t *testing.T) {
	holder := NewSnapshotHolder()
	indexer := NewValueIndexer(crmProfiler(), IndexerConfig{}, nil, zap.NewNop())

	first, err := indexer.Refresh(context.Background(), crmColumns(), holder)
	require.NoError(t, err)
	assert.Same(t, first, holder.Load())

	second, err := indexer.Refresh(context.Background(), crmColumns(), holder)
	require.NoError(t, err)
	assert.Same(t, second, holder.Load())
	assert.NotSame(t, first, second)

	// A failed refresh leaves the published snapshot alone.
	_, err = indexer.Refresh(context.Background(), []models.ColumnSpec{{Table: "missing", Column: "x"}}, holder)
	require.Error(t, err)
	assert.Same(t, second, holder.Load())
}

func TestValueIndexer_RefreshEveryStopsWithContext(t *testing.T) {
	holder := NewSnapshotHolder()
	indexer := NewValueIndexer(crmProfiler(), IndexerConfig{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		indexer.RefreshEvery(ctx, crmColumns(), holder, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return holder.Load() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RefreshEvery did not return after cancel")
	}
}

func TestValueIndexer_CanceledContext(t *testing.T) {
	indexer := NewValueIndexer(crmProfiler(), IndexerConfig{}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := indexer.Build(ctx, crmColumns())
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = indexer.BuildFromProfiles(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewIndexerConfig_LoadsManualRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - short_form: BH\n    long_form: Black Horse\n"), 0o600))

	ic, err := NewIndexerConfig(&config.IndexConfig{MaxValuesPerColumn: 50, Concurrency: 3, ManualRulesFile: path})
	require.NoError(t, err)
	assert.Equal(t, 50, ic.MaxValuesPerColumn)
	assert.Equal(t, 3, ic.Concurrency)
	require.Len(t, ic.ManualRules, 1)
	assert.Equal(t, "Black Horse", ic.ManualRules[0].LongForm)

	_, err = NewIndexerConfig(&config.IndexConfig{ManualRulesFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestInferEntityType(t *testing.T) {
	tests := []struct {
		spec models.ColumnSpec
		want models.EntityType
	}{
		{models.ColumnSpec{Table: "clients"}, models.EntityTypeClient},
		{models.ColumnSpec{Table: "companies"}, models.EntityTypeCompany},
		{models.ColumnSpec{Table: "Projects"}, models.EntityTypeProject},
		{models.ColumnSpec{Table: "customers"}, models.EntityTypeClient},
		{models.ColumnSpec{Table: "crm_accounts"}, models.EntityTypeClient},
		{models.ColumnSpec{Table: "people"}, models.EntityTypePerson},
		{models.ColumnSpec{Table: "product_categories"}, models.EntityTypeProduct},
		{models.ColumnSpec{Table: "invoices"}, models.EntityTypeUnknown},
		{models.ColumnSpec{Table: "invoices", EntityType: "Client"}, models.EntityTypeClient},
	}

	for _, tt := range tests {
		t.Run(tt.spec.Table, func(t *testing.T) {
			assert.Equal(t, tt.want, InferEntityType(tt.spec))
		})
	}
}

func TestSnapshotHolder(t *testing.T) {
	holder := NewSnapshotHolder()
	assert.Nil(t, holder.Load())

	a := acmeHolder(t).Load()
	b := acmeHolder(t).Load()
	assert.Nil(t, holder.Store(a))
	assert.Same(t, a, holder.Store(b))
	assert.Same(t, b, holder.Load())
}
