package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-grounding/pkg/abbreviations"
	"github.com/ekaya-inc/ekaya-grounding/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
	"github.com/ekaya-inc/ekaya-grounding/pkg/variations"
)

// ValueIndexer builds snapshots from the value distributions of
// entity-bearing columns.
type ValueIndexer interface {
	// Build profiles every column and returns a validated snapshot with
	// abbreviation rules discovered and manual rules applied.
	Build(ctx context.Context, columns []models.ColumnSpec) (*Snapshot, error)

	// BuildFromProfiles builds a snapshot from precomputed distributions.
	BuildFromProfiles(ctx context.Context, profiles []models.ColumnProfile) (*Snapshot, error)

	// Refresh builds a snapshot and publishes it to holder.
	Refresh(ctx context.Context, columns []models.ColumnSpec, holder *SnapshotHolder) (*Snapshot, error)

	// RefreshEvery calls Refresh every interval until ctx is done. Failed
	// refreshes are logged and the previous snapshot stays published.
	RefreshEvery(ctx context.Context, columns []models.ColumnSpec, holder *SnapshotHolder, interval time.Duration)
}

// IndexerConfig tunes index builds.
type IndexerConfig struct {
	MaxValuesPerColumn   int
	Concurrency          int
	ManualRules          []models.AbbreviationRule
	AbbreviationDumpPath string
}

// NewIndexerConfig converts the index configuration, loading the manual rules
// file when one is configured.
func NewIndexerConfig(cfg *config.IndexConfig) (IndexerConfig, error) {
	ic := IndexerConfig{
		MaxValuesPerColumn:   cfg.MaxValuesPerColumn,
		Concurrency:          cfg.Concurrency,
		AbbreviationDumpPath: cfg.AbbreviationDumpPath,
	}
	if cfg.ManualRulesFile != "" {
		rules, err := abbreviations.LoadManualRules(cfg.ManualRulesFile)
		if err != nil {
			return IndexerConfig{}, err
		}
		ic.ManualRules = rules
	}
	return ic, nil
}

type valueIndexer struct {
	profiler datasource.ValueProfiler
	cfg      IndexerConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewValueIndexer creates an indexer reading through profiler. profiler may
// be nil when only BuildFromProfiles is used.
func NewValueIndexer(profiler datasource.ValueProfiler, cfg IndexerConfig, m *metrics.Metrics, logger *zap.Logger) ValueIndexer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	cfg.MaxValuesPerColumn = datasource.ProfileLimit(cfg.MaxValuesPerColumn)
	return &valueIndexer{
		profiler: profiler,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("value-indexer"),
	}
}

var _ ValueIndexer = (*valueIndexer)(nil)

func (s *valueIndexer) Build(ctx context.Context, columns []models.ColumnSpec) (*Snapshot, error) {
	start := time.Now()
	if s.profiler == nil {
		return nil, fmt.Errorf("value indexer has no profiler")
	}

	profiles := make([]models.ColumnProfile, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, spec := range columns {
		g.Go(func() error {
			colStart := time.Now()
			profile, err := s.profiler.ProfileColumn(gctx, spec, s.cfg.MaxValuesPerColumn)
			if err != nil {
				return fmt.Errorf("failed to profile %s: %w", spec.QualifiedName(), err)
			}
			s.metrics.RecordColumnProfile(spec.QualifiedName(), time.Since(colStart))
			s.logger.Debug("Profiled column",
				zap.String("column", spec.QualifiedName()),
				zap.Int("values", len(profile.Values)),
				zap.Duration("elapsed", time.Since(colStart)))
			profiles[i] = *profile
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.metrics.RecordBuildFailure(time.Since(start))
		return nil, err
	}

	return s.build(profiles, start)
}

func (s *valueIndexer) BuildFromProfiles(ctx context.Context, profiles []models.ColumnProfile) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.build(profiles, time.Now())
}

func (s *valueIndexer) build(profiles []models.ColumnProfile, start time.Time) (*Snapshot, error) {
	ix := valueindex.New()
	skipped := 0

	for _, profile := range profiles {
		entityType := InferEntityType(profile.Spec)
		for _, vf := range profile.Values {
			if strings.TrimSpace(vf.Value) == "" {
				skipped++
				continue
			}
			entry := models.ValueEntry{
				CanonicalValue: vf.Value,
				Table:          profile.Spec.Table,
				Column:         profile.Spec.Column,
				EntityType:     entityType,
				Frequency:      vf.Count,
				Variations:     variations.Generate(vf.Value),
			}
			// A value listed twice for the same column keeps the summed count.
			if existing, ok := ix.GetByKey(entry.Key()); ok {
				entry.Frequency += existing.Frequency
			}
			ix.Add(entry)
		}
	}

	if err := ix.Validate(); err != nil {
		s.metrics.RecordBuildFailure(time.Since(start))
		return nil, fmt.Errorf("index build produced an invalid index: %w", err)
	}

	learner := abbreviations.New(s.logger)
	discovered := learner.Discover(ix)
	reused := s.reuseDumpedRules(learner, ix)
	if err := learner.ApplyManualRules(s.cfg.ManualRules); err != nil {
		s.metrics.RecordBuildFailure(time.Since(start))
		return nil, fmt.Errorf("failed to apply manual abbreviation rules: %w", err)
	}

	if s.cfg.AbbreviationDumpPath != "" {
		if err := learner.WriteJSON(s.cfg.AbbreviationDumpPath); err != nil {
			s.logger.Warn("Failed to write abbreviation dump",
				zap.String("path", s.cfg.AbbreviationDumpPath),
				zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	s.metrics.RecordBuild(ix.Len(), ix.VariationCount(), learner.Len(), elapsed)
	s.logger.Info("Value index built",
		zap.Int("columns", len(profiles)),
		zap.Int("entries", ix.Len()),
		zap.Int("variations", ix.VariationCount()),
		zap.Int("skipped_empty", skipped),
		zap.Int("abbreviations_discovered", len(discovered)),
		zap.Int("abbreviations_reused", reused),
		zap.Int("manual_rules", len(s.cfg.ManualRules)),
		zap.Duration("elapsed", elapsed))

	return NewSnapshot(ix, learner, time.Now().UTC()), nil
}

// reuseDumpedRules carries rules over from the dump of the previous build.
// A missing dump is normal on the first run.
func (s *valueIndexer) reuseDumpedRules(learner *abbreviations.Learner, ix *valueindex.Index) int {
	if s.cfg.AbbreviationDumpPath == "" {
		return 0
	}
	rules, err := abbreviations.LoadRules(s.cfg.AbbreviationDumpPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Ignoring unreadable abbreviation dump",
				zap.String("path", s.cfg.AbbreviationDumpPath),
				zap.Error(err))
		}
		return 0
	}
	return learner.ReuseRules(rules, ix)
}

func (s *valueIndexer) Refresh(ctx context.Context, columns []models.ColumnSpec, holder *SnapshotHolder) (*Snapshot, error) {
	snap, err := s.Build(ctx, columns)
	if err != nil {
		return nil, err
	}
	if previous := holder.Store(snap); previous != nil {
		s.logger.Info("Replaced value index snapshot",
			zap.Time("previous_built_at", previous.BuiltAt),
			zap.Int("previous_entries", previous.Index.Len()),
			zap.Int("entries", snap.Index.Len()))
	}
	return snap, nil
}

func (s *valueIndexer) RefreshEvery(ctx context.Context, columns []models.ColumnSpec, holder *SnapshotHolder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx, columns, holder); err != nil {
				s.logger.Error("Scheduled index refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}

// tableTypeAliases maps singular table-name words onto entity types beyond
// the type names themselves.
var tableTypeAliases = map[string]models.EntityType{
	"customer":     models.EntityTypeClient,
	"account":      models.EntityTypeClient,
	"organization": models.EntityTypeCompany,
	"organisation": models.EntityTypeCompany,
	"firm":         models.EntityTypeCompany,
	"vendor":       models.EntityTypeCompany,
	"supplier":     models.EntityTypeCompany,
	"engagement":   models.EntityTypeProject,
	"initiative":   models.EntityTypeProject,
	"item":         models.EntityTypeProduct,
	"sku":          models.EntityTypeProduct,
	"employee":     models.EntityTypePerson,
	"user":         models.EntityTypePerson,
	"contact":      models.EntityTypePerson,
	"people":       models.EntityTypePerson,
	"staff":        models.EntityTypePerson,
	"city":         models.EntityTypeLocation,
	"country":      models.EntityTypeLocation,
	"region":       models.EntityTypeLocation,
	"office":       models.EntityTypeLocation,
	"site":         models.EntityTypeLocation,
}

// InferEntityType returns the spec's explicit entity type, or one inferred
// from the table name: "clients" and "client_accounts" are clients, "companies"
// is a company. The last underscore-separated word is tried first.
func InferEntityType(spec models.ColumnSpec) models.EntityType {
	if spec.EntityType != "" {
		return models.ParseEntityType(spec.EntityType)
	}

	words := strings.Split(strings.ToLower(spec.Table), "_")
	for i := len(words) - 1; i >= 0; i-- {
		singular := inflection.Singular(words[i])
		if t := models.ParseEntityType(singular); t != models.EntityTypeUnknown {
			return t
		}
		if t, ok := tableTypeAliases[singular]; ok {
			return t
		}
	}
	return models.EntityTypeUnknown
}
