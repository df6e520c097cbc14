package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// StaticProfiler serves precomputed column profiles, for example a JSON
// export from another profiler run. Safe for concurrent use; profiles are
// never modified after construction.
type StaticProfiler struct {
	profiles map[string]models.ColumnProfile
}

var _ ValueProfiler = (*StaticProfiler)(nil)

// NewStaticProfiler indexes profiles by qualified column name.
func NewStaticProfiler(profiles []models.ColumnProfile) *StaticProfiler {
	p := &StaticProfiler{profiles: make(map[string]models.ColumnProfile, len(profiles))}
	for _, profile := range profiles {
		p.profiles[profile.Spec.QualifiedName()] = profile
	}
	return p
}

// LoadStaticProfiler reads a JSON array of column profiles from path.
func LoadStaticProfiler(path string) (*StaticProfiler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	var profiles []models.ColumnProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	return NewStaticProfiler(profiles), nil
}

// Specs returns the column specs of every loaded profile, sorted by name.
func (p *StaticProfiler) Specs() []models.ColumnSpec {
	specs := make([]models.ColumnSpec, 0, len(p.profiles))
	for _, profile := range p.profiles {
		specs = append(specs, profile.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].QualifiedName() < specs[j].QualifiedName() })
	return specs
}

func (p *StaticProfiler) TestConnection(context.Context) error { return nil }

func (p *StaticProfiler) Close() error { return nil }

// ProfileColumn returns the stored profile for spec, dropping empty values,
// sorted by count descending and truncated to limit.
func (p *StaticProfiler) ProfileColumn(ctx context.Context, spec models.ColumnSpec, limit int) (*models.ColumnProfile, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, ok := p.profiles[spec.QualifiedName()]
	if !ok {
		return nil, fmt.Errorf("profile for %s: %w", spec.QualifiedName(), apperrors.ErrNotFound)
	}

	values := make([]models.ValueFrequency, 0, len(stored.Values))
	for _, v := range stored.Values {
		if v.Value != "" {
			values = append(values, v)
		}
	}
	sort.SliceStable(values, func(i, j int) bool { return values[i].Count > values[j].Count })
	if limit = ProfileLimit(limit); len(values) > limit {
		values = values[:limit]
	}

	return &models.ColumnProfile{Spec: spec, Values: values}, nil
}
