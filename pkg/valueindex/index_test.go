package valueindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/variations"
)

func newEntry(value, table string, entityType models.EntityType, freq int64) models.ValueEntry {
	return models.ValueEntry{
		CanonicalValue: value,
		Table:          table,
		Column:         "name",
		EntityType:     entityType,
		Frequency:      freq,
		Variations:     variations.Generate(value),
	}
}

func buildIndex(entries ...models.ValueEntry) *Index {
	ix := New()
	for _, e := range entries {
		ix.Add(e)
	}
	return ix
}

func TestLookup_EveryVariationFindsItsEntry(t *testing.T) {
	lloyds := newEntry("Lloyds Banking Group", "clients", models.EntityTypeClient, 1200)
	acme := newEntry("Acme Corp", "clients", models.EntityTypeClient, 300)
	ix := buildIndex(lloyds, acme)

	for _, entry := range []models.ValueEntry{lloyds, acme} {
		for _, v := range entry.Variations {
			got := ix.Lookup(v)
			require.NotEmpty(t, got, "lookup %q", v)

			found := false
			for _, e := range got {
				if e.Key() == entry.Key() {
					found = true
				}
			}
			assert.True(t, found, "lookup %q should contain %s", v, entry.Key())
		}
	}
}

func TestLookup_NormalizesCaseAndWhitespace(t *testing.T) {
	ix := buildIndex(newEntry("Lloyds Banking Group", "clients", models.EntityTypeClient, 10))

	got := ix.Lookup("  lbg ")
	require.Len(t, got, 1)
	assert.Equal(t, "Lloyds Banking Group", got[0].CanonicalValue)

	assert.Len(t, ix.Lookup("LLOYDS   banking"), 1)
	assert.Empty(t, ix.Lookup("nothing here"))
	assert.Empty(t, ix.Lookup("   "))
}

func TestLookup_AmbiguousVariation(t *testing.T) {
	ix := buildIndex(
		newEntry("Acme Corp", "clients", models.EntityTypeClient, 100),
		newEntry("Acme Initiative", "projects", models.EntityTypeProject, 110),
	)

	got := ix.Lookup("acme")
	require.Len(t, got, 2)
	assert.Equal(t, "Acme Corp", got[0].CanonicalValue)
	assert.Equal(t, "Acme Initiative", got[1].CanonicalValue)
}

func TestLookup_SameValueInTwoColumns(t *testing.T) {
	ix := buildIndex(
		newEntry("Acme", "clients", models.EntityTypeClient, 100),
		newEntry("Acme", "companies", models.EntityTypeCompany, 100),
	)

	assert.Equal(t, 2, ix.Len())
	assert.Len(t, ix.Lookup("Acme"), 2)
	assert.Len(t, ix.ByCanonical("ACME"), 2)
	assert.True(t, ix.HasCanonical("acme"))
	assert.False(t, ix.HasCanonical("acme corp"))

	e, ok := ix.Get("companies", "name", "Acme")
	require.True(t, ok)
	assert.Equal(t, models.EntityTypeCompany, e.EntityType)
}

func TestAdd_TwiceDoesNotDuplicateLookupResults(t *testing.T) {
	e := newEntry("Acme Corp", "clients", models.EntityTypeClient, 100)
	ix := buildIndex(e, e)

	assert.Equal(t, 1, ix.Len())
	assert.Len(t, ix.Lookup("acme corp"), 1)
	assert.Greater(t, ix.Stats().Postings, ix.Stats().Variations)
}

func TestAdd_CanonicalAlwaysIndexed(t *testing.T) {
	ix := New()
	ix.Add(models.ValueEntry{CanonicalValue: "Zeta", Table: "t", Column: "c", Variations: []string{"Z"}})

	assert.Len(t, ix.Lookup("zeta"), 1)
	assert.Len(t, ix.Lookup("z"), 1)
	require.NoError(t, ix.Validate())
}

func TestFuzzySearch_ExactVariationAtThresholdOne(t *testing.T) {
	ix := buildIndex(
		newEntry("Lloyds Banking Group", "clients", models.EntityTypeClient, 10),
		newEntry("Acme Corp", "clients", models.EntityTypeClient, 10),
	)

	got := ix.FuzzySearch("Lloyds Banking", 1.0)
	require.NotEmpty(t, got)
	for _, m := range got {
		assert.Equal(t, 1.0, m.Score)
		assert.Equal(t, "Lloyds Banking Group", m.Entry.CanonicalValue)
		assert.Equal(t, models.MatchTypeFuzzy, m.MatchType)
	}
}

func TestFuzzySearch_NeverBelowThresholdAndSorted(t *testing.T) {
	ix := buildIndex(
		newEntry("Lloyds Banking Group", "clients", models.EntityTypeClient, 10),
		newEntry("Lloyd Bank", "clients", models.EntityTypeClient, 10),
		newEntry("Acme Corp", "clients", models.EntityTypeClient, 10),
	)

	for _, threshold := range []float64{0.5, 0.75, 0.8, 0.9} {
		got := ix.FuzzySearch("loyds banking", threshold)
		for i, m := range got {
			assert.GreaterOrEqual(t, m.Score, threshold)
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Score, m.Score)
			}
		}
	}

	got := ix.FuzzySearch("loyds banking", 0.8)
	require.NotEmpty(t, got)
	assert.Equal(t, "Lloyds Banking Group", got[0].Entry.CanonicalValue)
}

func TestFuzzySearch_LengthPruningKeepsResults(t *testing.T) {
	// Pruning must not change results compared to scoring everything.
	ix := buildIndex(
		newEntry("Lloyds Banking Group", "clients", models.EntityTypeClient, 10),
		newEntry("Barclays", "clients", models.EntityTypeClient, 10),
		newEntry("Acme Corp", "clients", models.EntityTypeClient, 10),
	)

	q := "barclay"
	got := ix.FuzzySearch(q, 0.75)

	var expected int
	for k, keys := range ix.inverted {
		if Similarity(q, k) >= 0.75 {
			expected += len(ix.resolveKeys(keys))
		}
	}
	assert.Len(t, got, expected)
	assert.Empty(t, ix.FuzzySearch("", 0.5))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("acme", "acme"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 0.75, Similarity("acme", "acne"), 1e-9)
	assert.InDelta(t, 0.8, Similarity("société", "societé"), 0.1)
}

func TestStats(t *testing.T) {
	ix := buildIndex(
		newEntry("Acme Corp", "clients", models.EntityTypeClient, 100),
		newEntry("Acme Initiative", "projects", models.EntityTypeProject, 110),
	)

	stats := ix.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, ix.VariationCount(), stats.Variations)
	assert.GreaterOrEqual(t, stats.AmbiguousKeys, 1)
	assert.Equal(t, 1, stats.ByEntityType["client"])
	assert.Equal(t, 1, stats.ByLocation["projects.name"])
}

func TestValidate(t *testing.T) {
	ix := buildIndex(newEntry("Acme Corp", "clients", models.EntityTypeClient, 100))
	require.NoError(t, ix.Validate())

	// Simulate a dangling posting.
	ix.inverted["ghost"] = []models.EntryKey{{Table: "x", Column: "y", CanonicalValue: "Ghost"}}
	err := ix.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))
}
