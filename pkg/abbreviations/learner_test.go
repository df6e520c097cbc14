package abbreviations

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
	"github.com/ekaya-inc/ekaya-grounding/pkg/variations"
)

func indexOf(t *testing.T, values ...string) *valueindex.Index {
	t.Helper()
	ix := valueindex.New()
	for i, v := range values {
		ix.Add(models.ValueEntry{
			CanonicalValue: v,
			Table:          "clients",
			Column:         "name",
			EntityType:     models.EntityTypeClient,
			Frequency:      int64(100 - i),
			Variations:     variations.Generate(v),
		})
	}
	return ix
}

func TestDiscover_LloydsBankingGroupAcronym(t *testing.T) {
	l := New(zap.NewNop())
	found := l.Discover(indexOf(t, "Lloyds Banking Group"))

	assert.Equal(t, "Lloyds Banking Group", found["LBG"])

	long, ok := l.Expand("LBG")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long)
	assert.GreaterOrEqual(t, l.Confidence("LBG"), 0.8)

	rule, ok := l.Rule("LBG")
	require.True(t, ok)
	assert.Equal(t, models.RuleSourceAcronym, rule.Source)
}

func TestExpand_FallsBackToLowerCasedKey(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Lloyds Banking Group"))

	long, ok := l.Expand("lbg")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long)

	_, ok = l.Expand("nope")
	assert.False(t, ok)
	assert.Equal(t, 0.0, l.Confidence("nope"))
	_, ok = l.Expand("  ")
	assert.False(t, ok)
}

func TestDiscover_AcronymPrefersExactAlignment(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Royal Bank of Scotland", "Royal Bank"))

	rule, ok := l.Rule("RBS")
	require.True(t, ok)
	assert.Equal(t, "Royal Bank of Scotland", rule.LongForm)
	assert.Equal(t, 1.0, rule.Confidence)

	// "RB" is the exact initials of "Royal Bank" and a prefix of RBS.
	rule, ok = l.Rule("RB")
	require.True(t, ok)
	assert.Equal(t, "Royal Bank", rule.LongForm)
}

func TestDiscover_DenylistedWordsAreNotAcronyms(t *testing.T) {
	l := New(zap.NewNop())
	// "THE" appears as an upper-cased variation of a single-word value.
	l.Discover(indexOf(t, "The", "Tech Holdings Europe"))

	_, ok := l.Rule("THE")
	assert.False(t, ok)
}

func TestDiscover_FirstWordCluster(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Barclays Capital", "Barclays Wealth", "Acme Corp"))

	rule, ok := l.Rule("Barclays")
	require.True(t, ok)
	assert.Equal(t, "Barclays Capital", rule.LongForm)
	assert.Equal(t, 0.85, rule.Confidence)
	assert.Equal(t, models.RuleSourceFirstWord, rule.Source)
	assert.ElementsMatch(t, []string{"Barclays Capital", "Barclays Wealth"}, rule.Examples)

	// A single "Acme ..." value does not form a cluster.
	_, ok = l.Rule("Acme")
	assert.False(t, ok)
}

func TestDiscover_FirstWordAlsoStandaloneValue(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Barclays Capital", "Barclays Wealth", "Barclays"))

	assert.Equal(t, 0.7, l.Confidence("Barclays"))
}

func TestDiscover_FirstWordIgnoresShortWords(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Big Data Labs", "Big Sky Partners"))

	_, ok := l.Rule("Big")
	assert.False(t, ok)
}

func TestDiscover_KnownPatternsOnlyWhenIndexed(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Great Britain"))

	rule, ok := l.Rule("UK")
	require.True(t, ok)
	assert.Equal(t, "Great Britain", rule.LongForm)
	assert.Equal(t, models.RuleSourcePattern, rule.Source)
	assert.Equal(t, 0.95, rule.Confidence)

	_, ok = l.Rule("SF")
	assert.False(t, ok)
}

func TestDiscover_FirstWriterWins(t *testing.T) {
	// "United States" yields acronym "US" before the known-pattern strategy runs.
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "United States"))

	rule, ok := l.Rule("US")
	require.True(t, ok)
	assert.Equal(t, models.RuleSourceAcronym, rule.Source)
	assert.Equal(t, "United States", rule.LongForm)
}

func TestDiscover_IsDeterministic(t *testing.T) {
	values := []string{"Lloyds Banking Group", "Barclays Capital", "Barclays Wealth", "United Kingdom", "Acme Corp"}

	a := New(zap.NewNop())
	b := New(zap.NewNop())
	assert.Equal(t, a.Discover(indexOf(t, values...)), b.Discover(indexOf(t, values...)))
	assert.Equal(t, a.Rules(), b.Rules())
}

func TestAddManualRule_Overwrites(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Lloyds Banking Group"))
	before := l.Len()

	require.NoError(t, l.AddManualRule("LBG", "Lloyds Bank"))

	rule, ok := l.Rule("LBG")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Bank", rule.LongForm)
	assert.Equal(t, 1.0, rule.Confidence)
	assert.Equal(t, models.RuleSourceManual, rule.Source)
	assert.Equal(t, before, l.Len())

	long, _ := l.Expand("lbg")
	assert.Equal(t, "Lloyds Bank", long)

	err := l.AddManualRule("", "x")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRule))
}

func TestMarshalRules_RoundTrip(t *testing.T) {
	l := New(zap.NewNop())
	l.Discover(indexOf(t, "Lloyds Banking Group", "Barclays Capital", "Barclays Wealth"))
	require.NoError(t, l.AddManualRule("GS", "Goldman Sachs"))

	data, err := l.MarshalRules()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"long_form": "Lloyds Banking Group"`)

	rules, err := ParseRules(data)
	require.NoError(t, err)
	assert.ElementsMatch(t, l.Rules(), rules)
}

func TestParseRules_RejectsUnknownSource(t *testing.T) {
	_, err := ParseRules([]byte(`{"X": {"long_form": "Y", "confidence": 1, "source": "guess"}}`))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRule))

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReuseRules(t *testing.T) {
	ix := indexOf(t, "Lloyds Banking Group", "Barclays Capital")
	l := New(zap.NewNop())
	l.Discover(ix)

	added := l.ReuseRules([]models.AbbreviationRule{
		{ShortForm: "LBG", LongForm: "Barclays Capital", Confidence: 1, Source: models.RuleSourceAcronym},
		{ShortForm: "Lloyds", LongForm: "Lloyds Banking Group", Confidence: 0.85, Source: models.RuleSourceFirstWord},
		{ShortForm: "OMG", LongForm: "Old Mutual Group", Confidence: 1, Source: models.RuleSourceAcronym},
		{ShortForm: "GS", LongForm: "Barclays Capital", Confidence: 1, Source: models.RuleSourceManual},
	}, ix)
	assert.Equal(t, 1, added)

	long, _ := l.Expand("LBG")
	assert.Equal(t, "Lloyds Banking Group", long, "existing rule kept")

	long, ok := l.Expand("lloyds")
	require.True(t, ok)
	assert.Equal(t, "Lloyds Banking Group", long)

	_, ok = l.Expand("OMG")
	assert.False(t, ok)
	_, ok = l.Expand("GS")
	assert.False(t, ok, "manual rules only come from the rules file")
}

func TestAlignAcronym(t *testing.T) {
	initials := func(v string) [2]string {
		return [2]string{variations.Initials(v), variations.Initials(variations.StripSuffixes(v))}
	}

	assert.Equal(t, acronymExactScore, alignAcronym("LBG", initials("Lloyds Banking Group")))
	assert.Equal(t, acronymExactScore, alignAcronym("LB", initials("Lloyds Banking Group")), "suffix-stripped base")
	assert.Equal(t, acronymPrefixScore, alignAcronym("BNY", initials("Bank of New York Mellon")))
	assert.Equal(t, 0.0, alignAcronym("XYZ", initials("Lloyds Banking Group")))
	assert.Equal(t, 0.0, alignAcronym("A", initials("Acme")))
}

func TestWriteJSON(t *testing.T) {
	l := New(zap.NewNop())
	require.NoError(t, l.AddManualRule("GS", "Goldman Sachs"))

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, l.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"GS"`)
}

func TestLoadManualRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - short_form: GS
    long_form: Goldman Sachs Group
  - short_form: " JPM "
    long_form: JPMorgan Chase
    confidence: 0.2
`), 0o644))

	rules, err := LoadManualRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "JPM", rules[1].ShortForm)
	assert.Equal(t, 1.0, rules[1].Confidence)
	assert.Equal(t, models.RuleSourceManual, rules[1].Source)

	l := New(zap.NewNop())
	require.NoError(t, l.ApplyManualRules(rules))
	long, ok := l.Expand("gs")
	require.True(t, ok)
	assert.Equal(t, "Goldman Sachs Group", long)
}

func TestParseManualRules_Invalid(t *testing.T) {
	_, err := ParseManualRules([]byte("rules:\n  - short_form: GS\n"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRule))

	_, err = ParseManualRules([]byte("rules: [unclosed"))
	assert.Error(t, err)

	_, err = LoadManualRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
