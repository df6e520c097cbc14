// Package abbreviations mines a value index for short-form to long-form
// rules ("LBG" -> "Lloyds Banking Group").
package abbreviations

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
	"github.com/ekaya-inc/ekaya-grounding/pkg/variations"
)

// Strategy confidences.
const (
	acronymExactScore    = 1.0
	acronymPrefixScore   = 0.9
	acronymMinConfidence = 0.8
	firstWordConfidence  = 0.85
	firstWordAmbiguous   = 0.7
	knownPatternScore    = 0.95
	manualRuleConfidence = 1.0
	firstWordMinRunes    = 4
	firstWordMinValues   = 2
	acronymMinLen        = 2
	acronymMaxLen        = 5
	maxFirstWordExamples = 5
)

// knownPatterns are well-known short forms. A rule is only emitted when one of
// the expansions is actually indexed.
var knownPatterns = []struct {
	short      string
	expansions []string
}{
	{"US", []string{"United States", "United States of America", "USA"}},
	{"UK", []string{"United Kingdom", "Great Britain"}},
	{"EU", []string{"European Union"}},
	{"NY", []string{"New York", "New York City"}},
	{"SF", []string{"San Francisco"}},
	{"LA", []string{"Los Angeles"}},
}

// acronymDenylist holds upper-case words that look like codes but are common
// words, titles or unit names.
var acronymDenylist = map[string]bool{
	"A": true, "AN": true, "AND": true, "THE": true, "FOR": true, "NOT": true,
	"BUT": true, "ARE": true, "WAS": true, "HAS": true, "HAD": true, "CAN": true,
	"MAY": true, "OUR": true, "YOUR": true, "ITS": true, "HIS": true, "HER": true,
	"WHO": true, "WHY": true, "HOW": true, "WHAT": true, "WHEN": true, "WITH": true,
	"FROM": true, "THIS": true, "THAT": true, "INTO": true, "OVER": true, "ALL": true,
	"ANY": true, "NEW": true, "OLD": true, "TOP": true, "BIG": true, "ONE": true,
	"TWO": true, "OF": true, "TO": true, "IN": true, "ON": true, "AT": true,
	"BY": true, "OR": true, "IS": true, "IT": true, "AS": true, "BE": true,
	"DO": true, "GO": true, "IF": true, "NO": true, "SO": true, "UP": true,
	"WE": true, "OK": true, "YES": true, "MR": true, "MRS": true, "MS": true,
	"DR": true, "CEO": true, "CFO": true, "CTO": true, "COO": true, "VP": true,
	"SVP": true, "EVP": true, "HR": true, "PR": true, "QA": true, "ID": true,
	"INC": true, "LTD": true, "LLC": true, "LLP": true, "PLC": true, "CORP": true,
	"CO": true, "AM": true, "PM": true, "USD": true, "GBP": true, "EUR": true,
	"TBD": true, "NA": true,
}

// Learner holds discovered and manual abbreviation rules.
// Safe for concurrent use.
type Learner struct {
	mu     sync.RWMutex
	rules  map[string]models.AbbreviationRule
	order  []string // primary short forms, in discovery order
	logger *zap.Logger
}

// New returns an empty learner.
func New(logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		rules:  make(map[string]models.AbbreviationRule),
		logger: logger.Named("abbreviations"),
	}
}

// Discover runs the acronym, first-word and known-pattern strategies over ix,
// in that order. The first strategy to claim a short form keeps it.
// Returns the newly discovered short forms mapped to their long forms.
func (l *Learner) Discover(ix *valueindex.Index) map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := make(map[string]string)
	collect := func(rules []models.AbbreviationRule) int {
		added := 0
		for _, r := range rules {
			if l.insertLocked(r, false) {
				found[r.ShortForm] = r.LongForm
				added++
			}
		}
		return added
	}

	acronyms := collect(discoverAcronyms(ix))
	firstWords := collect(discoverFirstWords(ix))
	patterns := collect(discoverKnownPatterns(ix))

	l.logger.Info("Abbreviation discovery complete",
		zap.Int("acronym_rules", acronyms),
		zap.Int("first_word_rules", firstWords),
		zap.Int("pattern_rules", patterns),
		zap.Int("entries", ix.Len()))

	return found
}

// Expand returns the long form for short, trying the exact key first and
// then the lower-cased key.
func (l *Learner) Expand(short string) (string, bool) {
	r, ok := l.Rule(short)
	if !ok {
		return "", false
	}
	return r.LongForm, true
}

// Confidence returns the rule confidence for short, or 0 when unknown.
func (l *Learner) Confidence(short string) float64 {
	r, ok := l.Rule(short)
	if !ok {
		return 0
	}
	return r.Confidence
}

// Rule returns the full rule for short.
func (l *Learner) Rule(short string) (models.AbbreviationRule, bool) {
	short = strings.TrimSpace(short)
	if short == "" {
		return models.AbbreviationRule{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.rules[short]; ok {
		return r, true
	}
	r, ok := l.rules[strings.ToLower(short)]
	return r, ok
}

// AddManualRule registers short -> long with confidence 1.0, replacing any
// existing rule.
func (l *Learner) AddManualRule(short, long string) error {
	short = strings.TrimSpace(short)
	long = strings.TrimSpace(long)
	if short == "" || long == "" {
		return fmt.Errorf("%w: short and long form are required", apperrors.ErrInvalidRule)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(models.AbbreviationRule{
		ShortForm:  short,
		LongForm:   long,
		Confidence: manualRuleConfidence,
		Source:     models.RuleSourceManual,
	}, true)
	return nil
}

// ReuseRules adds rules carried over from an earlier build. A rule is kept
// only when its long form is still a canonical value in ix and its short form
// is not already claimed. Manual rules are skipped; they come from the manual
// rules file alone. Returns the number of rules added.
func (l *Learner) ReuseRules(rules []models.AbbreviationRule, ix *valueindex.Index) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, r := range rules {
		if r.Source == models.RuleSourceManual || !ix.HasCanonical(r.LongForm) {
			continue
		}
		if l.insertLocked(r, false) {
			added++
		}
	}
	return added
}

// Rules returns every rule under its primary short form, in insertion order.
func (l *Learner) Rules() []models.AbbreviationRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.AbbreviationRule, 0, len(l.order))
	for _, short := range l.order {
		out = append(out, l.rules[short])
	}
	return out
}

// Len returns the number of primary rules.
func (l *Learner) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// insertLocked stores r under its short form and the lower-cased short form.
// Without overwrite an existing primary key wins. Caller holds l.mu.
func (l *Learner) insertLocked(r models.AbbreviationRule, overwrite bool) bool {
	_, exists := l.rules[r.ShortForm]
	if exists && !overwrite {
		return false
	}
	if !exists {
		l.order = append(l.order, r.ShortForm)
	}
	l.rules[r.ShortForm] = r

	lower := strings.ToLower(r.ShortForm)
	if lower != r.ShortForm {
		if _, taken := l.rules[lower]; !taken || overwrite {
			l.rules[lower] = r
		}
	}
	return true
}

// acronymTarget is a canonical value with its initials computed once.
type acronymTarget struct {
	entry    models.ValueEntry
	initials [2]string // of the value and of its suffix-stripped base
}

// discoverAcronyms aligns upper-case short codes found among the indexed
// variations with the word initials of every canonical value.
func discoverAcronyms(ix *valueindex.Index) []models.AbbreviationRule {
	entries := ix.Entries()

	var codes []string
	seen := make(map[string]bool)
	targets := make([]acronymTarget, 0, len(entries))
	for _, e := range entries {
		for _, v := range e.Variations {
			if !seen[v] && isAcronymCandidate(v) {
				seen[v] = true
				codes = append(codes, v)
			}
		}
		targets = append(targets, acronymTarget{
			entry: e,
			initials: [2]string{
				variations.Initials(e.CanonicalValue),
				variations.Initials(variations.StripSuffixes(e.CanonicalValue)),
			},
		})
	}

	var rules []models.AbbreviationRule
	for _, code := range codes {
		var (
			best      models.ValueEntry
			bestScore float64
		)
		for _, t := range targets {
			score := alignAcronym(code, t.initials)
			if score == 0 {
				continue
			}
			if score > bestScore || (score == bestScore && t.entry.Frequency > best.Frequency) {
				best = t.entry
				bestScore = score
			}
		}
		if bestScore > acronymMinConfidence {
			rules = append(rules, models.AbbreviationRule{
				ShortForm:  code,
				LongForm:   best.CanonicalValue,
				Confidence: bestScore,
				Source:     models.RuleSourceAcronym,
				Examples:   []string{best.CanonicalValue},
			})
		}
	}
	return rules
}

// alignAcronym scores code against precomputed initials: 1.0 for an exact
// match, 0.9 when code is a prefix.
func alignAcronym(code string, initials [2]string) float64 {
	var score float64
	for _, in := range initials {
		if utf8.RuneCountInString(in) < acronymMinLen {
			continue
		}
		switch {
		case in == code:
			return acronymExactScore
		case strings.HasPrefix(in, code):
			score = acronymPrefixScore
		}
	}
	return score
}

func isAcronymCandidate(v string) bool {
	n := utf8.RuneCountInString(v)
	if n < acronymMinLen || n > acronymMaxLen || acronymDenylist[v] {
		return false
	}
	for _, r := range v {
		if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// discoverFirstWords clusters canonical values by a shared capitalized first
// word and maps that word to the first value seen.
func discoverFirstWords(ix *valueindex.Index) []models.AbbreviationRule {
	type cluster struct {
		word   string
		values []string
		seen   map[string]bool
	}
	clusters := make(map[string]*cluster)
	var order []string

	for _, e := range ix.Entries() {
		words := variations.Words(e.CanonicalValue)
		if len(words) < 2 {
			continue
		}
		first := strings.TrimRight(words[0], ",")
		if utf8.RuneCountInString(first) < firstWordMinRunes {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(first); !unicode.IsUpper(r) {
			continue
		}

		c, ok := clusters[first]
		if !ok {
			c = &cluster{word: first, seen: make(map[string]bool)}
			clusters[first] = c
			order = append(order, first)
		}
		if !c.seen[e.CanonicalValue] {
			c.seen[e.CanonicalValue] = true
			c.values = append(c.values, e.CanonicalValue)
		}
	}

	var rules []models.AbbreviationRule
	for _, word := range order {
		c := clusters[word]
		if len(c.values) < firstWordMinValues {
			continue
		}
		confidence := firstWordConfidence
		if ix.HasCanonical(word) {
			confidence = firstWordAmbiguous
		}
		examples := c.values
		if len(examples) > maxFirstWordExamples {
			examples = examples[:maxFirstWordExamples]
		}
		rules = append(rules, models.AbbreviationRule{
			ShortForm:  word,
			LongForm:   c.values[0],
			Confidence: confidence,
			Source:     models.RuleSourceFirstWord,
			Examples:   append([]string(nil), examples...),
		})
	}
	return rules
}

func discoverKnownPatterns(ix *valueindex.Index) []models.AbbreviationRule {
	var rules []models.AbbreviationRule
	for _, p := range knownPatterns {
		for _, expansion := range p.expansions {
			hits := ix.Lookup(expansion)
			if len(hits) == 0 {
				continue
			}
			rules = append(rules, models.AbbreviationRule{
				ShortForm:  p.short,
				LongForm:   hits[0].CanonicalValue,
				Confidence: knownPatternScore,
				Source:     models.RuleSourcePattern,
				Examples:   []string{expansion},
			})
			break
		}
	}
	return rules
}
