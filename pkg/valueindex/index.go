// Package valueindex holds the in-memory searchable index of canonical
// database values and their variations.
//
// An Index is built once and then only read. It has no internal locking:
// rebuilds construct a new Index and swap the reference.
package valueindex

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// DefaultFuzzyThreshold is the similarity cutoff used when callers have no
// stronger opinion.
const DefaultFuzzyThreshold = 0.8

// Index maps canonical values to entries and lower-cased variations to the
// entries that produce them.
type Index struct {
	entries  map[models.EntryKey]models.ValueEntry
	order    []models.EntryKey
	inverted map[string][]models.EntryKey

	// keysByLength buckets inverted-index keys by rune length so fuzzy search
	// can skip lengths that cannot reach the threshold.
	keysByLength map[int][]string
	lengths      []int

	canonical map[string][]models.EntryKey
}

// Stats are diagnostic counts for an index.
type Stats struct {
	Entries       int            `json:"entries"`
	Variations    int            `json:"variations"`     // Distinct inverted-index keys
	Postings      int            `json:"postings"`       // Total key -> entry links
	AmbiguousKeys int            `json:"ambiguous_keys"` // Keys pointing at more than one entry
	ByEntityType  map[string]int `json:"by_entity_type"`
	ByLocation    map[string]int `json:"by_location"`
}

// New returns an empty index.
func New() *Index {
	return &Index{
		entries:      make(map[models.EntryKey]models.ValueEntry),
		inverted:     make(map[string][]models.EntryKey),
		keysByLength: make(map[int][]string),
		canonical:    make(map[string][]models.EntryKey),
	}
}

// indexKey is the normalized form used for the inverted index.
func indexKey(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// Add inserts an entry and posts it under every lower-cased variation.
// The canonical value is always treated as one of its own variations.
func (ix *Index) Add(entry models.ValueEntry) {
	if !entry.HasVariation(entry.CanonicalValue) {
		variations := make([]string, 0, len(entry.Variations)+1)
		variations = append(variations, entry.Variations...)
		entry.Variations = append(variations, entry.CanonicalValue)
	}

	key := entry.Key()
	if _, exists := ix.entries[key]; !exists {
		ix.order = append(ix.order, key)
		lc := strings.ToLower(entry.CanonicalValue)
		ix.canonical[lc] = append(ix.canonical[lc], key)
	}
	ix.entries[key] = entry

	seen := make(map[string]bool, len(entry.Variations))
	for _, v := range entry.Variations {
		k := indexKey(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true

		if _, exists := ix.inverted[k]; !exists {
			n := utf8.RuneCountInString(k)
			if _, ok := ix.keysByLength[n]; !ok {
				ix.lengths = append(ix.lengths, n)
				sort.Ints(ix.lengths)
			}
			ix.keysByLength[n] = append(ix.keysByLength[n], k)
		}
		ix.inverted[k] = append(ix.inverted[k], key)
	}
}

// Lookup returns every entry having value as a variation, ignoring case and
// surrounding whitespace. Entries are returned once each, in insertion order
// of their postings.
func (ix *Index) Lookup(value string) []models.ValueEntry {
	k := indexKey(value)
	if k == "" {
		return nil
	}
	return ix.resolveKeys(ix.inverted[k])
}

// FuzzySearch scores every indexed variation against value and returns the
// matches scoring at least threshold, best first. An entry appears once per
// matching variation; callers dedupe by entry key.
func (ix *Index) FuzzySearch(value string, threshold float64) []models.ValueMatch {
	q := indexKey(value)
	if q == "" {
		return nil
	}
	qLen := utf8.RuneCountInString(q)

	type hit struct {
		match     models.ValueMatch
		variation string
		seq       int
	}
	var hits []hit

	for _, n := range ix.lengths {
		if lengthBound(qLen, n) < threshold {
			continue
		}
		for _, k := range ix.keysByLength[n] {
			score := Similarity(q, k)
			if score < threshold {
				continue
			}
			for _, entry := range ix.resolveKeys(ix.inverted[k]) {
				hits = append(hits, hit{
					match:     models.ValueMatch{Entry: entry, Score: score, MatchType: models.MatchTypeFuzzy},
					variation: k,
					seq:       len(hits),
				})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].match.Score != hits[j].match.Score {
			return hits[i].match.Score > hits[j].match.Score
		}
		if hits[i].variation != hits[j].variation {
			return hits[i].variation < hits[j].variation
		}
		return hits[i].seq < hits[j].seq
	})

	out := make([]models.ValueMatch, len(hits))
	for i, h := range hits {
		out[i] = h.match
	}
	return out
}

// Get returns the entry stored for table.column=value.
func (ix *Index) Get(table, column, value string) (models.ValueEntry, bool) {
	e, ok := ix.entries[models.EntryKey{Table: table, Column: column, CanonicalValue: value}]
	return e, ok
}

// GetByKey returns the entry for key.
func (ix *Index) GetByKey(key models.EntryKey) (models.ValueEntry, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

// ByCanonical returns every entry whose canonical value equals value, ignoring case.
func (ix *Index) ByCanonical(value string) []models.ValueEntry {
	return ix.resolveKeys(ix.canonical[strings.ToLower(value)])
}

// HasCanonical reports whether value is stored as a canonical value anywhere.
func (ix *Index) HasCanonical(value string) bool {
	return len(ix.canonical[strings.ToLower(value)]) > 0
}

// Entries returns all entries in insertion order.
func (ix *Index) Entries() []models.ValueEntry {
	out := make([]models.ValueEntry, 0, len(ix.order))
	for _, k := range ix.order {
		out = append(out, ix.entries[k])
	}
	return out
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.order)
}

// VariationCount returns the number of distinct inverted-index keys.
func (ix *Index) VariationCount() int {
	return len(ix.inverted)
}

// Stats returns diagnostic counts.
func (ix *Index) Stats() Stats {
	stats := Stats{
		Entries:      len(ix.order),
		Variations:   len(ix.inverted),
		ByEntityType: make(map[string]int),
		ByLocation:   make(map[string]int),
	}
	for _, keys := range ix.inverted {
		stats.Postings += len(keys)
		if len(ix.resolveKeys(keys)) > 1 {
			stats.AmbiguousKeys++
		}
	}
	for _, k := range ix.order {
		e := ix.entries[k]
		stats.ByEntityType[e.EntityType.String()]++
		stats.ByLocation[e.Location()]++
	}
	return stats
}

// Validate checks that every inverted-index posting points at an existing
// entry whose variations contain the key.
func (ix *Index) Validate() error {
	for k, keys := range ix.inverted {
		if len(keys) == 0 {
			return fmt.Errorf("%w: variation %q has no postings", apperrors.ErrCorruptIndex, k)
		}
		for _, ek := range keys {
			entry, ok := ix.entries[ek]
			if !ok {
				return fmt.Errorf("%w: variation %q points at missing entry %s", apperrors.ErrCorruptIndex, k, ek)
			}
			if !hasNormalizedVariation(entry, k) {
				return fmt.Errorf("%w: entry %s does not carry variation %q", apperrors.ErrCorruptIndex, ek, k)
			}
		}
	}
	return nil
}

func hasNormalizedVariation(entry models.ValueEntry, k string) bool {
	for _, v := range entry.Variations {
		if indexKey(v) == k {
			return true
		}
	}
	return false
}

// resolveKeys maps postings to entries, dropping repeats.
func (ix *Index) resolveKeys(keys []models.EntryKey) []models.ValueEntry {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[models.EntryKey]bool, len(keys))
	out := make([]models.ValueEntry, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		if e, ok := ix.entries[k]; ok {
			out = append(out, e)
		}
	}
	return out
}
