// Package variations generates the textual forms a canonical database value
// may take in a natural-language question.
package variations

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are company-form words that are dropped to find a base name
// and re-attached to generate suffixed variants.
var legalSuffixes = []string{
	"Inc", "Inc.", "Corp", "Corp.", "Corporation",
	"Ltd", "Ltd.", "Limited", "LLC", "LLP",
	"PLC", "plc", "Group", "Holdings",
	"Co", "Co.", "Company",
}

// stopWords never contribute a letter to an acronym.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "&": true, "at": true, "by": true,
	"for": true, "in": true, "of": true, "on": true, "the": true, "to": true,
}

var (
	ampersandPattern = regexp.MustCompile(`\s+&\s+`)
	andPattern       = regexp.MustCompile(`(?i)\s+and\s+`)
)

// IsLegalSuffix reports whether word is a known legal suffix, ignoring case
// and a trailing comma.
func IsLegalSuffix(word string) bool {
	word = strings.TrimRight(word, ",")
	for _, s := range legalSuffixes {
		if strings.EqualFold(word, s) {
			return true
		}
	}
	return false
}

// IsStopWord reports whether word is excluded from acronyms.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// Words splits a value into whitespace-separated tokens.
func Words(value string) []string {
	return strings.Fields(value)
}

// NormalizeSpace trims the value and collapses internal whitespace runs.
func NormalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// StripSuffixes removes trailing legal suffixes ("Acme Holdings, Ltd." -> "Acme").
// A value is never reduced to nothing: the first word always survives.
func StripSuffixes(value string) string {
	words := Words(value)
	for len(words) > 1 && IsLegalSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
		words[len(words)-1] = strings.TrimRight(words[len(words)-1], ",")
	}
	return strings.Join(words, " ")
}

// Acronym builds an upper-case acronym from the first letter or digit of each
// non-stop word. Returns "" for single-word values or when fewer than two
// letters would be produced.
func Acronym(value string) string {
	words := Words(value)
	if len(words) < 2 {
		return ""
	}

	var b strings.Builder
	n := 0
	for _, w := range words {
		if IsStopWord(w) {
			continue
		}
		r, ok := firstAlnum(w)
		if !ok {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		n++
	}
	if n < 2 {
		return ""
	}
	return b.String()
}

// Initials returns the acronym letters of every non-stop word of value,
// including single-word values. Used to align short codes against values.
func Initials(value string) string {
	var b strings.Builder
	for _, w := range Words(value) {
		if IsStopWord(w) {
			continue
		}
		if r, ok := firstAlnum(w); ok {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Fold strips diacritics ("Société Générale" -> "Societe Generale").
func Fold(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

// Normalize canonicalizes a value for comparison: whitespace-collapsed,
// suffix-stripped, diacritic-folded and lower-cased.
func Normalize(value string) string {
	return strings.ToLower(Fold(StripSuffixes(NormalizeSpace(value))))
}

// Generate returns every textual form value might appear as, sorted and
// de-duplicated. The output depends only on the input.
func Generate(value string) []string {
	v := NormalizeSpace(value)
	if v == "" {
		return nil
	}

	set := make(map[string]struct{})
	add := func(s string) {
		s = NormalizeSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}

	base := StripSuffixes(v)
	for _, s := range []string{v, base} {
		add(s)
		add(strings.ToUpper(s))
		add(strings.ToLower(s))
	}

	words := Words(v)
	if len(words) > 1 {
		add(Acronym(v))
		if base != v {
			add(Acronym(base))
		}

		first := trimPunct(words[0])
		if utf8.RuneCountInString(first) > 2 {
			add(first)
		}
		add(trimPunct(words[0] + " " + words[1]))

		last := words[len(words)-1]
		if !IsLegalSuffix(last) {
			add(trimPunct(last))
		}
		if len(words) > 2 {
			add(trimPunct(words[len(words)-2] + " " + last))
		}
	}

	for _, suffix := range legalSuffixes {
		add(base + " " + suffix)
		add(base + suffix)
	}

	for _, s := range []string{v, base} {
		if ampersandPattern.MatchString(s) {
			add(ampersandPattern.ReplaceAllString(s, " and "))
		}
		if andPattern.MatchString(s) {
			add(andPattern.ReplaceAllString(s, " & "))
		}
		if folded := Fold(s); folded != s {
			add(folded)
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func firstAlnum(word string) (rune, bool) {
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r, true
		}
	}
	return 0, false
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ':' || r == '(' || r == ')'
	})
}
