package preferences

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EntityPlaceholder replaces proper-noun-like spans in a query shape.
const EntityPlaceholder = "<entity>"

var possessivePattern = regexp.MustCompile(`(?i)['’]s$`)

// QueryShape reduces query to its structure: the mention and every
// proper-noun-like token (capitalized mid-sentence, or an all-caps code)
// become EntityPlaceholder, everything else is lower-cased, punctuation is
// dropped and runs of placeholders collapse to one.
//
//	QueryShape("What is LBG's revenue?", "LBG") == "what is <entity> revenue"
func QueryShape(query, mention string) string {
	if m := strings.TrimSpace(mention); m != "" {
		query = replaceMention(query, m)
	}

	var out []string
	sentenceStart := true
	for _, raw := range strings.Fields(query) {
		endsSentence := strings.ContainsAny(raw[len(raw)-1:], ".?!")
		token := strings.TrimFunc(raw, func(r rune) bool {
			return unicode.IsPunct(r) && r != '<' && r != '>' && r != '\'' && r != '’'
		})
		token = possessivePattern.ReplaceAllString(token, "")
		token = strings.Trim(token, "'’")

		switch {
		case token == "":
		case token == EntityPlaceholder || isProperNounLike(token, sentenceStart):
			if len(out) == 0 || out[len(out)-1] != EntityPlaceholder {
				out = append(out, EntityPlaceholder)
			}
		default:
			out = append(out, strings.ToLower(token))
		}
		sentenceStart = endsSentence
	}
	return strings.Join(out, " ")
}

// replaceMention replaces every case-insensitive, whole-word occurrence of
// mention in query with the placeholder. "LA" matches in "LA's" but not in
// "last".
func replaceMention(query, mention string) string {
	var b strings.Builder
	n, last := len(mention), 0
	for i := 0; i+n <= len(query); {
		if strings.EqualFold(query[i:i+n], mention) && wordBounded(query, i, i+n) {
			b.WriteString(query[last:i])
			b.WriteString(" " + EntityPlaceholder + " ")
			i += n
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(query[i:])
		i += size
	}
	b.WriteString(query[last:])
	return b.String()
}

// wordBounded reports whether s[start:end] is not glued to a letter or digit
// on either side.
func wordBounded(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isProperNounLike(token string, sentenceStart bool) bool {
	first, _ := utf8.DecodeRuneInString(token)
	if !unicode.IsUpper(first) || token == "I" {
		return false
	}
	if isAllCaps(token) {
		return true
	}
	return !sentenceStart
}

func isAllCaps(token string) bool {
	letters := 0
	for _, r := range token {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}
