package rules

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "are": {}, "was": {},
	"were": {}, "has": {}, "have": {}, "been": {}, "from": {}, "into": {}, "their": {}, "there": {},
	"they": {}, "them": {}, "its": {}, "any": {}, "all": {}, "not": {}, "but": {}, "which": {},
	"when": {}, "unless": {}, "except": {}, "only": {}, "should": {}, "must": {}, "may": {},
	"can": {}, "will": {}, "use": {}, "used": {}, "being": {}, "such": {}, "other": {},
}

// ContentTerms returns up to limit distinct lowercase words of three or more
// letters, skipping common function words, in order of first appearance.
func ContentTerms(text string, limit int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 3 {
			continue
		}
		if _, skip := stopWords[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ContainsTerm reports whether text contains term as a whole word, ignoring case.
func ContainsTerm(text, term string) bool {
	lower := strings.ToLower(text)
	term = strings.ToLower(term)
	for from := 0; ; {
		idx := strings.Index(lower[from:], term)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(term)
		if isBoundary(lower, start-1) && isBoundary(lower, end) {
			return true
		}
		from = start + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := rune(s[i])
	return !unicode.IsLetter(c) && !unicode.IsDigit(c)
}
