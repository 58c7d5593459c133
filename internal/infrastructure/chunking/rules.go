package chunking

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

var (
	bulletLine  = regexp.MustCompile(`^\s*(?:[-•*–]|\d{1,2}[.)]|[a-z][.)])\s+\S`)
	bulletStrip = regexp.MustCompile(`^\s*(?:[-•*–]|\d{1,2}[.)]|[a-z][.)])\s+`)
	blankLines  = regexp.MustCompile(`\n\s*\n`)
)

var abbreviations = map[string]struct{}{
	"e.g.": {}, "i.e.": {}, "etc.": {}, "vs.": {}, "cf.": {}, "approx.": {}, "dr.": {},
	"mr.": {}, "mrs.": {}, "ms.": {}, "prof.": {}, "fig.": {}, "figs.": {}, "no.": {},
	"nos.": {}, "vol.": {}, "p.": {}, "pp.": {}, "sec.": {}, "ch.": {}, "al.": {},
	"inc.": {}, "ltd.": {}, "co.": {}, "jan.": {}, "feb.": {}, "mar.": {}, "apr.": {},
	"jun.": {}, "jul.": {}, "aug.": {}, "sep.": {}, "sept.": {}, "oct.": {}, "nov.": {},
	"dec.": {}, "min.": {}, "max.": {}, "ref.": {}, "refs.": {}, "tab.": {}, "incl.": {},
}

// SplitRules splits a style-guide text into rule-sized candidates. Sub-items of
// a sentence ending in ":" stay attached to it with their markers, short units
// merge forward and anything above MaxChars is truncated.
func (s *Splitter) SplitRules(text string) []domain.TextChunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	units := make([]string, 0, 16)
	for _, block := range blankLines.Split(text, -1) {
		units = append(units, s.blockUnits(block)...)
	}
	units = s.mergeShort(units)

	out := make([]domain.TextChunk, 0, len(units))
	for _, unit := range units {
		capped, truncated := s.capText(unit)
		if strings.TrimSpace(capped) == "" {
			continue
		}
		out = append(out, domain.TextChunk{Text: capped, Truncated: truncated})
	}
	return out
}

func (s *Splitter) blockUnits(block string) []string {
	var (
		units     []string
		prose     []string
		governing = -1
	)
	flush := func() {
		if len(prose) == 0 {
			return
		}
		sentences := SplitSentences(strings.Join(prose, " "))
		prose = prose[:0]
		if len(sentences) == 0 {
			return
		}
		units = append(units, sentences...)
		governing = -1
		if strings.HasSuffix(sentences[len(sentences)-1], ":") {
			governing = len(units) - 1
		}
	}

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !bulletLine.MatchString(line) {
			if len(prose) == 0 {
				governing = -1
			}
			prose = append(prose, trimmed)
			continue
		}
		flush()
		if governing >= 0 {
			units[governing] += "\n" + trimmed
			continue
		}
		units = append(units, strings.TrimSpace(bulletStrip.ReplaceAllString(line, "")))
	}
	flush()
	return units
}

// mergeShort folds units shorter than MinChars into the next unit, or into the
// previous one when the short unit is last.
func (s *Splitter) mergeShort(units []string) []string {
	out := make([]string, 0, len(units))
	pending := ""
	for _, unit := range units {
		unit = strings.TrimSpace(unit)
		if unit == "" {
			continue
		}
		if pending != "" {
			unit = pending + " " + unit
			pending = ""
		}
		if runeLen(unit) < s.MinChars {
			pending = unit
			continue
		}
		out = append(out, unit)
	}
	if pending != "" {
		if len(out) == 0 {
			return []string{pending}
		}
		out[len(out)-1] += " " + pending
	}
	return out
}

// SplitSentences splits on terminal punctuation followed by whitespace and an
// uppercase letter. Parenthesised, bracketed and quoted spans are never split,
// and neither are known abbreviations, initials or leading list numerals. Only
// balanced quotes on one line form a quoted span.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var (
		out     []string
		start   int
		depth   int
		inQuote bool
		toggles = quoteToggles(runes)
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '(', '[':
			depth++
			continue
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '"', '“', '”':
			if toggles[i] {
				inQuote = !inQuote
			}
		}
		if depth > 0 || inQuote {
			continue
		}
		if !isTerminal(r) && !(isCloser(r) && i > 0 && isTerminal(runes[i-1])) {
			continue
		}
		if !startsSentence(runes, i+1) {
			continue
		}
		if isTerminal(r) && r == '.' && protectedPeriod(runes, start, i) {
			continue
		}
		out = appendSentence(out, runes[start:i+1])
		start = i + 1
	}
	return appendSentence(out, runes[start:])
}

// quoteToggles marks the quote characters that open or close a quoted span.
// Pairs never cross a line break, a straight quote right after a digit is an
// inch or seconds mark, and a quote left without a partner is plain text.
func quoteToggles(runes []rune) []bool {
	toggles := make([]bool, len(runes))
	open := -1
	for i, r := range runes {
		switch r {
		case '\n':
			open = -1
		case '“':
			open = i
		case '"', '”':
			if r == '"' && i > 0 && unicode.IsDigit(runes[i-1]) {
				continue
			}
			if open >= 0 {
				toggles[open], toggles[i] = true, true
				open = -1
			} else if r == '"' {
				open = i
			}
		}
	}
	return toggles
}

func appendSentence(out []string, runes []rune) []string {
	if sentence := strings.TrimSpace(string(runes)); sentence != "" {
		out = append(out, sentence)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	return r == '"' || r == '”' || r == ')' || r == ']'
}

// startsSentence reports whether runes[i:] is whitespace followed by an uppercase letter.
func startsSentence(runes []rune, i int) bool {
	if i >= len(runes) || !unicode.IsSpace(runes[i]) {
		return false
	}
	for ; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		r := runes[i]
		if r == '"' || r == '“' || r == '(' {
			continue
		}
		return unicode.IsUpper(r)
	}
	return false
}

func protectedPeriod(runes []rune, start, i int) bool {
	for start < i && unicode.IsSpace(runes[start]) {
		start++
	}
	wordStart := i
	for wordStart > start && !unicode.IsSpace(runes[wordStart-1]) {
		wordStart--
	}
	word := string(runes[wordStart : i+1])
	if _, ok := abbreviations[strings.ToLower(strings.TrimLeft(word, "(\"“"))]; ok {
		return true
	}
	body := []rune(strings.TrimSuffix(word, "."))
	if len(body) == 1 && unicode.IsUpper(body[0]) {
		return true
	}
	if wordStart == start && len(body) > 0 && len(body) <= 2 && allDigits(body) {
		return true
	}
	return false
}

func allDigits(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
