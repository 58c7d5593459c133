package chunking

import (
	"strings"
	"unicode"
)

// Splitter chunks style guides into rule candidates and CSR documents into
// paragraphs. It keeps no state between calls.
type Splitter struct {
	MinChars int
	MaxChars int
}

func NewSplitter(minChars, maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = 2000
	}
	if minChars < 0 {
		minChars = 0
	}
	if minChars >= maxChars {
		minChars = maxChars / 4
	}
	return &Splitter{
		MinChars: minChars,
		MaxChars: maxChars,
	}
}

// capText cuts text above MaxChars runes at the last word boundary before the cap.
func (s *Splitter) capText(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= s.MaxChars {
		return text, false
	}
	cut := s.MaxChars
	for i := s.MaxChars; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])), true
}

func runeLen(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
