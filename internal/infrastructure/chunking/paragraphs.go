package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\p{Lu}.*)$`)
	labelHeading    = regexp.MustCompile(`^(\p{Lu}[^\p{Ll}]{2,60}?)\s*:$`)
)

const maxHeadingWords = 10

// HeadingTitle reports whether a single line is a section heading and returns
// its title. Markdown headings, numbered titles without terminal punctuation,
// "LABEL:" lines and short all-caps lines are recognised.
func HeadingTitle(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		title := strings.TrimSpace(m[2])
		if len(strings.Fields(title)) <= maxHeadingWords && !strings.ContainsAny(title[len(title)-1:], ".!?;,:") {
			return m[1] + " " + title, true
		}
		return "", false
	}
	if m := labelHeading.FindStringSubmatch(line); m != nil && len(strings.Fields(m[1])) <= maxHeadingWords {
		return strings.TrimSpace(m[1]), true
	}
	if isAllCapsTitle(line) {
		return line, true
	}
	return "", false
}

// HeadingAt reports whether lines[i] is a heading where it stands. Markdown
// headings count anywhere. Other forms count only where a paragraph can start:
// at the top, after a blank line or another heading, or after a line ending in
// terminal punctuation when the next line does not continue in lowercase.
func HeadingAt(lines []string, i int) (string, bool) {
	line := strings.TrimSpace(lines[i])
	title, ok := HeadingTitle(line)
	if !ok {
		return "", false
	}
	if i == 0 || markdownHeading.MatchString(line) {
		return title, true
	}
	prev := strings.TrimSpace(lines[i-1])
	if prev == "" {
		return title, true
	}
	if _, ok := HeadingAt(lines, i-1); ok {
		return title, true
	}
	if !endsSentence(prev) || continuesLowercase(lines, i+1) {
		return "", false
	}
	return title, true
}

func endsSentence(line string) bool {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimRight(line, `"”')]`))
	return strings.ContainsRune(".!?:", r)
}

func continuesLowercase(lines []string, i int) bool {
	if i >= len(lines) {
		return false
	}
	for _, r := range strings.TrimSpace(lines[i]) {
		return unicode.IsLower(r)
	}
	return false
}

func isAllCapsTitle(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 3 {
		return false
	}
	last := []rune(line)
	return !strings.ContainsRune(".!?;,", last[len(last)-1])
}

// SplitParagraphs turns ingested units into ordered paragraphs. A paragraph is
// a maximal run of non-blank, non-heading lines; headings relabel the section
// of the paragraphs that follow them. Wrapped lines inside a paragraph are
// never taken for headings, see HeadingAt. Indexes are contiguous across units.
func (s *Splitter) SplitParagraphs(units []domain.SourceUnit) []domain.ParagraphUnit {
	out := make([]domain.ParagraphUnit, 0, len(units))
	for _, unit := range units {
		section := strings.TrimSpace(unit.Section)
		var lines []string
		emit := func() {
			text := strings.TrimSpace(strings.Join(lines, " "))
			lines = lines[:0]
			if text == "" {
				return
			}
			window, truncated := s.capText(text)
			out = append(out, domain.ParagraphUnit{
				Index:     len(out),
				Section:   section,
				Text:      text,
				MatchText: window,
				Truncated: truncated,
			})
		}

		text := strings.ReplaceAll(unit.Text, "\r\n", "\n")
		all := strings.Split(text, "\n")
		for i, line := range all {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				emit()
				continue
			}
			if title, ok := HeadingAt(all, i); ok {
				emit()
				section = title
				continue
			}
			lines = append(lines, trimmed)
		}
		emit()
	}
	return out
}
