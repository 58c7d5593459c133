package correction

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

const defaultExcerptRunes = 160

var firstNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// Corrector applies matched rules to a paragraph and renders change markers.
type Corrector struct {
	excerptRunes int
	loose        sync.Map // canonical term -> *regexp.Regexp
}

func NewCorrector() *Corrector {
	return &Corrector{excerptRunes: defaultExcerptRunes}
}

type edit struct {
	start, end  int
	replacement string
	ruleID      string
	confidence  float64
}

// Apply produces the correction for one paragraph. Edits only touch the match
// window; overlapping edits keep the higher-confidence one. When nothing
// changes the matches are still returned for auditing.
func (c *Corrector) Apply(p domain.ParagraphUnit, matches []domain.Match, set *rules.RuleSet) domain.CorrectionResult {
	result := domain.CorrectionResult{
		ParagraphIndex: p.Index,
		Section:        p.Section,
		OriginalText:   p.Text,
		CorrectedText:  p.Text,
		Truncated:      p.Truncated,
		Status:         domain.ParagraphProcessed,
		AppliedRules:   []domain.AppliedRule{},
		Matches:        append([]domain.Match{}, matches...),
	}

	limit := len(p.Window())
	if limit > len(p.Text) || !strings.HasPrefix(p.Text, p.Window()) {
		limit = len(p.Text)
	}
	scope := p.Text[:limit]

	var candidates []edit
	for _, m := range matches {
		rule, ok := set.Rule(m.RuleID)
		if !ok {
			continue
		}
		for _, e := range c.propose(rule, scope, set) {
			e.ruleID, e.confidence = rule.ID, m.Confidence
			candidates = append(candidates, e)
		}
	}
	accepted := resolveOverlaps(p.Index, candidates)
	if len(accepted) == 0 {
		return result
	}

	var b strings.Builder
	last := 0
	changes := make(map[string]int, len(accepted))
	for _, e := range accepted {
		b.WriteString(p.Text[last:e.start])
		b.WriteString(FormatMarker(e.ruleID, e.confidence, p.Text[e.start:e.end], e.replacement))
		last = e.end
		changes[e.ruleID]++
	}
	b.WriteString(p.Text[last:])
	corrected := b.String()
	if StripMarkers(corrected) == p.Text {
		return result
	}

	result.CorrectedText = corrected
	result.Changed = true
	for _, m := range matches {
		n := changes[m.RuleID]
		if n == 0 {
			continue
		}
		rule, _ := set.Rule(m.RuleID)
		result.AppliedRules = append(result.AppliedRules, domain.AppliedRule{
			RuleID:     rule.ID,
			Excerpt:    rule.Excerpt(c.excerptRunes),
			Type:       rule.Type,
			Category:   rule.Category,
			Section:    rule.Section,
			Examples:   rule.Examples,
			Confidence: m.Confidence,
			Changes:    n,
		})
		delete(changes, m.RuleID)
	}
	return result
}

func (c *Corrector) propose(rule domain.Rule, scope string, set *rules.RuleSet) []edit {
	switch rule.Type {
	case domain.RuleTypeDirect, domain.RuleTypeContext:
		if rule.Pattern == "" || rule.Replacement == "" {
			return c.proposeCanonical(rule.Canonical, scope)
		}
		return proposeDirect(rule, scope)
	case domain.RuleTypePattern:
		return proposePattern(set.Pattern(rule.ID), rule.Replacement, scope)
	case domain.RuleTypeMulti:
		if rule.Pattern == "" {
			return c.proposeCanonical(rule.Canonical, scope)
		}
		return proposeMulti(rule, scope)
	case domain.RuleTypeCase:
		return proposeCase(rule, scope)
	default:
		return nil
	}
}

func proposeDirect(rule domain.Rule, scope string) []edit {
	if rule.Pattern == "" || rule.Replacement == "" {
		return nil
	}
	var out []edit
	for _, span := range literalSpans(scope, rule.Pattern) {
		original := scope[span[0]:span[1]]
		replacement := matchLeadingCase(original, rule.Replacement)
		if replacement != original {
			out = append(out, edit{start: span[0], end: span[1], replacement: replacement})
		}
	}
	return out
}

// proposePattern expands $1 style groups and the <num> placeholder, which
// stands for the first number inside the matched span.
func proposePattern(re *regexp.Regexp, template, scope string) []edit {
	if re == nil {
		return nil
	}
	var out []edit
	for _, loc := range re.FindAllStringSubmatchIndex(scope, -1) {
		if loc[1] == loc[0] {
			continue
		}
		original := scope[loc[0]:loc[1]]
		tmpl := template
		if strings.Contains(tmpl, "<num>") {
			num := firstNumber.FindString(original)
			if num == "" {
				continue
			}
			tmpl = strings.ReplaceAll(tmpl, "<num>", num)
		}
		replacement := string(re.ExpandString(nil, tmpl, scope, loc))
		if replacement != original {
			out = append(out, edit{start: loc[0], end: loc[1], replacement: replacement})
		}
	}
	return out
}

// proposeCanonical rewrites loose spellings of lexicon terms, such as
// "daiichi  sankyo" or "her2", to their canonical form.
func (c *Corrector) proposeCanonical(terms []string, scope string) []edit {
	var out []edit
	for _, term := range terms {
		re := c.loosePattern(term)
		if re == nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(scope, -1) {
			if loc[1] == loc[0] || gluedBefore(scope, loc[0]) || gluedAfter(scope, loc[1]) {
				continue
			}
			if scope[loc[0]:loc[1]] != term {
				out = append(out, edit{start: loc[0], end: loc[1], replacement: term})
			}
		}
	}
	return out
}

// loosePattern matches term ignoring case and spacing, with its periods,
// commas and hyphens optional.
func (c *Corrector) loosePattern(term string) *regexp.Regexp {
	if cached, ok := c.loose.Load(term); ok {
		return cached.(*regexp.Regexp)
	}
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("(?i)")
	for n, word := range words {
		if n > 0 {
			b.WriteString(`\s+`)
		}
		for _, r := range word {
			b.WriteString(regexp.QuoteMeta(string(r)))
			if r == '.' || r == ',' || r == '-' {
				b.WriteString("?")
			}
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	c.loose.Store(term, re)
	return re
}

// proposeMulti replaces each occurrence of the rule's pattern with the example
// closest in edit distance; the first example wins ties. Lexicon terms stand
// in when the rule lists no examples.
func proposeMulti(rule domain.Rule, scope string) []edit {
	candidates := rule.Examples
	if len(candidates) == 0 {
		candidates = rule.Canonical
	}
	if rule.Pattern == "" || len(candidates) == 0 {
		return nil
	}
	var out []edit
	for _, span := range literalSpans(scope, rule.Pattern) {
		original := scope[span[0]:span[1]]
		best, bestDist := "", -1
		for _, example := range candidates {
			d := levenshtein.ComputeDistance(original, example)
			if bestDist < 0 || d < bestDist {
				best, bestDist = example, d
			}
		}
		if best != "" && best != original {
			out = append(out, edit{start: span[0], end: span[1], replacement: best})
		}
	}
	return out
}

// proposeCase only ever changes letter casing: a span qualifies when it equals
// a canonical form ignoring case. Canonical forms come from the rule's
// examples and replacement, then from its lexicon terms.
func proposeCase(rule domain.Rule, scope string) []edit {
	targets := append([]string{}, rule.Examples...)
	if rule.Replacement != "" {
		targets = append(targets, rule.Replacement)
	}
	targets = append(targets, rule.Canonical...)
	var out []edit
	for _, target := range targets {
		for _, span := range literalSpans(scope, target) {
			original := scope[span[0]:span[1]]
			if original == target || !SameIgnoringCase(original, target) {
				continue
			}
			out = append(out, edit{start: span[0], end: span[1], replacement: target})
		}
	}
	return out
}

// SameIgnoringCase reports whether a and b differ at most in letter casing.
func SameIgnoringCase(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if unicode.ToLower(ra[i]) != unicode.ToLower(rb[i]) {
			return false
		}
	}
	return true
}

// literalSpans finds case-insensitive occurrences of term that are not glued
// to surrounding letters or digits.
func literalSpans(text, term string) [][2]int {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(term))
	if err != nil {
		return nil
	}
	var out [][2]int
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if gluedBefore(text, loc[0]) || gluedAfter(text, loc[1]) {
			continue
		}
		out = append(out, [2]int{loc[0], loc[1]})
	}
	return out
}

func gluedBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	first, _ := utf8.DecodeRuneInString(text[i:])
	return isWordRune(prev) && isWordRune(first)
}

func gluedAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[i:])
	last, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWordRune(next) && isWordRune(last)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// matchLeadingCase capitalises the replacement when it substitutes a
// capitalised, not fully upper-case span.
func matchLeadingCase(original, replacement string) string {
	first, _ := utf8.DecodeRuneInString(original)
	repFirst, size := utf8.DecodeRuneInString(replacement)
	if !unicode.IsUpper(first) || !unicode.IsLower(repFirst) || strings.ToUpper(original) == original {
		return replacement
	}
	return string(unicode.ToUpper(repFirst)) + replacement[size:]
}

// resolveOverlaps keeps the higher-confidence edit of any overlapping pair,
// then the earlier start, then the lower rule id. Accepted edits come back in
// source order.
func resolveOverlaps(paragraphIndex int, candidates []edit) []edit {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.ruleID < b.ruleID
	})

	accepted := make([]edit, 0, len(candidates))
	for _, cand := range candidates {
		overlap := false
		for _, kept := range accepted {
			if cand.start < kept.end && kept.start < cand.end {
				overlap = true
				slog.Debug("overlapping_change_dropped",
					"paragraph_index", paragraphIndex,
					"rule_id", cand.ruleID,
					"kept_rule_id", kept.ruleID,
					"start", cand.start,
					"end", cand.end,
				)
				break
			}
		}
		if !overlap {
			accepted = append(accepted, cand)
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}
