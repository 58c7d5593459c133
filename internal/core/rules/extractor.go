package rules

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

var categoryKeywords = map[domain.RuleCategory][]string{
	domain.CategoryStructure:     {"section", "heading", "table", "figure", "appendix", "layout", "title", "listing", "synopsis"},
	domain.CategoryNumbers:       {"number", "numeral", "digit", "measurement", "range", "value", "unit", "decimal", "percent", "dose"},
	domain.CategoryDomain:        {"medical", "drug", "company", "clinical", "disease", "patient", "subject", "adverse", "trial", "investigator", "treatment"},
	domain.CategoryFormatting:    {"capital", "space", "hyphen", "indent", "font", "bold", "italic", "uppercase", "lowercase", "format"},
	domain.CategoryPunctuation:   {"comma", "period", "colon", "semicolon", "apostrophe", "quotation", "dash", "parenthes"},
	domain.CategoryGrammar:       {"tense", "verb", "sentence", "plural", "singular", "voice", "noun", "agreement"},
	domain.CategoryAbbreviations: {"abbreviat", "acronym", "spell out", "spelled out", "short form"},
	domain.CategoryReferences:    {"reference", "citation", "cite", "source", "bibliography", "literature"},
}

var caseKeywords = []string{"capitaliz", "capitalis", "uppercase", "upper case", "lowercase", "lower case", "title case", "sentence case", "case-sensitive"}

var multiKeywords = []string{"acceptable", "either", "one of", "alternatively"}

const quoteChars = "\"'“”‘’`"

var (
	quotedSubstitution = regexp.MustCompile(`["“'‘]([^"”'’]+)["”'’]\s*(?:→|->|=>|should be written as|should be|must be|becomes|changes to|is written as)\s*["“'‘]([^"”'’]+)["”'’]`)
	useInsteadQuoted   = regexp.MustCompile(`(?i)\buse\s+["“'‘]([^"”'’]+)["”'’]\s+(?:instead of|rather than|not)\s+["“'‘]([^"”'’]+)["”'’]`)
	useInstead         = regexp.MustCompile(`(?i)\buse\s+([^;,.]+?)\s+(?:instead of|rather than|not)\s+([^;,]+?)(?:\s+(?:when|if|unless|except)\b|\s*[.;,)]|$)`)
	replaceWithQuoted  = regexp.MustCompile(`(?i)\breplace\s+["“'‘]([^"”'’]+)["”'’]\s+(?:with|by)\s+["“'‘]([^"”'’]+)["”'’]`)
	replaceWith        = regexp.MustCompile(`(?i)\breplace\s+([^;,.]+?)\s+(?:with|by)\s+([^;,]+?)(?:\s+(?:when|if|unless|except)\b|\s*[.;,)]|$)`)
	writtenAs          = regexp.MustCompile(`(?i)^(?:the\s+(?:term|word|phrase)\s+)?["“'‘]?([^"”'’]{1,60}?)["”'’]?\s+(?:should|must)\s+be\s+(?:written|spelled|abbreviated|expressed|presented|given|shown)\s+as\s+["“'‘]?([^"”'’;]+?)["”'’]?\s*(?:[.;,]|$)`)
	arrowSubstitution  = regexp.MustCompile(`(\S+(?:\s\S+){0,3})\s*(?:→|->|=>)\s*(\S+(?:\s\S+){0,3})`)
	becomes            = regexp.MustCompile(`(?i)(\S+(?:\s\S+){0,3})\s+(?:becomes|changes to)\s+(\S+(?:\s\S+){0,3})`)

	exampleMarker = regexp.MustCompile(`(?i)(?:\be\.\s?g\.|\bfor example|\bfor instance|\bsuch as|\bexamples?:)\s*[,:]?\s*([^)\n]+)`)
	listItem      = regexp.MustCompile(`^\s*(?:[-•*–]|\d{1,2}[.)]|[a-z][.)])\s+(.+)$`)
	exampleSplit  = regexp.MustCompile(`\s*(?:,|;|\bor\b|\band\b)\s*`)

	alternativeSplit = regexp.MustCompile(`\s+or\s+|\s+/\s+`)

	conditionClause = regexp.MustCompile(`(?i)\b(except when|except in|except|unless|when|if|only in|in the context of)\s+([^,.;:]+)`)
)

// Extractor turns a style-guide chunk into a classified rule.
type Extractor struct {
	minExampleRunes int
	maxExampleRunes int
	lexicon         Lexicon
}

func NewExtractor() *Extractor {
	return &Extractor{
		minExampleRunes: 1,
		maxExampleRunes: 60,
		lexicon:         DefaultLexicon(),
	}
}

// WithLexicon replaces the canonical-terms lexicon.
func (e *Extractor) WithLexicon(lexicon Lexicon) *Extractor {
	if lexicon != nil {
		e.lexicon = lexicon
	}
	return e
}

// Extract classifies one chunk. Chunks carrying no rule signal at all return
// ErrRuleExtractionFailed so the caller can drop them with a warning.
func (e *Extractor) Extract(id, section, text string) (domain.Rule, error) {
	description := strings.Join(strings.Fields(text), " ")
	if description == "" {
		return domain.Rule{}, domain.WrapError(domain.ErrRuleExtractionFailed, "extract rule", errors.New("empty chunk"))
	}

	examples := e.extractExamples(text, description)
	pattern, replacement := extractSubstitution(description)
	condition := extractCondition(description)
	category, score := classifyCategory(description, section, pattern)

	if score == 0 && pattern == "" && len(examples) == 0 {
		return domain.Rule{}, domain.WrapError(domain.ErrRuleExtractionFailed, "extract rule", errors.New("no rule signal in chunk"))
	}

	ruleType := determineType(description, pattern, replacement, examples, condition)
	if ruleType == domain.RuleTypePattern {
		if _, err := regexp.Compile(pattern); err != nil {
			return domain.Rule{}, domain.WrapError(domain.ErrRuleExtractionFailed, "compile pattern", err)
		}
	}
	if ruleType == domain.RuleTypeMulti && len(examples) < 2 {
		examples = appendUnique(examples, splitAlternatives(replacement)...)
	}
	if ruleType == domain.RuleTypeContext && condition.Kind == domain.ConditionNone {
		condition.Kind = domain.ConditionWhen
	}

	rule := domain.Rule{
		ID:          id,
		Category:    category,
		Type:        ruleType,
		Description: description,
		Section:     strings.TrimSpace(section),
		Pattern:     pattern,
		Replacement: replacement,
		Examples:    examples,
		Condition:   condition,
	}
	if lacksTargets(rule) {
		rule.Canonical = e.lexicon.Terms(rule)
	}
	return rule, nil
}

// lacksTargets reports whether the rule text names nothing the corrector
// could act on for its type.
func lacksTargets(rule domain.Rule) bool {
	switch rule.Type {
	case domain.RuleTypeCase, domain.RuleTypeMulti:
		return len(rule.Examples) == 0 && rule.Replacement == ""
	case domain.RuleTypeDirect, domain.RuleTypeContext:
		return rule.Pattern == "" || rule.Replacement == ""
	default:
		return false
	}
}

func (e *Extractor) extractExamples(raw, description string) []string {
	examples := make([]string, 0, 4)
	for _, m := range exampleMarker.FindAllStringSubmatch(description, -1) {
		body := m[1]
		if cut := strings.Index(body, ". "); cut >= 0 {
			body = body[:cut]
		}
		for _, item := range exampleSplit.Split(body, -1) {
			examples = e.appendExample(examples, item)
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		examples = e.appendExample(examples, m[1])
	}
	return examples
}

func (e *Extractor) appendExample(dst []string, item string) []string {
	item = trimTerm(item)
	n := len([]rune(item))
	if n < e.minExampleRunes || n > e.maxExampleRunes {
		return dst
	}
	return appendUnique(dst, item)
}

func extractSubstitution(description string) (string, string) {
	for _, re := range []*regexp.Regexp{useInsteadQuoted, useInstead} {
		if m := re.FindStringSubmatch(description); m != nil {
			return trimTerm(m[2]), trimTerm(m[1])
		}
	}
	for _, re := range []*regexp.Regexp{replaceWithQuoted, replaceWith, quotedSubstitution, writtenAs} {
		if m := re.FindStringSubmatch(description); m != nil {
			return trimTerm(m[1]), trimTerm(m[2])
		}
	}
	for _, re := range []*regexp.Regexp{arrowSubstitution, becomes} {
		if m := re.FindStringSubmatch(description); m != nil {
			return trimTerm(stripLabel(m[1])), trimTerm(m[2])
		}
	}
	return "", ""
}

func extractCondition(description string) domain.RuleCondition {
	m := conditionClause.FindStringSubmatch(description)
	if m == nil {
		return domain.RuleCondition{}
	}
	kind := domain.ConditionWhen
	if k := strings.ToLower(m[1]); strings.HasPrefix(k, "except") || k == "unless" {
		kind = domain.ConditionUnless
	}
	terms := ContentTerms(m[2], 6)
	if len(terms) == 0 {
		return domain.RuleCondition{}
	}
	return domain.RuleCondition{Kind: kind, Terms: terms}
}

func classifyCategory(description, section, pattern string) (domain.RuleCategory, int) {
	text := strings.ToLower(description + " " + section)
	best := domain.CategoryFormatting
	bestScore := 0
	for _, category := range domain.Categories {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			score += strings.Count(text, keyword)
		}
		if category == domain.CategoryNumbers && (strings.Contains(pattern, `\d`) || strings.IndexFunc(pattern, unicode.IsDigit) >= 0) {
			score++
		}
		if score > bestScore {
			best, bestScore = category, score
		}
	}
	return best, bestScore
}

func determineType(description, pattern, replacement string, examples []string, condition domain.RuleCondition) domain.RuleType {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, caseKeywords):
		return domain.RuleTypeCase
	case pattern != "" && looksLikeRegexp(pattern):
		return domain.RuleTypePattern
	case pattern != "" && (len(splitAlternatives(replacement)) > 1 || (len(examples) >= 2 && containsAny(lower, multiKeywords))):
		return domain.RuleTypeMulti
	case condition.Kind != domain.ConditionNone:
		return domain.RuleTypeContext
	default:
		return domain.RuleTypeDirect
	}
}

func looksLikeRegexp(pattern string) bool {
	if !strings.ContainsAny(pattern, `\[]*+{}|^$`) {
		return false
	}
	_, err := regexp.Compile(pattern)
	return err == nil
}

func splitAlternatives(replacement string) []string {
	if replacement == "" {
		return nil
	}
	parts := alternativeSplit.Split(replacement, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = trimTerm(p); p != "" {
			out = appendUnique(out, p)
		}
	}
	return out
}

func stripLabel(s string) string {
	if idx := strings.LastIndex(s, ":"); idx >= 0 && idx < len(s)-1 {
		return s[idx+1:]
	}
	return s
}

func trimTerm(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, quoteChars)
	s = strings.TrimRight(s, ",;:")
	if strings.HasSuffix(s, ".") && strings.Count(s, ".") == 1 {
		s = strings.TrimSuffix(s, ".")
	}
	return strings.TrimSpace(strings.Trim(s, quoteChars))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range dst {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}
