package domain

import (
	"strings"
	"time"
)

type RuleCategory string

const (
	CategoryStructure     RuleCategory = "STRUCTURE"
	CategoryNumbers       RuleCategory = "NUMBERS"
	CategoryDomain        RuleCategory = "DOMAIN"
	CategoryFormatting    RuleCategory = "FORMATTING"
	CategoryPunctuation   RuleCategory = "PUNCTUATION"
	CategoryGrammar       RuleCategory = "GRAMMAR"
	CategoryAbbreviations RuleCategory = "ABBREVIATIONS"
	CategoryReferences    RuleCategory = "REFERENCES"
)

// Categories lists every rule category in display order.
var Categories = []RuleCategory{
	CategoryStructure,
	CategoryNumbers,
	CategoryDomain,
	CategoryFormatting,
	CategoryPunctuation,
	CategoryGrammar,
	CategoryAbbreviations,
	CategoryReferences,
}

func (c RuleCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// RuleType selects the correction strategy applied for a rule.
type RuleType string

const (
	RuleTypeDirect  RuleType = "DIRECT"
	RuleTypePattern RuleType = "PATTERN"
	RuleTypeContext RuleType = "CONTEXT"
	RuleTypeMulti   RuleType = "MULTI"
	RuleTypeCase    RuleType = "CASE"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeDirect, RuleTypePattern, RuleTypeContext, RuleTypeMulti, RuleTypeCase:
		return true
	default:
		return false
	}
}

// ConditionKind tells whether a CONTEXT rule needs its condition terms present or absent.
type ConditionKind string

const (
	ConditionNone   ConditionKind = ""
	ConditionWhen   ConditionKind = "when"
	ConditionUnless ConditionKind = "unless"
)

type RuleCondition struct {
	Kind  ConditionKind `json:"kind,omitempty"`
	Terms []string      `json:"terms,omitempty"`
}

// Rule is one extracted, classified style-guide requirement. Canonical holds
// lexicon terms for rules whose text names no targets of its own.
type Rule struct {
	ID          string        `json:"id"`
	Category    RuleCategory  `json:"category"`
	Type        RuleType      `json:"type"`
	Description string        `json:"description"`
	Section     string        `json:"section,omitempty"`
	Pattern     string        `json:"pattern,omitempty"`
	Replacement string        `json:"replacement,omitempty"`
	Examples    []string      `json:"examples"`
	Canonical   []string      `json:"canonical,omitempty"`
	Condition   RuleCondition `json:"condition"`
	Truncated   bool          `json:"truncated,omitempty"`
	Embedding   []float32     `json:"-"`
}

// Excerpt returns the description shortened to at most maxRunes runes.
func (r Rule) Excerpt(maxRunes int) string {
	text := strings.Join(strings.Fields(r.Description), " ")
	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

// RuleScore is a single nearest-neighbour hit from a rule index.
type RuleScore struct {
	RuleID     string  `json:"rule_id"`
	Similarity float64 `json:"similarity"`
}

// DroppedChunk records a style-guide chunk that did not become a rule.
type DroppedChunk struct {
	Section string `json:"section,omitempty"`
	Text    string `json:"text"`
	Reason  string `json:"reason"`
}

// RuleSetSummary is the read model of an installed rule set, grouped for display.
type RuleSetSummary struct {
	ID         string                  `json:"id"`
	SessionID  string                  `json:"session_id,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	RuleCount  int                     `json:"rule_count"`
	Dropped    []DroppedChunk          `json:"dropped"`
	ByCategory map[RuleCategory][]Rule `json:"by_category"`
}
