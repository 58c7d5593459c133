package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

// RuleSet owns every rule of one uploaded style guide together with its sealed index.
// It is immutable once constructed and safe for concurrent reads.
type RuleSet struct {
	ID        string
	CreatedAt time.Time
	Rules     []domain.Rule
	Dropped   []domain.DroppedChunk

	index    ports.RuleIndex
	byID     map[string]int
	patterns map[string]*regexp.Regexp
}

func NewRuleSet(id string, rules []domain.Rule, dropped []domain.DroppedChunk, index ports.RuleIndex) (*RuleSet, error) {
	set := &RuleSet{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Rules:     rules,
		Dropped:   dropped,
		index:     index,
		byID:      make(map[string]int, len(rules)),
		patterns:  make(map[string]*regexp.Regexp),
	}
	for i, rule := range rules {
		if _, exists := set.byID[rule.ID]; exists {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build rule set", fmt.Errorf("duplicate rule id %s", rule.ID))
		}
		set.byID[rule.ID] = i
		if rule.Type != domain.RuleTypePattern {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRuleExtractionFailed, "compile rule "+rule.ID, err)
		}
		set.patterns[rule.ID] = re
	}
	return set, nil
}

func (s *RuleSet) Rule(id string) (domain.Rule, bool) {
	if s == nil {
		return domain.Rule{}, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return domain.Rule{}, false
	}
	return s.Rules[idx], true
}

// Pattern returns the compiled expression of a PATTERN rule, or nil.
func (s *RuleSet) Pattern(id string) *regexp.Regexp {
	if s == nil {
		return nil
	}
	return s.patterns[id]
}

func (s *RuleSet) Index() ports.RuleIndex {
	if s == nil {
		return nil
	}
	return s.index
}

func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// ByCategory groups rules for display, keeping extraction order inside each group.
func (s *RuleSet) ByCategory() map[domain.RuleCategory][]domain.Rule {
	out := make(map[domain.RuleCategory][]domain.Rule, len(domain.Categories))
	for _, c := range domain.Categories {
		out[c] = []domain.Rule{}
	}
	if s == nil {
		return out
	}
	for _, rule := range s.Rules {
		out[rule.Category] = append(out[rule.Category], rule)
	}
	for c := range out {
		group := out[c]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}
	return out
}

func (s *RuleSet) Close(ctx context.Context) error {
	if s == nil || s.index == nil {
		return nil
	}
	return s.index.Close(ctx)
}

func (s *RuleSet) Summary(sessionID string) domain.RuleSetSummary {
	summary := domain.RuleSetSummary{
		SessionID:  sessionID,
		Dropped:    []domain.DroppedChunk{},
		ByCategory: s.ByCategory(),
	}
	if s == nil {
		return summary
	}
	summary.ID = s.ID
	summary.CreatedAt = s.CreatedAt
	summary.RuleCount = len(s.Rules)
	summary.Dropped = append(summary.Dropped, s.Dropped...)
	return summary
}
