package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

// Matcher turns a paragraph embedding into gated, confidence-scored rule
// matches. It only reads the rule set and is safe for concurrent use.
type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

// Match scores one paragraph. neighbors are the surrounding paragraphs used by
// the CONTEXT gate. An empty result is not an error.
func (m *Matcher) Match(ctx context.Context, p domain.ParagraphUnit, neighbors []domain.ParagraphUnit, set *rules.RuleSet) ([]domain.Match, error) {
	if set == nil || set.Index() == nil {
		return nil, domain.WrapError(domain.ErrNoRuleSet, "match paragraph", errors.New("no active rule set"))
	}
	if len(p.Embedding) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "match paragraph", fmt.Errorf("paragraph %d has no embedding", p.Index))
	}

	queryCtx := ctx
	if m.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()
	}
	scores, err := set.Index().Query(queryCtx, p.Embedding, m.cfg.TopK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrIndexQueryTimeout) {
			return nil, domain.WrapError(domain.ErrIndexQueryTimeout, "match paragraph", err)
		}
		return nil, err
	}

	matches := make([]domain.Match, 0, len(scores))
	for _, score := range scores {
		if score.Similarity < m.cfg.Floor {
			continue
		}
		rule, ok := set.Rule(score.RuleID)
		if !ok {
			continue
		}
		if reason := m.gate(p, neighbors, rule, set); reason != "" {
			slog.Debug("match_gate_rejected",
				"paragraph_index", p.Index,
				"rule_id", rule.ID,
				"rule_type", string(rule.Type),
				"reason", reason,
			)
			continue
		}
		matches = append(matches, domain.Match{
			RuleID:         rule.ID,
			ParagraphIndex: p.Index,
			Similarity:     score.Similarity,
			Confidence:     m.cfg.Confidence(score.Similarity),
		})
	}
	SortMatches(matches)
	return matches, nil
}

// SortMatches orders by confidence descending, then rule id ascending.
func SortMatches(matches []domain.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].RuleID < matches[j].RuleID
	})
}

// gate returns a non-empty reason when a semantically close rule must still be rejected.
func (m *Matcher) gate(p domain.ParagraphUnit, neighbors []domain.ParagraphUnit, rule domain.Rule, set *rules.RuleSet) string {
	window := p.Window()
	if rule.Category == domain.CategoryNumbers && strings.IndexFunc(window, unicode.IsDigit) < 0 {
		return "no_digits"
	}
	switch rule.Type {
	case domain.RuleTypePattern:
		re := set.Pattern(rule.ID)
		if re == nil || !re.MatchString(window) {
			return "pattern_absent"
		}
	case domain.RuleTypeContext:
		if !m.contextHolds(p, neighbors, rule) {
			return "context_mismatch"
		}
	}
	return ""
}

func (m *Matcher) contextHolds(p domain.ParagraphUnit, neighbors []domain.ParagraphUnit, rule domain.Rule) bool {
	switch rule.Condition.Kind {
	case domain.ConditionWhen, domain.ConditionUnless:
		found := false
		surrounding := append([]string{p.Window()}, windows(neighbors)...)
		for _, term := range rule.Condition.Terms {
			for _, text := range surrounding {
				if rules.ContainsTerm(text, term) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if rule.Condition.Kind == domain.ConditionUnless {
			return !found
		}
		return found
	default:
		for _, n := range neighbors {
			if Cosine(n.Embedding, rule.Embedding) >= m.cfg.Floor {
				return true
			}
		}
		return false
	}
}

// Neighbors returns up to window paragraphs on each side of position i.
func Neighbors(paragraphs []domain.ParagraphUnit, i, window int) []domain.ParagraphUnit {
	if window <= 0 || i < 0 || i >= len(paragraphs) {
		return nil
	}
	lo := max(i-window, 0)
	hi := min(i+window, len(paragraphs)-1)
	out := make([]domain.ParagraphUnit, 0, hi-lo)
	for j := lo; j <= hi; j++ {
		if j != i {
			out = append(out, paragraphs[j])
		}
	}
	return out
}

func windows(paragraphs []domain.ParagraphUnit) []string {
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		out = append(out, p.Window())
	}
	return out
}

// Cosine returns the cosine similarity of two vectors, or 0 when they are
// empty, of different length or zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
