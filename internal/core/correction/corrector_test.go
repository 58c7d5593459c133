package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

func ruleSet(t *testing.T, ruleList ...domain.Rule) *rules.RuleSet {
	t.Helper()
	set, err := rules.NewRuleSet("set-1", ruleList, nil, nil)
	require.NoError(t, err)
	return set
}

func unit(text string) domain.ParagraphUnit {
	return domain.ParagraphUnit{Index: 3, Section: "Safety", Text: text, MatchText: text}
}

func TestCorrector_CaseRuleCapitalisesDrugName(t *testing.T) {
	set := ruleSet(t, domain.Rule{
		ID:          "R0001",
		Type:        domain.RuleTypeCase,
		Category:    domain.CategoryDomain,
		Description: "drug names are capitalized",
		Section:     "Terminology",
		Examples:    []string{"Aspirin"},
	})
	p := unit("the patient received aspirin daily")
	matches := []domain.Match{{RuleID: "R0001", ParagraphIndex: 3, Similarity: 0.74, Confidence: 0.6}}

	got := NewCorrector().Apply(p, matches, set)

	assert.True(t, got.Changed)
	assert.Equal(t, domain.ParagraphProcessed, got.Status)
	assert.Equal(t, `the patient received <change confidence="0.60" rule="R0001" from="aspirin">Aspirin</change> daily`, got.CorrectedText)
	require.Len(t, got.AppliedRules, 1)
	applied := got.AppliedRules[0]
	assert.Equal(t, domain.RuleTypeCase, applied.Type)
	assert.Equal(t, "Terminology", applied.Section)
	assert.Equal(t, "drug names are capitalized", applied.Excerpt)
	assert.Greater(t, applied.Confidence, 0.0)
	assert.Equal(t, 1, applied.Changes)

	assert.Equal(t, "the patient received Aspirin daily", StripMarkers(got.CorrectedText))
	assert.Equal(t, p.Text, RestoreOriginal(got.CorrectedText))
}

func TestCorrector_CaseRuleWithoutExamplesUsesLexicon(t *testing.T) {
	rule, err := rules.NewExtractor().Extract("R0001", "Terminology", "Drug names are capitalized.")
	require.NoError(t, err)
	require.Empty(t, rule.Examples)
	set := ruleSet(t, rule)

	got := NewCorrector().Apply(unit("the patient received aspirin daily"), []domain.Match{{RuleID: "R0001", Confidence: 0.09}}, set)

	assert.True(t, got.Changed)
	assert.Equal(t, `the patient received <change confidence="0.09" rule="R0001" from="aspirin">Aspirin</change> daily`, got.CorrectedText)
	require.Len(t, got.AppliedRules, 1)
	assert.Equal(t, domain.RuleTypeCase, got.AppliedRules[0].Type)
}

func TestCorrector_CaseRuleIgnoresLexiconTermsNeedingMoreThanCase(t *testing.T) {
	set := ruleSet(t, domain.Rule{ID: "R0001", Type: domain.RuleTypeCase, Canonical: []string{"HER2", "e.g.,", "DS-8201a"}})

	got := NewCorrector().Apply(unit("her2 positive, eg in ds8201a cohorts"), []domain.Match{{RuleID: "R0001", Confidence: 0.5}}, set)

	assert.Equal(t, "HER2 positive, eg in ds8201a cohorts", StripMarkers(got.CorrectedText))
}

func TestCorrector_DirectRuleWithoutSubstitutionNormalisesLexiconTerms(t *testing.T) {
	set := ruleSet(t, domain.Rule{ID: "R0001", Type: domain.RuleTypeDirect, Canonical: []string{"Daiichi Sankyo", "HER2", "e.g.,"}})
	p := unit("Sponsored by daiichi  sankyo for her2 tumours, eg daily. Daiichi Sankyo agreed.")

	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.6}}, set)

	assert.Equal(t, "Sponsored by Daiichi Sankyo for HER2 tumours, e.g., daily. Daiichi Sankyo agreed.", StripMarkers(got.CorrectedText))
	require.Len(t, got.AppliedRules, 1)
	assert.Equal(t, 3, got.AppliedRules[0].Changes)
}

func TestCorrector_MultiRuleFallsBackToLexicon(t *testing.T) {
	set := ruleSet(t,
		domain.Rule{ID: "R0001", Type: domain.RuleTypeMulti, Pattern: "tdxd", Canonical: []string{"T-DXd", "DS-8201a"}},
		domain.Rule{ID: "R0002", Type: domain.RuleTypeMulti, Canonical: []string{"NSCLC"}},
	)
	p := unit("tdxd was given in nsclc")

	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.6}, {RuleID: "R0002", Confidence: 0.5}}, set)

	assert.Equal(t, "T-DXd was given in NSCLC", StripMarkers(got.CorrectedText))
}

func TestCorrector_CaseInvariantHolds(t *testing.T) {
	set := ruleSet(t, domain.Rule{
		ID:          "R0001",
		Type:        domain.RuleTypeCase,
		Examples:    []string{"MedDRA", "Aspirin"},
		Replacement: "pH",
	})
	p := unit("Coded with MEDDRA and meddra; aspirins and ASPIRIN. The PH was 7.")
	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.5}}, set)

	changes := ParseChanges(got.CorrectedText)
	require.Len(t, changes, 4)
	for _, c := range changes {
		assert.True(t, SameIgnoringCase(c.From, c.To), "%q -> %q", c.From, c.To)
		assert.NotEqual(t, c.From, c.To)
	}
	assert.Equal(t, "Coded with MedDRA and MedDRA; aspirins and Aspirin. The pH was 7.", StripMarkers(got.CorrectedText))
}

func TestCorrector_DirectRulePreservesLeadingCapital(t *testing.T) {
	set := ruleSet(t, domain.Rule{ID: "R0001", Type: domain.RuleTypeDirect, Pattern: "subject", Replacement: "participant"})
	p := unit("Each subject was dosed. Subject 12 withdrew; subjects were followed.")

	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.7}}, set)

	assert.Equal(t, "Each participant was dosed. Participant 12 withdrew; subjects were followed.", StripMarkers(got.CorrectedText))
	require.Len(t, got.AppliedRules, 1)
	assert.Equal(t, 2, got.AppliedRules[0].Changes)
}

func TestCorrector_ContextRuleSubstitutesLikeDirect(t *testing.T) {
	set := ruleSet(t, domain.Rule{
		ID:          "R0001",
		Type:        domain.RuleTypeContext,
		Pattern:     "percent",
		Replacement: "%",
		Condition:   domain.RuleCondition{Kind: domain.ConditionWhen, Terms: []string{"tables"}},
	})
	got := NewCorrector().Apply(unit("Ten percent responded"), []domain.Match{{RuleID: "R0001", Confidence: 0.4}}, set)
	assert.Equal(t, "Ten % responded", StripMarkers(got.CorrectedText))
}

func TestCorrector_PatternRuleExpandsGroupsAndNumberPlaceholder(t *testing.T) {
	set := ruleSet(t,
		domain.Rule{ID: "R0001", Type: domain.RuleTypePattern, Pattern: `(\d+)\s*milligrams?`, Replacement: "$1 mg"},
		domain.Rule{ID: "R0002", Type: domain.RuleTypePattern, Pattern: `\d+\s*mL`, Replacement: "<num> mL"},
	)
	p := unit("Dose 20 milligrams and 5milligram in 10mL")
	matches := []domain.Match{{RuleID: "R0001", Confidence: 0.8}, {RuleID: "R0002", Confidence: 0.6}}

	got := NewCorrector().Apply(p, matches, set)

	assert.Equal(t, "Dose 20 mg and 5 mg in 10 mL", StripMarkers(got.CorrectedText))
	require.Len(t, got.AppliedRules, 2)
	assert.Equal(t, "R0001", got.AppliedRules[0].RuleID)
	assert.Equal(t, 2, got.AppliedRules[0].Changes)
	assert.Equal(t, "R0002", got.AppliedRules[1].RuleID)
}

func TestCorrector_NoEffectiveChangeKeepsMatches(t *testing.T) {
	set := ruleSet(t, domain.Rule{ID: "R0001", Type: domain.RuleTypePattern, Pattern: `\d+\s*mg`, Replacement: "<num> mg"})
	p := unit("A dose of 20 mg was given")
	matches := []domain.Match{{RuleID: "R0001", ParagraphIndex: 3, Similarity: 0.9, Confidence: 0.85}}

	got := NewCorrector().Apply(p, matches, set)

	assert.False(t, got.Changed)
	assert.Equal(t, p.Text, got.CorrectedText)
	assert.Empty(t, got.AppliedRules)
	assert.Equal(t, matches, got.Matches)
}

func TestCorrector_NoMatchesLeavesTextUnchanged(t *testing.T) {
	got := NewCorrector().Apply(unit("Nothing to do here"), nil, ruleSet(t))
	assert.False(t, got.Changed)
	assert.Equal(t, "Nothing to do here", got.CorrectedText)
	assert.Equal(t, got.OriginalText, got.CorrectedText)
	assert.NotNil(t, got.AppliedRules)
	assert.Empty(t, got.AppliedRules)
	assert.Empty(t, got.Matches)
}

func TestCorrector_MultiPicksClosestExampleThenFirst(t *testing.T) {
	set := ruleSet(t,
		domain.Rule{ID: "R0001", Type: domain.RuleTypeMulti, Pattern: "Percent", Examples: []string{"%", "percent"}},
		domain.Rule{ID: "R0002", Type: domain.RuleTypeMulti, Pattern: "gray", Examples: []string{"grey", "grag"}},
	)
	p := unit("Percent of gray values")
	matches := []domain.Match{{RuleID: "R0001", Confidence: 0.9}, {RuleID: "R0002", Confidence: 0.8}}

	got := NewCorrector().Apply(p, matches, set)
	assert.Equal(t, "percent of grey values", StripMarkers(got.CorrectedText))
}

func TestCorrector_OverlapKeepsHigherConfidence(t *testing.T) {
	set := ruleSet(t,
		domain.Rule{ID: "R0001", Type: domain.RuleTypeDirect, Pattern: "adverse event", Replacement: "AE"},
		domain.Rule{ID: "R0002", Type: domain.RuleTypeDirect, Pattern: "event", Replacement: "occurrence"},
	)
	p := unit("adverse event reported")

	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0002", Confidence: 0.9}, {RuleID: "R0001", Confidence: 0.5}}, set)
	assert.Equal(t, "adverse occurrence reported", StripMarkers(got.CorrectedText))
	require.Len(t, got.AppliedRules, 1)
	assert.Equal(t, "R0002", got.AppliedRules[0].RuleID)
	assert.Len(t, got.Matches, 2)

	got = NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.5}, {RuleID: "R0002", Confidence: 0.5}}, set)
	assert.Equal(t, "AE reported", StripMarkers(got.CorrectedText))
}

func TestCorrector_OnlyEditsMatchWindow(t *testing.T) {
	set := ruleSet(t, domain.Rule{ID: "R0001", Type: domain.RuleTypeCase, Examples: []string{"Aspirin"}})
	p := domain.ParagraphUnit{Text: "aspirin first then aspirin", MatchText: "aspirin first", Truncated: true}

	got := NewCorrector().Apply(p, []domain.Match{{RuleID: "R0001", Confidence: 0.5}}, set)
	assert.Equal(t, "Aspirin first then aspirin", StripMarkers(got.CorrectedText))
	assert.True(t, got.Truncated)
}

func TestCorrector_IsDeterministic(t *testing.T) {
	set := ruleSet(t,
		domain.Rule{ID: "R0001", Type: domain.RuleTypeCase, Examples: []string{"Aspirin"}},
		domain.Rule{ID: "R0002", Type: domain.RuleTypeDirect, Pattern: "subject", Replacement: "participant"},
	)
	p := unit("the subject received aspirin")
	matches := []domain.Match{{RuleID: "R0001", Confidence: 0.5}, {RuleID: "R0002", Confidence: 0.5}}

	c := NewCorrector()
	assert.Equal(t, c.Apply(p, matches, set), c.Apply(p, matches, set))
}
