package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// LexiconClass is a named group of canonical terms. Keywords are the words a
// rule description uses to refer to the class, e.g. "drug" for drug names.
type LexiconClass struct {
	Category domain.RuleCategory `yaml:"category" json:"category"`
	Keywords []string            `yaml:"keywords" json:"keywords"`
	Terms    []string            `yaml:"terms" json:"terms"`
}

// Lexicon maps class names to canonical terms. Rules that state a convention
// without listing the affected words draw their targets from it.
type Lexicon map[string]LexiconClass

// DefaultLexicon returns the built-in CSR vocabulary.
func DefaultLexicon() Lexicon {
	return Lexicon{
		"company": {
			Category: domain.CategoryDomain,
			Keywords: []string{"company", "sponsor", "manufacturer"},
			Terms:    []string{"Daiichi Sankyo"},
		},
		"drug": {
			Category: domain.CategoryDomain,
			Keywords: []string{"drug", "medication", "medicine", "compound", "investigational product"},
			Terms:    []string{"Aspirin", "Ibuprofen", "Paracetamol", "Acetaminophen", "Trastuzumab Deruxtecan", "DS-8201a", "T-DXd"},
		},
		"clinical": {
			Category: domain.CategoryDomain,
			Keywords: []string{"clinical", "trial", "phase", "patient", "subject"},
			Terms:    []string{"Clinical Trial", "PHASE ONE", "PHASE TWO", "Subject", "Patient"},
		},
		"role": {
			Category: domain.CategoryDomain,
			Keywords: []string{"academic title", "honorific", "investigator", "role"},
			Terms:    []string{"Dr.", "Prof.", "Principal Investigator"},
		},
		"document_part": {
			Category: domain.CategoryStructure,
			Keywords: []string{"table", "figure", "appendix", "cross-reference", "version"},
			Terms:    []string{"Version", "Appendix", "Table", "Figure", "Section"},
		},
		"status": {
			Category: domain.CategoryStructure,
			Keywords: []string{"status", "watermark", "confidential", "draft"},
			Terms:    []string{"APPROVED", "CONFIDENTIAL", "DRAFT"},
		},
		"latin": {
			Category: domain.CategoryPunctuation,
			Keywords: []string{"latin", "e.g.", "i.e.", "etc.", "vs."},
			Terms:    []string{"e.g.,", "i.e.,", "vs.", "etc."},
		},
		"acronym": {
			Category: domain.CategoryAbbreviations,
			Keywords: []string{"abbreviat", "acronym"},
			Terms:    []string{"NSCLC", "HER2", "ILD", "CSR", "SAP", "ICF"},
		},
	}
}

// Merge returns a copy of l with the classes of other added. A class in other
// replaces the class of the same name.
func (l Lexicon) Merge(other Lexicon) Lexicon {
	out := make(Lexicon, len(l)+len(other))
	for name, class := range l {
		out[name] = class
	}
	for name, class := range other {
		out[name] = class
	}
	return out
}

func (l Lexicon) Validate() error {
	var errs []error
	for _, name := range l.names() {
		class := l[name]
		if !class.Category.Valid() {
			errs = append(errs, fmt.Errorf("lexicon class %q: unknown category %q", name, class.Category))
		}
		if len(class.Terms) == 0 {
			errs = append(errs, fmt.Errorf("lexicon class %q: no terms", name))
		}
		for _, term := range class.Terms {
			if strings.TrimSpace(term) == "" {
				errs = append(errs, fmt.Errorf("lexicon class %q: blank term", name))
				break
			}
		}
	}
	if len(errs) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate lexicon", errors.Join(errs...))
	}
	return nil
}

// Terms returns the canonical terms a rule without its own targets applies
// to. Classes named by the description come first. A CASE rule naming no class
// falls back to every class of its category; other types get nothing, since
// their edits are not limited to letter casing.
func (l Lexicon) Terms(rule domain.Rule) []string {
	words := descriptionWords(rule.Description)
	lower := strings.ToLower(rule.Description)
	var out []string
	for _, name := range l.names() {
		class := l[name]
		for _, keyword := range class.Keywords {
			if mentions(lower, words, strings.ToLower(keyword)) {
				out = appendUnique(out, class.Terms...)
				break
			}
		}
	}
	if len(out) > 0 || rule.Type != domain.RuleTypeCase {
		return out
	}
	for _, name := range l.names() {
		if class := l[name]; class.Category == rule.Category {
			out = appendUnique(out, class.Terms...)
		}
	}
	return out
}

func (l Lexicon) names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func descriptionWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '.'
	})
}

// mentions matches single-word keywords as word prefixes and phrases as
// substrings.
func mentions(lower string, words []string, keyword string) bool {
	if keyword == "" {
		return false
	}
	if strings.ContainsAny(keyword, " ") {
		return strings.Contains(lower, keyword)
	}
	for _, w := range words {
		if strings.HasPrefix(w, keyword) {
			return true
		}
	}
	return false
}
