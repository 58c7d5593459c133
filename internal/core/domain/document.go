package domain

import "time"

type DocumentKind string

const (
	DocumentStyleGuide DocumentKind = "style_guide"
	DocumentCSR        DocumentKind = "csr"
)

// SourceUnit is one (section label, raw text) pair handed over by ingestion.
type SourceUnit struct {
	Section string `json:"section"`
	Text    string `json:"text"`
}

// TextChunk is a chunker output unit; Truncated marks chunks cut at the hard cap.
type TextChunk struct {
	Text      string
	Truncated bool
}

// ParagraphUnit is one chunked, embeddable unit of a CSR document.
type ParagraphUnit struct {
	Index     int
	Section   string
	Text      string
	MatchText string
	Truncated bool
	Embedding []float32
}

// Window returns the part of the paragraph that matching may inspect.
func (p ParagraphUnit) Window() string {
	if p.MatchText != "" {
		return p.MatchText
	}
	return p.Text
}

type ParagraphStatus string

const (
	ParagraphProcessed   ParagraphStatus = "processed"
	ParagraphUnprocessed ParagraphStatus = "unprocessed"
)

// Match is a scored association between a paragraph and a candidate rule.
type Match struct {
	RuleID         string  `json:"rule_id"`
	ParagraphIndex int     `json:"paragraph_index"`
	Similarity     float64 `json:"similarity"`
	Confidence     float64 `json:"confidence"`
}

type AppliedRule struct {
	RuleID     string       `json:"rule_id"`
	Excerpt    string       `json:"rule"`
	Type       RuleType     `json:"type"`
	Category   RuleCategory `json:"category"`
	Section    string       `json:"section,omitempty"`
	Examples   []string     `json:"examples,omitempty"`
	Confidence float64      `json:"confidence"`
	Changes    int          `json:"changes"`
}

// CorrectionResult is the review outcome for a single paragraph.
type CorrectionResult struct {
	ParagraphIndex int             `json:"paragraph_index"`
	Section        string          `json:"section,omitempty"`
	OriginalText   string          `json:"original_text"`
	CorrectedText  string          `json:"corrected_text"`
	Changed        bool            `json:"changed"`
	Truncated      bool            `json:"truncated,omitempty"`
	Status         ParagraphStatus `json:"status"`
	Error          string          `json:"error,omitempty"`
	AppliedRules   []AppliedRule   `json:"applied_rules"`
	Matches        []Match         `json:"matches"`
}

// Unprocessed builds the inline failure record for a paragraph.
func Unprocessed(p ParagraphUnit, err error) CorrectionResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return CorrectionResult{
		ParagraphIndex: p.Index,
		Section:        p.Section,
		OriginalText:   p.Text,
		CorrectedText:  p.Text,
		Truncated:      p.Truncated,
		Status:         ParagraphUnprocessed,
		Error:          msg,
		AppliedRules:   []AppliedRule{},
		Matches:        []Match{},
	}
}

type DocumentStats struct {
	TotalParagraphs       int `json:"total_paragraphs"`
	ProcessedParagraphs   int `json:"processed_paragraphs"`
	UnprocessedParagraphs int `json:"unprocessed_paragraphs"`
	ParagraphsChanged     int `json:"paragraphs_changed"`
	TotalRulesApplied     int `json:"total_rules_applied"`
}

// ComputeStats derives aggregate counts from a result set.
func ComputeStats(results []CorrectionResult) DocumentStats {
	stats := DocumentStats{TotalParagraphs: len(results)}
	for _, r := range results {
		if r.Status == ParagraphUnprocessed {
			stats.UnprocessedParagraphs++
			continue
		}
		stats.ProcessedParagraphs++
		if r.Changed {
			stats.ParagraphsChanged++
		}
		stats.TotalRulesApplied += len(r.AppliedRules)
	}
	return stats
}

// ReviewReport is the result set owned by one process-document request.
type ReviewReport struct {
	RunID     string             `json:"run_id"`
	SessionID string             `json:"session_id"`
	RuleSetID string             `json:"rule_set_id"`
	Filename  string             `json:"filename,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Results   []CorrectionResult `json:"results"`
}

func (r *ReviewReport) Stats() DocumentStats {
	if r == nil {
		return DocumentStats{}
	}
	return ComputeStats(r.Results)
}

// RunSummary is one row of a session's review history.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Filename          string    `json:"filename"`
	Paragraphs        int       `json:"paragraphs"`
	ParagraphsChanged int       `json:"paragraphs_changed"`
	RulesApplied      int       `json:"rules_applied"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProgressEvent is a best-effort notification emitted during long passes.
type ProgressEvent struct {
	SessionID string       `json:"session_id"`
	Document  DocumentKind `json:"document"`
	Phase     string       `json:"phase"`
	Current   int          `json:"current"`
	Total     int          `json:"total"`
	Message   string       `json:"message"`
}

const (
	PhaseReading   = "reading"
	PhaseChunking  = "chunking"
	PhaseEmbedding = "embedding"
	PhaseIndexing  = "indexing"
	PhaseMatching  = "matching"
	PhaseDone      = "done"
)

// ExportArtifact is one rendered output of a finished review.
type ExportArtifact struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}
