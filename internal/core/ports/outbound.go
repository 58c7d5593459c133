package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// Embedder maps text units to fixed-length vectors. Implementations may batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RuleChunker splits style-guide text into rule-sized candidates.
type RuleChunker interface {
	SplitRules(text string) []domain.TextChunk
}

// ParagraphChunker splits CSR source units into structural paragraphs.
type ParagraphChunker interface {
	SplitParagraphs(units []domain.SourceUnit) []domain.ParagraphUnit
}

// RuleIndex is a nearest-neighbour structure over rule embeddings.
// Add is append-only until Seal; Query is only valid after Seal.
type RuleIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Seal(ctx context.Context) error
	Query(ctx context.Context, vector []float32, k int) ([]domain.RuleScore, error)
	Len() int
	Close(ctx context.Context) error
}

// IndexFactory creates an empty index for a freshly built rule set.
type IndexFactory func(ruleSetID string) RuleIndex

// ProgressReporter receives best-effort progress notifications.
type ProgressReporter interface {
	Report(event domain.ProgressEvent)
}

// TextExtractor turns an uploaded document into ordered source units.
type TextExtractor interface {
	Extract(ctx context.Context, filename, mimeType string, body io.Reader) ([]domain.SourceUnit, error)
}

// ObjectStorage stores export artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReviewRunStore persists finished review reports for auditing.
type ReviewRunStore interface {
	SaveRun(ctx context.Context, report *domain.ReviewReport) error
	GetRun(ctx context.Context, runID string) (*domain.ReviewReport, error)
	ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.RunSummary, error)
}

// DocumentWriter renders a finished review into downloadable artifacts.
type DocumentWriter interface {
	WriteCorrected(report *domain.ReviewReport) (domain.ExportArtifact, error)
	WriteAnalysis(report *domain.ReviewReport) (domain.ExportArtifact, error)
}

// ReviewMetrics observes review throughput.
type ReviewMetrics interface {
	ObserveRuleSetBuild(rules, dropped int, err error)
	ObserveParagraph(status domain.ParagraphStatus, changed bool)
	ObserveAppliedRule(ruleType domain.RuleType)
	ObserveEmbedBatch(size int, err error)
	StartReview()
	FinishReview(duration time.Duration, err error)
}
