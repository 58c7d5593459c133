package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/csr-style-review/internal/core/correction"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/matching"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

const cancelledReason = "cancelled"

type ReviewUseCase struct {
	chunker   ports.ParagraphChunker
	embedder  ports.Embedder
	matcher   *matching.Matcher
	corrector *correction.Corrector
	progress  ports.ProgressReporter
	metrics   ports.ReviewMetrics
	batch     BatchConfig
	workers   int
}

func NewReviewUseCase(
	chunker ports.ParagraphChunker,
	embedder ports.Embedder,
	matcher *matching.Matcher,
	corrector *correction.Corrector,
	progress ports.ProgressReporter,
	metrics ports.ReviewMetrics,
	batch BatchConfig,
	workers int,
) *ReviewUseCase {
	if workers <= 0 {
		workers = 4
	}
	return &ReviewUseCase{
		chunker:   chunker,
		embedder:  embedder,
		matcher:   matcher,
		corrector: corrector,
		progress:  progressOrNop(progress),
		metrics:   metricsOrNop(metrics),
		batch:     batch.normalized(),
		workers:   workers,
	}
}

// ProcessDocument reviews every paragraph of a CSR document against set.
// Per-paragraph failures are reported inline as unprocessed; only a document
// without text or a missing rule set fail the whole request. Cancellation is
// checked before each paragraph and leaves the rest unprocessed.
func (uc *ReviewUseCase) ProcessDocument(ctx context.Context, sessionID string, units []domain.SourceUnit, set *rules.RuleSet) (*domain.ReviewReport, error) {
	started := time.Now()
	uc.metrics.StartReview()
	report, err := uc.process(ctx, sessionID, units, set)
	uc.metrics.FinishReview(time.Since(started), err)
	return report, err
}

func (uc *ReviewUseCase) process(ctx context.Context, sessionID string, units []domain.SourceUnit, set *rules.RuleSet) (*domain.ReviewReport, error) {
	if set == nil {
		return nil, domain.WrapError(domain.ErrNoRuleSet, "process document", errors.New("no style guide loaded"))
	}
	if set.Len() == 0 {
		return nil, domain.WrapError(domain.ErrEmptyRuleSet, "process document", errors.New("active rule set has no rules"))
	}

	paragraphs := uc.chunker.SplitParagraphs(units)
	if len(paragraphs) == 0 {
		return nil, domain.WrapError(domain.ErrIngestion, "process document", errors.New("document has no extractable paragraphs"))
	}
	uc.report(sessionID, domain.PhaseChunking, len(paragraphs), len(paragraphs), fmt.Sprintf("Split document into %d paragraphs", len(paragraphs)))

	embedErrs := uc.embed(ctx, sessionID, paragraphs)
	results := uc.match(ctx, sessionID, paragraphs, embedErrs, set)

	report := &domain.ReviewReport{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		RuleSetID: set.ID,
		CreatedAt: time.Now().UTC(),
		Results:   results,
	}
	for _, r := range results {
		uc.metrics.ObserveParagraph(r.Status, r.Changed)
		for _, applied := range r.AppliedRules {
			uc.metrics.ObserveAppliedRule(applied.Type)
		}
	}
	stats := report.Stats()
	uc.report(sessionID, domain.PhaseDone, stats.TotalParagraphs, stats.TotalParagraphs,
		fmt.Sprintf("Reviewed %d paragraphs: %d changed, %d unprocessed", stats.TotalParagraphs, stats.ParagraphsChanged, stats.UnprocessedParagraphs))
	return report, nil
}

func (uc *ReviewUseCase) embed(ctx context.Context, sessionID string, paragraphs []domain.ParagraphUnit) []error {
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Window()
	}
	vectors, errs := embedInBatches(ctx, uc.embedder, texts, uc.batch, uc.metrics, func(done int) {
		uc.report(sessionID, domain.PhaseEmbedding, done, len(texts), fmt.Sprintf("Embedded %d of %d paragraphs", done, len(texts)))
	})
	for i := range paragraphs {
		paragraphs[i].Embedding = vectors[i]
	}
	return errs
}

func (uc *ReviewUseCase) match(ctx context.Context, sessionID string, paragraphs []domain.ParagraphUnit, embedErrs []error, set *rules.RuleSet) []domain.CorrectionResult {
	results := make([]domain.CorrectionResult, len(paragraphs))
	window := uc.matcher.Config().ContextWindow
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(uc.workers)
	for i := range paragraphs {
		g.Go(func() error {
			results[i] = uc.reviewParagraph(ctx, paragraphs, i, window, embedErrs[i], set)
			n := int(done.Add(1))
			uc.report(sessionID, domain.PhaseMatching, n, len(paragraphs), fmt.Sprintf("Reviewed paragraph %d of %d", n, len(paragraphs)))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (uc *ReviewUseCase) reviewParagraph(ctx context.Context, paragraphs []domain.ParagraphUnit, i, window int, embedErr error, set *rules.RuleSet) domain.CorrectionResult {
	p := paragraphs[i]
	if ctx.Err() != nil {
		result := domain.Unprocessed(p, nil)
		result.Error = cancelledReason
		return result
	}
	if embedErr != nil {
		return uc.unprocessed(p, embedErr)
	}
	matches, err := uc.matcher.Match(ctx, p, matching.Neighbors(paragraphs, i, window), set)
	if err != nil {
		if ctx.Err() != nil && !domain.IsKind(err, domain.ErrIndexQueryTimeout) {
			result := domain.Unprocessed(p, nil)
			result.Error = cancelledReason
			return result
		}
		return uc.unprocessed(p, err)
	}
	return uc.corrector.Apply(p, matches, set)
}

func (uc *ReviewUseCase) unprocessed(p domain.ParagraphUnit, err error) domain.CorrectionResult {
	slog.Warn("paragraph_unprocessed",
		"paragraph_index", p.Index,
		"section", p.Section,
		"error", err.Error(),
	)
	return domain.Unprocessed(p, err)
}

func (uc *ReviewUseCase) report(sessionID, phase string, current, total int, message string) {
	uc.progress.Report(domain.ProgressEvent{
		SessionID: sessionID,
		Document:  domain.DocumentCSR,
		Phase:     phase,
		Current:   current,
		Total:     total,
		Message:   message,
	})
}
