package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

type RuleSetBuilder struct {
	chunker      ports.RuleChunker
	extractor    *rules.Extractor
	embedder     ports.Embedder
	indexFactory ports.IndexFactory
	progress     ports.ProgressReporter
	metrics      ports.ReviewMetrics
	batch        BatchConfig
}

func NewRuleSetBuilder(
	chunker ports.RuleChunker,
	extractor *rules.Extractor,
	embedder ports.Embedder,
	indexFactory ports.IndexFactory,
	progress ports.ProgressReporter,
	metrics ports.ReviewMetrics,
	batch BatchConfig,
) *RuleSetBuilder {
	return &RuleSetBuilder{
		chunker:      chunker,
		extractor:    extractor,
		embedder:     embedder,
		indexFactory: indexFactory,
		progress:     progressOrNop(progress),
		metrics:      metricsOrNop(metrics),
		batch:        batch.normalized(),
	}
}

// Build turns style-guide units into a sealed rule set. Chunks that cannot be
// classified or embedded are dropped with a warning; an empty result fails.
func (b *RuleSetBuilder) Build(ctx context.Context, sessionID string, units []domain.SourceUnit) (*rules.RuleSet, error) {
	set, dropped, err := b.build(ctx, sessionID, units)
	ruleCount := 0
	if set != nil {
		ruleCount = set.Len()
	}
	b.metrics.ObserveRuleSetBuild(ruleCount, dropped, err)
	return set, err
}

func (b *RuleSetBuilder) build(ctx context.Context, sessionID string, units []domain.SourceUnit) (*rules.RuleSet, int, error) {
	if !hasText(units) {
		return nil, 0, domain.WrapError(domain.ErrIngestion, "build rule set", errors.New("style guide has no extractable text"))
	}

	candidates, dropped := b.extract(sessionID, units)
	if len(candidates) == 0 {
		return nil, len(dropped), domain.WrapError(domain.ErrEmptyRuleSet, "build rule set", domain.ErrRuleExtractionFailed)
	}

	accepted, dropped, err := b.embed(ctx, sessionID, candidates, dropped)
	if err != nil {
		return nil, len(dropped), err
	}

	setID := uuid.NewString()
	index := b.indexFactory(setID)
	if err := b.index(ctx, sessionID, index, accepted); err != nil {
		_ = index.Close(context.Background())
		return nil, len(dropped), err
	}

	set, err := rules.NewRuleSet(setID, accepted, dropped, index)
	if err != nil {
		_ = index.Close(context.Background())
		return nil, len(dropped), err
	}
	return set, len(dropped), nil
}

func (b *RuleSetBuilder) extract(sessionID string, units []domain.SourceUnit) ([]domain.Rule, []domain.DroppedChunk) {
	type sectionChunk struct {
		section string
		chunk   domain.TextChunk
	}
	var chunks []sectionChunk
	for _, unit := range units {
		for _, c := range b.chunker.SplitRules(unit.Text) {
			chunks = append(chunks, sectionChunk{section: unit.Section, chunk: c})
		}
	}
	b.report(sessionID, domain.PhaseChunking, len(chunks), len(chunks), fmt.Sprintf("Split style guide into %d rule candidates", len(chunks)))

	out := make([]domain.Rule, 0, len(chunks))
	var dropped []domain.DroppedChunk
	for _, c := range chunks {
		id := fmt.Sprintf("R%04d", len(out)+1)
		rule, err := b.extractor.Extract(id, c.section, c.chunk.Text)
		if err != nil {
			slog.Warn("rule_chunk_dropped",
				"session_id", sessionID,
				"section", c.section,
				"error", err.Error(),
			)
			dropped = append(dropped, domain.DroppedChunk{Section: c.section, Text: c.chunk.Text, Reason: err.Error()})
			continue
		}
		rule.Truncated = c.chunk.Truncated
		out = append(out, rule)
	}
	return out, dropped
}

// embed attaches embeddings and renumbers surviving rules so ids stay
// contiguous in extraction order.
func (b *RuleSetBuilder) embed(ctx context.Context, sessionID string, candidates []domain.Rule, dropped []domain.DroppedChunk) ([]domain.Rule, []domain.DroppedChunk, error) {
	texts := make([]string, len(candidates))
	for i, r := range candidates {
		texts[i] = r.Description
	}
	vectors, errs := embedInBatches(ctx, b.embedder, texts, b.batch, b.metrics, func(done int) {
		b.report(sessionID, domain.PhaseEmbedding, done, len(texts), fmt.Sprintf("Embedded %d of %d rules", done, len(texts)))
	})

	accepted := make([]domain.Rule, 0, len(candidates))
	var lastErr error
	for i, r := range candidates {
		if errs[i] != nil {
			lastErr = errs[i]
			slog.Warn("rule_chunk_dropped",
				"session_id", sessionID,
				"section", r.Section,
				"error", errs[i].Error(),
			)
			dropped = append(dropped, domain.DroppedChunk{Section: r.Section, Text: r.Description, Reason: errs[i].Error()})
			continue
		}
		r.Embedding = vectors[i]
		r.ID = fmt.Sprintf("R%04d", len(accepted)+1)
		accepted = append(accepted, r)
	}
	if len(accepted) == 0 {
		if lastErr == nil {
			lastErr = domain.ErrEmbeddingUnavailable
		}
		return nil, dropped, domain.WrapError(domain.ErrEmptyRuleSet, "embed rules", lastErr)
	}
	return accepted, dropped, nil
}

func (b *RuleSetBuilder) index(ctx context.Context, sessionID string, index ports.RuleIndex, accepted []domain.Rule) error {
	ids := make([]string, len(accepted))
	vectors := make([][]float32, len(accepted))
	for i, r := range accepted {
		ids[i] = r.ID
		vectors[i] = r.Embedding
	}
	if err := index.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index rules: %w", err)
	}
	if err := index.Seal(ctx); err != nil {
		return fmt.Errorf("seal rule index: %w", err)
	}
	b.report(sessionID, domain.PhaseIndexing, len(ids), len(ids), fmt.Sprintf("Indexed %d rules", len(ids)))
	return nil
}

func (b *RuleSetBuilder) report(sessionID, phase string, current, total int, message string) {
	b.progress.Report(domain.ProgressEvent{
		SessionID: sessionID,
		Document:  domain.DocumentStyleGuide,
		Phase:     phase,
		Current:   current,
		Total:     total,
		Message:   message,
	})
}

func hasText(units []domain.SourceUnit) bool {
	for _, u := range units {
		if strings.TrimSpace(u.Text) != "" {
			return true
		}
	}
	return false
}
