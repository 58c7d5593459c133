package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

// BatchConfig bounds embedding calls.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

func (c BatchConfig) normalized() BatchConfig {
	if c.Size <= 0 {
		c.Size = 32
	}
	return c
}

// embedInBatches embeds texts in bounded batches. A failed batch is retried
// unit by unit so one bad text cannot sink its neighbours; units that still
// fail get a per-index error and a nil vector.
func embedInBatches(
	ctx context.Context,
	embedder ports.Embedder,
	texts []string,
	cfg BatchConfig,
	metrics ports.ReviewMetrics,
	onBatch func(done int),
) ([][]float32, []error) {
	cfg = cfg.normalized()
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	for start := 0; start < len(texts); start += cfg.Size {
		end := min(start+cfg.Size, len(texts))
		batch := texts[start:end]

		got, err := embedCall(ctx, embedder, batch, cfg.Timeout)
		metrics.ObserveEmbedBatch(len(batch), err)
		if err == nil {
			copy(vectors[start:end], got)
		} else {
			slog.Warn("embed_batch_failed",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err.Error(),
			)
			for i := range batch {
				single, unitErr := embedCall(ctx, embedder, batch[i:i+1], cfg.Timeout)
				if unitErr != nil {
					errs[start+i] = unitErr
					continue
				}
				vectors[start+i] = single[0]
			}
		}
		if onBatch != nil {
			onBatch(end)
		}
	}
	return vectors, errs
}

func embedCall(ctx context.Context, embedder ports.Embedder, texts []string, timeout time.Duration) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", err)
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vectors, err := embedder.Embed(callCtx, texts)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", fmt.Errorf("empty vector at %d", i))
		}
	}
	return vectors, nil
}

