// Package memory provides an in-process brute-force rule index scored by
// cosine similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

// Index is built with Add, sealed once, then queried concurrently.
type Index struct {
	mu     sync.RWMutex
	ids    []string
	vecs   [][]float32
	mags   []float64
	dim    int
	sealed bool
}

func NewIndex() *Index {
	return &Index{}
}

// Factory returns an IndexFactory producing fresh in-memory indexes.
func Factory() ports.IndexFactory {
	return func(string) ports.RuleIndex { return NewIndex() }
}

func (i *Index) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "index add", fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors)))
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return domain.WrapError(domain.ErrInvalidInput, "index add", errors.New("index is sealed"))
	}
	for n, vec := range vectors {
		if i.dim == 0 {
			i.dim = len(vec)
		}
		if len(vec) != i.dim || len(vec) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "index add", fmt.Errorf("vector %s has dim %d, index dim %d", ids[n], len(vec), i.dim))
		}
		i.ids = append(i.ids, ids[n])
		i.vecs = append(i.vecs, append([]float32(nil), vec...))
		i.mags = append(i.mags, magnitude(vec))
	}
	return nil
}

func (i *Index) Seal(context.Context) error {
	i.mu.Lock()
	i.sealed = true
	i.mu.Unlock()
	return nil
}

// Query returns the top-k rules by cosine similarity, ties broken by rule id.
func (i *Index) Query(ctx context.Context, query []float32, k int) ([]domain.RuleScore, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrIndexQueryTimeout, "index query", err)
		}
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.sealed {
		return nil, domain.WrapError(domain.ErrIndexNotReady, "index query", errors.New("index is not sealed"))
	}
	if len(i.vecs) == 0 {
		return []domain.RuleScore{}, nil
	}
	if len(query) != i.dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index query", fmt.Errorf("query dim %d != index dim %d", len(query), i.dim))
	}
	qm := magnitude(query)
	if qm == 0 {
		return []domain.RuleScore{}, nil
	}

	scored := make([]domain.RuleScore, 0, len(i.vecs))
	for j := range i.vecs {
		if i.mags[j] == 0 {
			continue
		}
		s := dot(query, i.vecs[j]) / (qm * i.mags[j])
		if math.IsNaN(s) {
			continue
		}
		scored = append(scored, domain.RuleScore{RuleID: i.ids[j], Similarity: clamp(s)})
	}
	SortScores(scored)
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.ids)
}

func (i *Index) Close(context.Context) error {
	i.mu.Lock()
	i.ids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
	i.mu.Unlock()
	return nil
}

// SortScores orders by similarity descending, then rule id ascending.
func SortScores(scores []domain.RuleScore) {
	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].Similarity != scores[b].Similarity {
			return scores[a].Similarity > scores[b].Similarity
		}
		return scores[a].RuleID < scores[b].RuleID
	})
}

func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
