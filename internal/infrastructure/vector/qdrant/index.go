package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/vector/memory"
)

const (
	upsertBatch = 256
	// tieSlack extra hits let ties at the k-th score break by rule id.
	tieSlack = 16
)

// RuleIndex is a ports.RuleIndex backed by a dedicated Qdrant collection.
// The collection is created on the first Add and dropped on Close.
type RuleIndex struct {
	client     *Client
	collection string

	mu      sync.RWMutex
	dim     int
	count   int
	created bool
	sealed  bool
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (i *RuleIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant add", fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors)))
	}
	if len(ids) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant add", errors.New("index is sealed"))
	}
	for n, vec := range vectors {
		if i.dim == 0 {
			i.dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != i.dim {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant add", fmt.Errorf("vector %s has dim %d, index dim %d", ids[n], len(vec), i.dim))
		}
	}
	if err := i.ensureCollection(ctx); err != nil {
		return err
	}

	for start := 0; start < len(ids); start += upsertBatch {
		end := min(start+upsertBatch, len(ids))
		points := make([]point, 0, end-start)
		for n := start; n < end; n++ {
			points = append(points, point{
				ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(i.collection+"/"+ids[n])).String(),
				Vector:  vectors[n],
				Payload: map[string]any{"rule_id": ids[n]},
			})
		}
		path := fmt.Sprintf("/collections/%s/points?wait=true", i.collection)
		if err := i.client.do(ctx, http.MethodPut, path, "upsert", map[string]any{"points": points}, nil); err != nil {
			return err
		}
		i.count += len(points)
	}
	return nil
}

func (i *RuleIndex) ensureCollection(ctx context.Context) error {
	if i.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": i.dim, "distance": "Cosine"},
	}
	err := i.client.do(ctx, http.MethodPut, "/collections/"+i.collection, "create_collection", body, nil)
	var statusErr *StatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}
	i.created = true
	return nil
}

func (i *RuleIndex) Seal(context.Context) error {
	i.mu.Lock()
	i.sealed = true
	i.mu.Unlock()
	return nil
}

func (i *RuleIndex) Query(ctx context.Context, vector []float32, k int) ([]domain.RuleScore, error) {
	i.mu.RLock()
	sealed, count, dim := i.sealed, i.count, i.dim
	i.mu.RUnlock()

	if !sealed {
		return nil, domain.WrapError(domain.ErrIndexNotReady, "qdrant query", errors.New(i.collection))
	}
	if count == 0 || k <= 0 {
		return []domain.RuleScore{}, nil
	}
	if len(vector) != dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant query", fmt.Errorf("query dim %d, index dim %d", len(vector), dim))
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	body := map[string]any{"vector": vector, "limit": min(count, k+tieSlack), "with_payload": true}
	path := fmt.Sprintf("/collections/%s/points/search", i.collection)
	if err := i.client.do(ctx, http.MethodPost, path, "search", body, &resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrIndexQueryTimeout, "qdrant query", err)
		}
		return nil, err
	}

	out := make([]domain.RuleScore, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.Payload["rule_id"].(string)
		if id == "" {
			continue
		}
		out = append(out, domain.RuleScore{RuleID: id, Similarity: max(-1, min(1, r.Score))})
	}
	memory.SortScores(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (i *RuleIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.count
}

// Close drops the collection. A missing collection is not an error.
func (i *RuleIndex) Close(ctx context.Context) error {
	i.mu.Lock()
	created := i.created
	i.created, i.count = false, 0
	i.mu.Unlock()
	if !created {
		return nil
	}
	err := i.client.send(ctx, http.MethodDelete, "/collections/"+i.collection, "delete_collection", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
