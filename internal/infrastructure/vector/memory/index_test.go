package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

func TestIndex_QueryBeforeSealFails(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Add(context.Background(), []string{"R0001"}, [][]float32{{1, 0}}))

	_, err := idx.Query(context.Background(), []float32{1, 0}, 5)
	assert.True(t, domain.IsKind(err, domain.ErrIndexNotReady))
}

func TestIndex_AddAfterSealFails(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Seal(context.Background()))

	err := idx.Add(context.Background(), []string{"R0001"}, [][]float32{{1, 0}})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestIndex_QueryOrdersBySimilarityThenID(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx,
		[]string{"R0003", "R0001", "R0002", "R0004"},
		[][]float32{{1, 0}, {1, 0}, {0, 1}, {1, 1}},
	))
	require.NoError(t, idx.Seal(ctx))
	assert.Equal(t, 4, idx.Len())

	got, err := idx.Query(ctx, []float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "R0001", got[0].RuleID)
	assert.Equal(t, "R0003", got[1].RuleID)
	assert.Equal(t, "R0004", got[2].RuleID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.InDelta(t, 0.7071, got[2].Similarity, 1e-4)
}

func TestIndex_QueryIsDeterministicUnderConcurrency(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	ids := []string{"R0005", "R0002", "R0004", "R0001", "R0003"}
	vecs := [][]float32{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {1, 1}}
	require.NoError(t, idx.Add(ctx, ids, vecs))
	require.NoError(t, idx.Seal(ctx))

	want, err := idx.Query(ctx, []float32{1, 1}, 0)
	require.NoError(t, err)
	require.Len(t, want, 5)
	assert.Equal(t, "R0001", want[0].RuleID)

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := idx.Query(ctx, []float32{1, 1}, 0)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []string{"R0001"}, [][]float32{{1, 0, 0}}))
	err := idx.Add(ctx, []string{"R0002"}, [][]float32{{1, 0}})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))

	require.NoError(t, idx.Seal(ctx))
	_, err = idx.Query(ctx, []float32{1, 0}, 1)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestIndex_ExpiredContextIsTimeout(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Seal(context.Background()))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := idx.Query(ctx, []float32{1}, 1)
	assert.True(t, domain.IsKind(err, domain.ErrIndexQueryTimeout))
}

func TestIndex_EmptyAndZeroQuery(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	require.NoError(t, idx.Seal(ctx))
	got, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	idx2 := NewIndex()
	require.NoError(t, idx2.Add(ctx, []string{"R0001"}, [][]float32{{1, 0}}))
	require.NoError(t, idx2.Seal(ctx))
	got, err = idx2.Query(ctx, []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, idx2.Close(ctx))
	assert.Equal(t, 0, idx2.Len())
}
