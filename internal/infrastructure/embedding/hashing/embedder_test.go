package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedIsDeterministicAndNormalised(t *testing.T) {
	e := New(128)
	first, err := e.Embed(context.Background(), []string{"The patient received aspirin."})
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), []string{"the PATIENT received aspirin"})
	require.NoError(t, err)

	require.Len(t, first[0], 128)
	assert.Equal(t, first[0], second[0], "case and punctuation must not change the vector")

	var norm float64
	for _, v := range first[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedRanksOverlappingTextHigher(t *testing.T) {
	vecs, err := New(0).Embed(context.Background(), []string{
		"drug names are capitalized such as aspirin",
		"drug names such as aspirin are capitalized in the report",
		"efficacy was assessed at week twelve",
	})
	require.NoError(t, err)

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmbedEmptyTextIsZero(t *testing.T) {
	vecs, err := New(16).Embed(context.Background(), []string{"  ...  "})
	require.NoError(t, err)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(16).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
