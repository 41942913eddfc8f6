package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_DeterministicForSameInput(t *testing.T) {
	h := NewHashEmbedder(16, false, "hash-embed-v1")
	ctx := context.Background()

	a, err := h.Embed(ctx, []string{"hello world"}, EmbedModePassage)
	require.NoError(t, err)
	b, err := h.Embed(ctx, []string{"hello world"}, EmbedModePassage)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashEmbedder_DifferentModeYieldsDifferentVector(t *testing.T) {
	h := NewHashEmbedder(16, false, "hash-embed-v1")
	ctx := context.Background()

	query, err := h.Embed(ctx, []string{"hello world"}, EmbedModeQuery)
	require.NoError(t, err)
	passage, err := h.Embed(ctx, []string{"hello world"}, EmbedModePassage)
	require.NoError(t, err)

	assert.NotEqual(t, query[0], passage[0])
}

func TestHashEmbedder_PreservesBatchOrder(t *testing.T) {
	h := NewHashEmbedder(8, false, "hash-embed-v1")
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	out, err := h.Embed(ctx, texts, EmbedModePassage)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, text := range texts {
		single, err := h.Embed(ctx, []string{text}, EmbedModePassage)
		require.NoError(t, err)
		assert.Equal(t, single[0], out[i])
	}
}

func TestHashEmbedder_NormalizeProducesUnitVector(t *testing.T) {
	h := NewHashEmbedder(32, true, "hash-embed-v1")
	out, err := h.Embed(context.Background(), []string{"normalize me"}, EmbedModePassage)
	require.NoError(t, err)

	var sumSq float64
	for _, v := range out[0] {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestHashEmbedder_DimensionsAndModelTag(t *testing.T) {
	h := NewHashEmbedder(24, false, "hash-embed-v1")
	assert.Equal(t, 24, h.Dimensions())
	assert.Equal(t, "hash-embed-v1", h.ModelTag())
	assert.NoError(t, h.Close())
}
