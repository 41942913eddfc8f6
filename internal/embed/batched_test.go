package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedWithProgress_SplitsIntoBatchesAndPreservesOrder(t *testing.T) {
	h := NewHashEmbedder(4, false, "hash-embed-v1")
	texts := []string{"a", "b", "c", "d", "e"}
	progressCh := make(chan BatchProgress, 10)

	out, err := EmbedWithProgress(context.Background(), h, texts, EmbedModePassage, 2, progressCh)
	require.NoError(t, err)
	close(progressCh)

	require.Len(t, out, 5)
	for i, text := range texts {
		single, err := h.Embed(context.Background(), []string{text}, EmbedModePassage)
		require.NoError(t, err)
		assert.Equal(t, single[0], out[i])
	}

	var batches []BatchProgress
	for p := range progressCh {
		batches = append(batches, p)
	}
	require.Len(t, batches, 3) // 5 texts at batch size 2 -> 3 batches
	assert.Equal(t, 5, batches[len(batches)-1].ProcessedChunks)
}

func TestEmbedWithProgress_EmptyInputReturnsEmptySlice(t *testing.T) {
	h := NewHashEmbedder(4, false, "hash-embed-v1")
	out, err := EmbedWithProgress(context.Background(), h, nil, EmbedModePassage, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbedWithProgress_CancelledContextStopsEarly(t *testing.T) {
	h := NewHashEmbedder(4, false, "hash-embed-v1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EmbedWithProgress(ctx, h, []string{"a", "b"}, EmbedModePassage, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
