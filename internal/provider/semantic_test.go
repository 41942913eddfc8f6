package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/embed"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/storage"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ embed.EmbedMode) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int   { return len(f.vec) }
func (f *fakeEmbedder) ModelTag() string  { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

type fakeVectorSearcher struct {
	matches  []storage.Match
	gotQuery []float32
}

func (f *fakeVectorSearcher) SearchVector(queryVec []float32, _ model.Filter, _ int) ([]storage.Match, error) {
	f.gotQuery = queryVec
	return f.matches, nil
}

func TestSemanticProvider_SearchEmbedsQueryAndForwardsMatches(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 2, 3}}
	searcher := &fakeVectorSearcher{matches: []storage.Match{{ChunkID: "c1", Score: 0.9}}}
	p := NewSemanticProvider(searcher, embedder)

	results, err := p.Search(context.Background(), "find this", model.Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, []float32{1, 2, 3}, searcher.gotQuery)
}

func TestSemanticProvider_SearchPropagatesEmbeddingError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding backend down")}
	p := NewSemanticProvider(&fakeVectorSearcher{}, embedder)

	_, err := p.Search(context.Background(), "query", model.Filter{}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding backend down")
}

func TestSemanticProvider_Name(t *testing.T) {
	p := NewSemanticProvider(&fakeVectorSearcher{}, &fakeEmbedder{vec: []float32{1}})
	assert.Equal(t, "semantic", p.Name())
}
