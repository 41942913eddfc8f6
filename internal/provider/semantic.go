package provider

import (
	"context"
	"fmt"

	"github.com/agentfusion/contextengine/internal/embed"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/storage"
)

// VectorSearcher is the Store method SemanticProvider depends on.
type VectorSearcher interface {
	SearchVector(queryVec []float32, filter model.Filter, k int) ([]storage.Match, error)
}

// SemanticProvider ranks chunks by cosine similarity between the query
// embedding and each chunk's stored embedding.
type SemanticProvider struct {
	store    VectorSearcher
	embedder embed.Provider
}

func NewSemanticProvider(store VectorSearcher, embedder embed.Provider) *SemanticProvider {
	return &SemanticProvider{store: store, embedder: embedder}
}

func (p *SemanticProvider) Name() string { return "semantic" }

func (p *SemanticProvider) Search(ctx context.Context, query string, filter model.Filter, k int) ([]Result, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query}, embed.EmbedModeQuery)
	if err != nil {
		return nil, fmt.Errorf("semantic provider: embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	matches, err := p.store.SearchVector(vectors[0], filter, k)
	if err != nil {
		return nil, fmt.Errorf("semantic provider: searching: %w", err)
	}

	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{ChunkID: m.ChunkID, Score: m.Score}
	}
	return out, nil
}
