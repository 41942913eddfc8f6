package provider

import (
	"fmt"

	"context"

	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/storage"
)

// TextSearcher is the Store method FullTextProvider depends on.
type TextSearcher interface {
	SearchFullText(query string, filter model.Filter, k int) ([]storage.Match, error)
}

// FullTextProvider ranks chunks by SQLite FTS5's native BM25 score.
type FullTextProvider struct {
	store TextSearcher
}

func NewFullTextProvider(store TextSearcher) *FullTextProvider {
	return &FullTextProvider{store: store}
}

func (p *FullTextProvider) Name() string { return "full_text" }

func (p *FullTextProvider) Search(ctx context.Context, query string, filter model.Filter, k int) ([]Result, error) {
	matches, err := p.store.SearchFullText(query, filter, k)
	if err != nil {
		return nil, fmt.Errorf("full-text provider: searching: %w", err)
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{ChunkID: m.ChunkID, Score: m.Score}
	}
	return out, nil
}
