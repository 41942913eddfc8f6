// Package provider implements the three search providers the pipeline
// fuses: semantic (vector similarity), symbol (name matching) and
// full-text (BM25). Each is a thin adapter over the Store's
// already-indexed backing search, shaped so the pipeline can treat them
// uniformly.
package provider

import (
	"context"

	"github.com/agentfusion/contextengine/internal/model"
)

// Result is one ranked chunk from a single provider. Higher Score is
// always better, regardless of which provider produced it.
type Result struct {
	ChunkID string
	Score   float64
}

// Provider is implemented by SemanticProvider, SymbolProvider and
// FullTextProvider.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, filter model.Filter, k int) ([]Result, error)
}
