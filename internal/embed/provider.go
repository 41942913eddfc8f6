package embed

import (
	"context"
	"fmt"
)

// EmbedMode specifies the type of embedding to generate.
type EmbedMode string

const (
	// EmbedModeQuery generates embeddings optimized for search queries.
	EmbedModeQuery EmbedMode = "query"

	// EmbedModePassage generates embeddings optimized for document passages
	// (code chunks, documentation, or any indexed content).
	EmbedModePassage EmbedMode = "passage"
)

// Provider embeds text into fixed-dimension vectors. A Provider is a pure
// function of (text, model tag): the same input must yield byte-identical
// output across calls, within the floating-point determinism of the
// runtime. Batch order is always preserved.
type Provider interface {
	// Embed converts texts into vectors, in the same order as the input.
	// Returns an EmbeddingError if the model cannot produce a result for
	// the batch; callers never see a partial result.
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)

	// Dimensions returns the dimensionality of vectors this provider produces.
	Dimensions() int

	// ModelTag identifies the producing model and version, stored alongside
	// every embedding it creates.
	ModelTag() string

	// Close releases any resources held by the provider (subprocesses,
	// connections). For in-process providers this is a no-op.
	Close() error
}

// EmbeddingError wraps a failure to embed one batch. The Indexer treats
// this as a per-file error and leaves existing chunks untouched.
type EmbeddingError struct {
	ModelTag string
	Cause    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (model %s): %v", e.ModelTag, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}
