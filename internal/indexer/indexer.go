// Package indexer runs one path through policy, chunking, embedding and
// storage, serialized per path so concurrent updates to the same file
// never race.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/agentfusion/contextengine/internal/chunker"
	"github.com/agentfusion/contextengine/internal/embed"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/policy"
)

// embedBatchSize caps how many chunk texts go into one Provider.Embed call,
// matching the batching EmbedWithProgress was written to report progress for.
const embedBatchSize = 50

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store is the subset of storage.Store the Indexer depends on.
type Store interface {
	GetFileByPath(relPath string) (*model.File, error)
	ReplaceFileArtifacts(file model.File, chunks []model.Chunk, embeddings []model.Embedding, symbols []model.Symbol, links []model.Link) (int64, []string, error)
	MarkDeleted(relPath string) ([]string, error)
	MarkError(relPath string) error
}

// SymbolIndex is the subset of provider.SymbolProvider the Indexer keeps
// in sync with the Store's own symbols table on every replace/delete.
type SymbolIndex interface {
	DeleteByChunkIDs(chunkIDs []string) error
	IndexSymbols(symbols []model.Symbol) error
}

// Indexer is the engine's indexPath/deletePath/updateAsync entry point.
type Indexer struct {
	store    Store
	policy   *policy.Policy
	chunker  *chunker.Chunker
	embedder embed.Provider
	symbols  SymbolIndex
	workers  int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(store Store, p *policy.Policy, c *chunker.Chunker, embedder embed.Provider, symbols SymbolIndex, workers int) *Indexer {
	if workers <= 0 {
		workers = 1
	}
	return &Indexer{
		store:    store,
		policy:   p,
		chunker:  c,
		embedder: embedder,
		symbols:  symbols,
		workers:  workers,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (idx *Indexer) lockFor(relPath string) *sync.Mutex {
	idx.locksMu.Lock()
	defer idx.locksMu.Unlock()
	m, ok := idx.locks[relPath]
	if !ok {
		m = &sync.Mutex{}
		idx.locks[relPath] = m
	}
	return m
}

// IndexPath runs one absolute path through the full pipeline: classify,
// read, chunk, embed, extract symbols, replace artifacts. It is
// idempotent and safe under concurrent invocation for different paths;
// calls for the same path are serialized.
func (idx *Indexer) IndexPath(ctx context.Context, absPath string) error {
	relPath, ok := idx.policy.RelPath(absPath)
	if !ok {
		return nil
	}

	mu := idx.lockFor(relPath)
	mu.Lock()
	defer mu.Unlock()

	decision := idx.policy.Classify(absPath)
	if !decision.IsIndexable() {
		if decision.Kind == policy.KindSkip && decision.Reason == "io_error" {
			return nil
		}
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		_ = idx.store.MarkError(relPath)
		return fmt.Errorf("indexer: reading %s: %w", relPath, err)
	}

	hash := contentHash(content)
	existing, err := idx.store.GetFileByPath(relPath)
	if err != nil {
		return fmt.Errorf("indexer: looking up %s: %w", relPath, err)
	}
	if existing != nil && existing.ContentHash == hash {
		return nil // unchanged: chunking skipped entirely
	}

	info, err := os.Stat(absPath)
	if err != nil {
		_ = idx.store.MarkError(relPath)
		return fmt.Errorf("indexer: stat %s: %w", relPath, err)
	}

	language := chunker.LanguageFromExt(filepath.Ext(absPath))
	text := string(content)

	file := model.File{
		RelPath:        relPath,
		Language:       language,
		SizeBytes:      info.Size(),
		ContentHash:    hash,
		LastModifiedMs: info.ModTime().UnixMilli(),
		Status:         model.FileStatusIndexed,
	}

	// fileID is provisional; chunks reference it only after the file row
	// is actually upserted inside ReplaceFileArtifacts. The chunker needs
	// no real ID since FileID is stamped onto each chunk below only for
	// callers that inspect it before the store assigns the real one.
	chunks, err := idx.chunker.Chunk(0, text, language)
	if err != nil {
		_ = idx.store.MarkError(relPath)
		return fmt.Errorf("indexer: chunking %s: %w", relPath, err)
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embed.EmbedWithProgress(ctx, idx.embedder, texts, embed.EmbedModePassage, embedBatchSize, nil)
	if err != nil {
		_ = idx.store.MarkError(relPath)
		return fmt.Errorf("indexer: embedding %s: %w", relPath, err)
	}

	embeddings := make([]model.Embedding, len(chunks))
	for i, c := range chunks {
		embeddings[i] = model.Embedding{
			ChunkID:  c.ID,
			Dim:      idx.embedder.Dimensions(),
			Vector:   vectors[i],
			ModelTag: idx.embedder.ModelTag(),
		}
	}

	var symbols []model.Symbol
	for _, c := range chunks {
		symbols = append(symbols, extractSymbols(c, language)...)
	}
	links := extractLinks(chunks, symbols)

	_, replacedChunkIDs, err := idx.store.ReplaceFileArtifacts(file, chunks, embeddings, symbols, links)
	if err != nil {
		_ = idx.store.MarkError(relPath)
		return fmt.Errorf("indexer: replacing artifacts for %s: %w", relPath, err)
	}

	if idx.symbols != nil {
		if len(replacedChunkIDs) > 0 {
			if err := idx.symbols.DeleteByChunkIDs(replacedChunkIDs); err != nil {
				log.Printf("[indexer] %s: symbol index cleanup: %v", relPath, err)
			}
		}
		if err := idx.symbols.IndexSymbols(symbols); err != nil {
			log.Printf("[indexer] %s: symbol index update: %v", relPath, err)
		}
	}
	return nil
}

// DeletePath tombstones absPath and cascades the delete to its artifacts.
// absPath need not still exist on disk (this is the deletion path).
func (idx *Indexer) DeletePath(absPath string) error {
	relPath, ok := idx.policy.RelPath(absPath)
	if !ok {
		return nil
	}
	return idx.DeleteRelPath(relPath)
}

// DeleteRelPath is DeletePath for callers that already have the
// store-relative path (e.g. changedetect.Diff's Deleted list), avoiding
// a round trip back through an absolute path just to re-derive it.
func (idx *Indexer) DeleteRelPath(relPath string) error {
	mu := idx.lockFor(relPath)
	mu.Lock()
	defer mu.Unlock()

	chunkIDs, err := idx.store.MarkDeleted(relPath)
	if err != nil {
		return fmt.Errorf("indexer: deleting %s: %w", relPath, err)
	}

	if idx.symbols != nil {
		if err := idx.symbols.DeleteByChunkIDs(chunkIDs); err != nil {
			log.Printf("[indexer] %s: symbol index cleanup: %v", relPath, err)
		}
	}
	return nil
}

// Update describes one filesystem change for UpdateAsync.
type Update struct {
	AbsPath string
	Deleted bool
}

// UpdateAsync is the batch entry point used by Watcher and Bootstrap. It
// runs up to idx.workers updates concurrently; different paths index in
// parallel, same-path updates are already serialized by IndexPath/DeletePath.
func (idx *Indexer) UpdateAsync(ctx context.Context, updates []Update) {
	sem := make(chan struct{}, idx.workers)
	var wg sync.WaitGroup

	for _, u := range updates {
		wg.Add(1)
		sem <- struct{}{}
		go func(u Update) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			if u.Deleted {
				err = idx.DeletePath(u.AbsPath)
			} else {
				err = idx.IndexPath(ctx, u.AbsPath)
			}
			if err != nil {
				log.Printf("[indexer] %s: %v", u.AbsPath, err)
			}
		}(u)
	}
	wg.Wait()
}
