package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/chunker"
	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/embed"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/policy"
)

type fakeStore struct {
	byPath    map[string]*model.File
	replaced  int
	lastReplacedChunkIDs []string
	lastReplacedLinks    []model.Link
	markErrorCalls       []string
	markDeletedCalls     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPath: map[string]*model.File{}}
}

func (s *fakeStore) GetFileByPath(relPath string) (*model.File, error) {
	return s.byPath[relPath], nil
}

func (s *fakeStore) ReplaceFileArtifacts(file model.File, chunks []model.Chunk, embeddings []model.Embedding, symbols []model.Symbol, links []model.Link) (int64, []string, error) {
	s.replaced++
	prior := s.byPath[file.RelPath]
	var priorChunkIDs []string
	if prior != nil {
		priorChunkIDs = s.lastReplacedChunkIDs
	}
	file.ID = 1
	s.byPath[file.RelPath] = &file
	s.lastReplacedChunkIDs = make([]string, len(chunks))
	for i, c := range chunks {
		s.lastReplacedChunkIDs[i] = c.ID
	}
	s.lastReplacedLinks = links
	return file.ID, priorChunkIDs, nil
}

func (s *fakeStore) MarkDeleted(relPath string) ([]string, error) {
	s.markDeletedCalls = append(s.markDeletedCalls, relPath)
	ids := s.lastReplacedChunkIDs
	delete(s.byPath, relPath)
	return ids, nil
}

func (s *fakeStore) MarkError(relPath string) error {
	s.markErrorCalls = append(s.markErrorCalls, relPath)
	return nil
}

type fakeSymbolIndex struct {
	deletedChunkIDs [][]string
	indexedSymbols  [][]model.Symbol
}

func (f *fakeSymbolIndex) DeleteByChunkIDs(chunkIDs []string) error {
	f.deletedChunkIDs = append(f.deletedChunkIDs, chunkIDs)
	return nil
}

func (f *fakeSymbolIndex) IndexSymbols(symbols []model.Symbol) error {
	f.indexedSymbols = append(f.indexedSymbols, symbols)
	return nil
}

func newTestIndexer(t *testing.T, root string) (*Indexer, *fakeStore, *fakeSymbolIndex) {
	t.Helper()
	cfg := config.Default()
	cfg.WatchRoots = []string{root}
	cfg.AllowedExtensions = nil
	p, err := policy.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c := chunker.New(cfg.Chunking)
	store := newFakeStore()
	symbols := &fakeSymbolIndex{}
	idx := New(store, p, c, embed.NewHashEmbedder(8, false, "test-v1"), symbols, 2)
	return idx, store, symbols
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIndexPath_IndexesNewFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.go", "package main\n\nfunc main() {}\n")
	idx, store, symbols := newTestIndexer(t, root)

	err := idx.IndexPath(context.Background(), path)
	require.NoError(t, err)

	got := store.byPath["a.go"]
	require.NotNil(t, got)
	assert.Equal(t, model.FileStatusIndexed, got.Status)
	require.Len(t, symbols.indexedSymbols, 1)
	assert.NotEmpty(t, symbols.indexedSymbols[0])
}

func TestIndexPath_SameFileReferencesProduceLinks(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.py", "def helper():\n    pass\n\ndef main():\n    helper()\n")
	idx, store, _ := newTestIndexer(t, root)

	require.NoError(t, idx.IndexPath(context.Background(), path))

	require.NotEmpty(t, store.lastReplacedLinks, "main's chunk mentions helper, so a reference link must be recorded")
	for _, l := range store.lastReplacedLinks {
		assert.Equal(t, "reference", l.Relation)
	}
}

func TestIndexPath_UnchangedContentSkipsReplace(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.go", "package main\n")
	idx, store, _ := newTestIndexer(t, root)

	require.NoError(t, idx.IndexPath(context.Background(), path))
	firstCount := store.replaced

	require.NoError(t, idx.IndexPath(context.Background(), path))
	assert.Equal(t, firstCount, store.replaced, "unchanged content must not trigger a second replace")
}

func TestIndexPath_ChangedContentReplacesAndCleansUpSymbols(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.go", "package main\n\nfunc one() {}\n")
	idx, store, symbols := newTestIndexer(t, root)

	require.NoError(t, idx.IndexPath(context.Background(), path))
	firstChunkIDs := append([]string(nil), store.lastReplacedChunkIDs...)

	writeFile(t, root, "a.go", "package main\n\nfunc two() {}\n")
	require.NoError(t, idx.IndexPath(context.Background(), path))

	require.Len(t, symbols.deletedChunkIDs, 1)
	assert.Equal(t, firstChunkIDs, symbols.deletedChunkIDs[0])
}

func TestIndexPath_NonIndexableDecisionIsANoOp(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "logo.png", "binary-ish content")
	idx, store, _ := newTestIndexer(t, root)

	err := idx.IndexPath(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, store.byPath)
}

func TestDeleteRelPath_TombstonesAndCleansUpSymbols(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.go", "package main\n\nfunc main() {}\n")
	idx, store, symbols := newTestIndexer(t, root)
	require.NoError(t, idx.IndexPath(context.Background(), path))

	require.NoError(t, idx.DeleteRelPath("a.go"))
	assert.Equal(t, []string{"a.go"}, store.markDeletedCalls)
	assert.NotEmpty(t, symbols.deletedChunkIDs)
}

func TestDeletePath_OutsideWatchRootIsANoOp(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	idx, store, _ := newTestIndexer(t, root)

	err := idx.DeletePath(filepath.Join(outside, "a.go"))
	require.NoError(t, err)
	assert.Empty(t, store.markDeletedCalls)
}

func TestUpdateAsync_RunsEachUpdate(t *testing.T) {
	root := t.TempDir()
	pathA := writeFile(t, root, "a.go", "package main\n\nfunc a() {}\n")
	pathB := writeFile(t, root, "b.go", "package main\n\nfunc b() {}\n")
	idx, store, _ := newTestIndexer(t, root)

	idx.UpdateAsync(context.Background(), []Update{
		{AbsPath: pathA},
		{AbsPath: pathB},
	})

	assert.Contains(t, store.byPath, "a.go")
	assert.Contains(t, store.byPath, "b.go")
}
