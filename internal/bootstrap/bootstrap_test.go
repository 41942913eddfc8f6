package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/policy"
)

// fakeStore models the PENDING/IN_PROGRESS/DONE/FAILED lifecycle entirely
// in memory, with claims handed out under a mutex so concurrent workers
// never double-claim the same path.
type fakeStore struct {
	mu         sync.Mutex
	pending    []string
	inProgress map[string]bool
	done       map[string]bool
	failed     map[string]bool
	resetCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inProgress: map[string]bool{},
		done:       map[string]bool{},
		failed:     map[string]bool{},
	}
}

func (s *fakeStore) ResetBootstrapProgress() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.inProgress = map[string]bool{}
	s.done = map[string]bool{}
	s.failed = map[string]bool{}
	s.resetCalls++
	return nil
}

func (s *fakeStore) EnqueueBootstrapPaths(relPaths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range relPaths {
		if s.done[p] || s.failed[p] || s.inProgress[p] || containsStr(s.pending, p) {
			continue
		}
		s.pending = append(s.pending, p)
	}
	return nil
}

func containsStr(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func (s *fakeStore) ResetInProgress() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.inProgress {
		s.pending = append(s.pending, p)
		delete(s.inProgress, p)
	}
	return nil
}

func (s *fakeStore) ClaimNextPending(n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.pending) {
		n = len(s.pending)
	}
	claimed := s.pending[:n]
	s.pending = s.pending[n:]
	for _, p := range claimed {
		s.inProgress[p] = true
	}
	return claimed, nil
}

func (s *fakeStore) MarkBootstrapDone(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, relPath)
	s.done[relPath] = true
	return nil
}

func (s *fakeStore) MarkBootstrapFailed(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, relPath)
	s.failed[relPath] = true
	return nil
}

func (s *fakeStore) BootstrapCounts() (map[model.BootstrapState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[model.BootstrapState]int{
		model.BootstrapPending:    len(s.pending),
		model.BootstrapInProgress: len(s.inProgress),
		model.BootstrapDone:       len(s.done),
		model.BootstrapFailed:     len(s.failed),
	}, nil
}

type fakeIndexer struct {
	mu       sync.Mutex
	indexed  []string
	failPath map[string]bool
}

func (f *fakeIndexer) IndexPath(_ context.Context, absPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, absPath)
	if f.failPath[absPath] {
		return errors.New("simulated index failure")
	}
	return nil
}

func newTestPolicy(t *testing.T, root string) *policy.Policy {
	t.Helper()
	cfg := config.Default()
	cfg.WatchRoots = []string{root}
	cfg.AllowedExtensions = nil
	p, err := policy.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRefresh_IndexesEveryWalkedPathAndMarksDone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	writeFile(t, root, "b.md", "# b")
	p := newTestPolicy(t, root)

	store := newFakeStore()
	idx := &fakeIndexer{failPath: map[string]bool{}}
	b := New(store, p, idx, 2)

	require.NoError(t, b.Refresh(context.Background()))

	status, err := b.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending)
	assert.Equal(t, 0, status.InProgress)
	assert.Equal(t, 2, status.Done)
	assert.Equal(t, 0, status.Failed)
}

func TestRefresh_FailedIndexMarksFailedNotDone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	p := newTestPolicy(t, root)

	store := newFakeStore()
	failing := filepath.Join(root, "a.md")
	idx := &fakeIndexer{failPath: map[string]bool{failing: true}}
	b := New(store, p, idx, 1)

	require.NoError(t, b.Refresh(context.Background()))

	status, err := b.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 0, status.Done)
}

func TestRebuild_ResetsProgressBeforeRescanning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	p := newTestPolicy(t, root)

	store := newFakeStore()
	idx := &fakeIndexer{failPath: map[string]bool{}}
	b := New(store, p, idx, 1)

	require.NoError(t, b.Refresh(context.Background()))
	require.NoError(t, b.Rebuild(context.Background()))

	assert.Equal(t, 1, store.resetCalls)
	status, err := b.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Done)
}

func TestRefresh_SkipsNonIndexablePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	writeFile(t, root, "logo.png", "binary-ish")
	p := newTestPolicy(t, root)

	store := newFakeStore()
	idx := &fakeIndexer{failPath: map[string]bool{}}
	b := New(store, p, idx, 1)

	require.NoError(t, b.Refresh(context.Background()))

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, path := range idx.indexed {
		assert.NotContains(t, path, "logo.png")
	}
}

func TestRefresh_RerunAfterPriorCompletionReindexesNothingNew(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	p := newTestPolicy(t, root)

	store := newFakeStore()
	idx := &fakeIndexer{failPath: map[string]bool{}}
	b := New(store, p, idx, 1)

	require.NoError(t, b.Refresh(context.Background()))
	firstCount := len(idx.indexed)

	require.NoError(t, b.Refresh(context.Background()))
	assert.Equal(t, firstCount, len(idx.indexed), "a path already DONE must not be re-enqueued by a second refresh")
}
