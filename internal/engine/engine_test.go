package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/searchpipeline"
	"github.com/agentfusion/contextengine/internal/storage"
)

// newTestEngine builds a fully real Engine (real sqlite store, real
// hash embedder, real on-disk watch root) the same way config_test.go
// and storage_test.go build their fixtures: against the actual
// filesystem rather than mocks, since New is a composition root with
// concrete dependencies throughout.
func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	storage.InitVectorExtension()

	cfg := config.Default()
	cfg.WatchRoots = []string{root}
	cfg.AllowedExtensions = nil
	cfg.Embedding.Dim = 8
	cfg.Embedding.Endpoint = ""
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "context.db")
	cfg.WorkerCount = 2

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestEngine_BootstrapIndexesWatchRootsAndStatsReflectThem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# Hello\n\nSome searchable content about widgets.\n")
	writeFile(t, root, "b.md", "# World\n\nMore content about gadgets.\n")
	e := newTestEngine(t, root)

	require.NoError(t, e.Bootstrap(context.Background()))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Greater(t, stats.TotalChunks, 0)
}

func TestEngine_QueryFindsIndexedContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.md", "# Widgets\n\nThis document is all about widgets and their uses.\n")
	e := newTestEngine(t, root)
	require.NoError(t, e.Bootstrap(context.Background()))

	result, err := e.Query(context.Background(), searchpipeline.Request{Query: "widgets", K: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hits)
}

func TestEngine_RefreshWithoutPathsDiffsFilesystem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	e := newTestEngine(t, root)
	require.NoError(t, e.Bootstrap(context.Background()))

	writeFile(t, root, "b.md", "# b")
	require.NoError(t, e.Refresh(context.Background(), nil, false))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
}

func TestEngine_RebuildResetsBootstrapProgress(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	e := newTestEngine(t, root)
	require.NoError(t, e.Bootstrap(context.Background()))
	require.NoError(t, e.Rebuild(context.Background()))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Greater(t, stats.BootstrapCounts[model.BootstrapDone], 0)
}

func TestEngine_RefreshAsyncReportsJobStatus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# a")
	e := newTestEngine(t, root)
	require.NoError(t, e.Bootstrap(context.Background()))

	jobID := e.RefreshAsync(nil, false)

	deadline := time.Now().Add(2 * time.Second)
	var job Job
	var ok bool
	for time.Now().Before(deadline) {
		job, ok = e.JobStatus(jobID)
		require.True(t, ok)
		if job.State != JobRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, JobDone, job.State)
}

func TestEngine_JobStatusUnknownIDReturnsFalse(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	_, ok := e.JobStatus("does-not-exist")
	assert.False(t, ok)
}
