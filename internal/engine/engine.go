// Package engine is the composition root: it wires Config into a Store,
// PathPolicy, Chunker, Embedder, Indexer, Watcher, Bootstrap and
// SearchPipeline, and exposes the query/stats/refresh/rebuild/jobStatus
// surface the CLI (and any future tool layer) calls into.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentfusion/contextengine/internal/bootstrap"
	"github.com/agentfusion/contextengine/internal/changedetect"
	"github.com/agentfusion/contextengine/internal/chunker"
	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/embed"
	"github.com/agentfusion/contextengine/internal/embed/client"
	"github.com/agentfusion/contextengine/internal/indexer"
	"github.com/agentfusion/contextengine/internal/linkgraph"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/policy"
	"github.com/agentfusion/contextengine/internal/provider"
	"github.com/agentfusion/contextengine/internal/searchpipeline"
	"github.com/agentfusion/contextengine/internal/storage"
	"github.com/agentfusion/contextengine/internal/watcher"
)

// embedBinaryName is the sibling binary started when Config.Embedding.Endpoint
// is set but nothing is listening there yet.
const embedBinaryName = "contextengine-embed"

// Engine is the long-lived, single-process owner of every component.
// One Engine corresponds to one context.db.
type Engine struct {
	cfg            *config.Config
	store          *storage.Store
	policy         *policy.Policy
	chunker        *chunker.Chunker
	embedder       embed.Provider
	symbolProvider *provider.SymbolProvider
	graph          *linkgraph.Graph
	detector       *changedetect.Detector
	indexer        *indexer.Indexer
	bootstrap      *bootstrap.Bootstrap
	pipeline       *searchpipeline.Pipeline
	fileWatcher    watcher.FileWatcher
	coordinator    *watcher.Coordinator

	jobs jobTracker
}

// New builds every component from cfg but starts nothing: callers decide
// whether to Bootstrap, Watch, or both.
func New(cfg *config.Config) (*Engine, error) {
	storage.InitVectorExtension()

	store, err := storage.Open(cfg.Storage.DBPath, cfg.Embedding.Dim)
	if err != nil {
		return nil, fmt.Errorf("engine: opening store: %w", err)
	}

	p, err := policy.New(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("engine: building policy: %w", err)
	}

	c := chunker.New(cfg.Chunking)
	embedder := buildEmbedder(cfg.Embedding)

	symbolProvider, err := provider.NewSymbolProvider(store)
	if err != nil {
		store.Close()
		p.Close()
		return nil, fmt.Errorf("engine: building symbol index: %w", err)
	}

	graph, err := linkgraph.New()
	if err != nil {
		store.Close()
		p.Close()
		return nil, fmt.Errorf("engine: building link graph: %w", err)
	}

	idx := indexer.New(store, p, c, embedder, symbolProvider, cfg.WorkerCount)
	bs := bootstrap.New(store, p, idx, cfg.WorkerCount)
	detector := changedetect.New(store, p, p.Walk)

	pipeline := searchpipeline.New(buildProviders(cfg, store, embedder, symbolProvider), store, cfg.Query, cfg.Budget)
	pipeline.SetGraphExpander(graph)

	fileWatcher, err := watcher.NewFileWatcher(p, cfg.DebounceMs)
	if err != nil {
		store.Close()
		p.Close()
		return nil, fmt.Errorf("engine: building file watcher: %w", err)
	}
	coordinator := watcher.NewCoordinator(fileWatcher, idx)

	return &Engine{
		cfg:            cfg,
		store:          store,
		policy:         p,
		chunker:        c,
		embedder:       embedder,
		symbolProvider: symbolProvider,
		graph:          graph,
		detector:       detector,
		indexer:        idx,
		bootstrap:      bs,
		pipeline:       pipeline,
		fileWatcher:    fileWatcher,
		coordinator:    coordinator,
	}, nil
}

// buildEmbedder picks between the built-in deterministic embedder and a
// subprocess-backed one, matching the teacher's own distinction between
// an in-process default and a daemon spawned on demand: no endpoint means
// no network/model dependency is required to get a working index.
func buildEmbedder(cfg config.EmbeddingConfig) embed.Provider {
	if cfg.Endpoint == "" {
		return embed.NewHashEmbedder(cfg.Dim, cfg.Normalize, cfg.ModelTag)
	}
	return client.NewLocalProvider(resolveEmbedBinary(), cfg.Endpoint, cfg.Dim, cfg.ModelTag)
}

// resolveEmbedBinary prefers the sibling binary next to the running
// executable over whatever "contextengine-embed" resolves to on PATH, so
// a built distribution always launches its own matching version.
func resolveEmbedBinary() string {
	execPath, err := os.Executable()
	if err != nil {
		return embedBinaryName
	}
	return filepath.Join(filepath.Dir(execPath), embedBinaryName)
}

// buildProviders assembles the SearchPipeline's weighted provider list
// from the three enabled/weight pairs in cfg.Providers.
func buildProviders(cfg *config.Config, store *storage.Store, embedder embed.Provider, symbolProvider *provider.SymbolProvider) []searchpipeline.WeightedProvider {
	var out []searchpipeline.WeightedProvider
	if cfg.Providers.Semantic.Enabled {
		out = append(out, searchpipeline.WeightedProvider{
			Provider: provider.NewSemanticProvider(store, embedder),
			Weight:   cfg.Providers.Semantic.Weight,
		})
	}
	if cfg.Providers.Symbol.Enabled {
		out = append(out, searchpipeline.WeightedProvider{
			Provider: symbolProvider,
			Weight:   cfg.Providers.Symbol.Weight,
		})
	}
	if cfg.Providers.FullText.Enabled {
		out = append(out, searchpipeline.WeightedProvider{
			Provider: provider.NewFullTextProvider(store),
			Weight:   cfg.Providers.FullText.Weight,
		})
	}
	return out
}

// Bootstrap runs (or resumes) a full scan of every watch root, blocking
// until every discovered path has been indexed or marked failed.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.bootstrap.Refresh(ctx); err != nil {
		return err
	}
	return e.reloadGraph()
}

// Rebuild discards all bootstrap progress and rescans from scratch.
func (e *Engine) Rebuild(ctx context.Context) error {
	if err := e.bootstrap.Rebuild(ctx); err != nil {
		return err
	}
	return e.reloadGraph()
}

// reloadGraph rebuilds the in-memory link graph from the links table,
// picking up whatever extractLinks produced during the scan just run.
// Load rebuilds the graph under its write lock, so a concurrent query
// waits for it and never sees a partially loaded graph.
func (e *Engine) reloadGraph() error {
	links, err := e.store.FetchAllLinks()
	if err != nil {
		return fmt.Errorf("engine: loading links: %w", err)
	}
	if err := e.graph.Load(links); err != nil {
		return fmt.Errorf("engine: rebuilding link graph: %w", err)
	}
	return nil
}

// Watch starts the filesystem watcher and blocks until ctx is cancelled,
// indexing changes as they're observed. Replaces Bootstrap at steady
// state, per the spec's "Bootstrap replaces Watcher at startup" framing
// (inverted here: Bootstrap runs once, then Watch takes over).
func (e *Engine) Watch(ctx context.Context) error {
	return e.coordinator.Start(ctx)
}

// Query runs one search through the SearchPipeline.
func (e *Engine) Query(ctx context.Context, req searchpipeline.Request) (*searchpipeline.Result, error) {
	return e.pipeline.Query(ctx, req)
}

// Stats summarizes the current index for the CLI's `stats` command.
type Stats struct {
	TotalFiles          int
	TotalChunks         int
	LanguageDistribution map[string]int
	BootstrapCounts      map[model.BootstrapState]int
}

func (e *Engine) Stats() (*Stats, error) {
	storeStats, err := e.store.GetStats()
	if err != nil {
		return nil, fmt.Errorf("engine: loading stats: %w", err)
	}
	bootstrapCounts, err := e.store.BootstrapCounts()
	if err != nil {
		return nil, fmt.Errorf("engine: loading bootstrap counts: %w", err)
	}
	return &Stats{
		TotalFiles:            storeStats.TotalFiles,
		TotalChunks:           storeStats.TotalChunks,
		LanguageDistribution:  storeStats.ByLanguage,
		BootstrapCounts:       bootstrapCounts,
	}, nil
}

// Refresh re-indexes specific paths if given. With none given, it
// diffs the filesystem against the Store via changedetect and indexes
// only what's created or modified and deletes what's gone — cheaper
// than Bootstrap's full walk+enqueue+drain cycle, which Rebuild uses
// instead when a complete rescan (and progress reset) is wanted. force
// bypasses the Indexer's unchanged-hash short-circuit by deleting the
// file's row first so it's treated as new.
func (e *Engine) Refresh(ctx context.Context, absPaths []string, force bool) error {
	if len(absPaths) == 0 {
		if err := e.refreshViaDiff(ctx); err != nil {
			return err
		}
		return e.reloadGraph()
	}
	for _, absPath := range absPaths {
		if force {
			if relPath, ok := e.policy.RelPath(absPath); ok {
				_, _ = e.store.MarkDeleted(relPath)
			}
		}
		if err := e.indexer.IndexPath(ctx, absPath); err != nil {
			return fmt.Errorf("engine: refreshing %s: %w", absPath, err)
		}
	}
	return e.reloadGraph()
}

func (e *Engine) refreshViaDiff(ctx context.Context) error {
	diff, err := e.detector.Diff()
	if err != nil {
		return fmt.Errorf("engine: diffing filesystem: %w", err)
	}
	for _, absPath := range diff.Created {
		if err := e.indexer.IndexPath(ctx, absPath); err != nil {
			return fmt.Errorf("engine: indexing %s: %w", absPath, err)
		}
	}
	for _, absPath := range diff.Modified {
		if err := e.indexer.IndexPath(ctx, absPath); err != nil {
			return fmt.Errorf("engine: reindexing %s: %w", absPath, err)
		}
	}
	for _, relPath := range diff.Deleted {
		if err := e.indexer.DeleteRelPath(relPath); err != nil {
			return fmt.Errorf("engine: deleting %s: %w", relPath, err)
		}
	}
	return nil
}

// RefreshAsync runs Refresh in the background and returns a job ID
// immediately; poll JobStatus for completion.
func (e *Engine) RefreshAsync(absPaths []string, force bool) string {
	return e.jobs.start(func(ctx context.Context) error {
		return e.Refresh(ctx, absPaths, force)
	})
}

// RebuildAsync runs Rebuild in the background and returns a job ID.
func (e *Engine) RebuildAsync() string {
	return e.jobs.start(func(ctx context.Context) error {
		return e.Rebuild(ctx)
	})
}

// JobStatus reports a background job's current state.
func (e *Engine) JobStatus(jobID string) (Job, bool) {
	return e.jobs.status(jobID)
}

// Close releases every held resource: the database connection, the
// embedder subprocess (if any), and the policy's cached matchers.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.policy.Close()
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
