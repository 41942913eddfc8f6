// Package linkgraph mirrors the Store's links table in memory as a
// directed graph, so traversal queries (what does this chunk reference,
// what references it) don't round-trip through SQL on every call.
package linkgraph

import (
	"fmt"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/maypok86/otter"

	"github.com/agentfusion/contextengine/internal/model"
)

// maxTraversalCacheWeight bounds the traversal-result cache, mirroring the
// teacher's file-content cache sizing rationale (bytes, not entry count).
const maxTraversalCacheWeight = 16 * 1024 * 1024

// Graph is a directed graph over chunk IDs, built from Link rows, with a
// small cache of recent traversal results.
type Graph struct {
	mu sync.RWMutex
	g  graph.Graph[string, string]

	traversalCache otter.Cache[string, []string]
}

// New builds an empty graph ready for Load.
func New() (*Graph, error) {
	cache, err := otter.MustBuilder[string, []string](maxTraversalCacheWeight).
		Cost(func(key string, value []string) uint32 {
			return uint32(len(value)*32 + len(key))
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create traversal cache: %w", err)
	}
	return &Graph{
		g:              graph.New(graph.StringHash, graph.Directed()),
		traversalCache: cache,
	}, nil
}

// Load replaces the in-memory graph with the given links.
func (gr *Graph) Load(links []model.Link) error {
	gr.mu.Lock()
	defer gr.mu.Unlock()

	gr.g = graph.New(graph.StringHash, graph.Directed())
	gr.traversalCache.Clear()

	for _, l := range links {
		_ = gr.g.AddVertex(l.SourceChunkID)
		_ = gr.g.AddVertex(l.TargetChunkID)
		if err := gr.g.AddEdge(l.SourceChunkID, l.TargetChunkID); err != nil && err != graph.ErrEdgeAlreadyExists {
			return fmt.Errorf("failed to add link %s -> %s: %w", l.SourceChunkID, l.TargetChunkID, err)
		}
	}
	return nil
}

// Targets returns the chunk IDs directly referenced by chunkID.
func (gr *Graph) Targets(chunkID string) ([]string, error) {
	if cached, ok := gr.traversalCache.Get("out:" + chunkID); ok {
		return cached, nil
	}

	gr.mu.RLock()
	defer gr.mu.RUnlock()

	adjacency, err := gr.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build adjacency map: %w", err)
	}
	var out []string
	for target := range adjacency[chunkID] {
		out = append(out, target)
	}
	gr.traversalCache.Set("out:"+chunkID, out)
	return out, nil
}

// Sources returns the chunk IDs that reference chunkID.
func (gr *Graph) Sources(chunkID string) ([]string, error) {
	if cached, ok := gr.traversalCache.Get("in:" + chunkID); ok {
		return cached, nil
	}

	gr.mu.RLock()
	defer gr.mu.RUnlock()

	predecessors, err := gr.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build predecessor map: %w", err)
	}
	var in []string
	for source := range predecessors[chunkID] {
		in = append(in, source)
	}
	gr.traversalCache.Set("in:"+chunkID, in)
	return in, nil
}
