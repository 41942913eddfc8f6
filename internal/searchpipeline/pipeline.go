// Package searchpipeline fans a query out to every enabled provider,
// fuses their ranked lists with Reciprocal Rank Fusion, reranks the
// fused pool for diversity with Maximal Marginal Relevance, and trims
// the result to a token budget.
package searchpipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/provider"
)

// kRRF is the RRF smoothing constant. The spec fixes this at 60, the
// same value the amanmcp search package cites as empirically standard
// across Azure AI Search and OpenSearch.
const kRRF = 60

// ChunkStore is the subset of storage.Store the pipeline needs once it
// has a final chunk_id ordering: bodies for the response, and vectors
// for the MMR diversity term.
type ChunkStore interface {
	FetchChunks(chunkIDs []string, preserveOrder bool) ([]model.Chunk, error)
	FetchEmbeddings(chunkIDs []string) (map[string][]float32, error)
}

// GraphExpander looks up a chunk's direct link-graph neighbors, letting
// the pipeline optionally pull in import/definition-adjacent chunks
// alongside a hit. Satisfied by *linkgraph.Graph.
type GraphExpander interface {
	Targets(chunkID string) ([]string, error)
	Sources(chunkID string) ([]string, error)
}

// graphExpansionFraction scales a neighbor's injected score off the hit
// that pulled it in: a linked chunk is relevant context, not necessarily
// as relevant as what the providers themselves ranked.
const graphExpansionFraction = 0.5

// maxGraphNeighborsPerHit bounds how many neighbors one hit can pull in,
// so one hub chunk can't flood the pool.
const maxGraphNeighborsPerHit = 3

// WeightedProvider pairs a Provider with its configured fusion weight.
type WeightedProvider struct {
	Provider provider.Provider
	Weight   float64
}

// Pipeline is the query-time composition of providers, RRF fusion, MMR
// rerank and token-budget enforcement (spec's SearchPipeline).
type Pipeline struct {
	providers         []WeightedProvider
	store             ChunkStore
	graph             GraphExpander
	mmrLambda         float64
	minScoreThreshold float64
	rerankEnabled     bool
	defaultMaxTokens  int
	reserveForPrompt  int
}

// New builds a Pipeline from its providers and the query/budget config
// sections (mirroring config.Default()'s Query and Budget blocks).
func New(providers []WeightedProvider, store ChunkStore, query config.QueryConfig, budget config.BudgetConfig) *Pipeline {
	return &Pipeline{
		providers:         providers,
		store:             store,
		mmrLambda:         query.MMRLambda,
		minScoreThreshold: query.MinScoreThreshold,
		rerankEnabled:     query.RerankEnabled,
		defaultMaxTokens:  budget.DefaultMaxTokens,
		reserveForPrompt:  budget.ReserveForPrompt,
	}
}

// SetGraphExpander wires an optional link graph into the pipeline. Nil
// (the default) skips graph expansion entirely.
func (p *Pipeline) SetGraphExpander(g GraphExpander) {
	p.graph = g
}

// Request is one query call's parameters.
type Request struct {
	Query     string
	K         int
	MaxTokens int // 0 uses the configured default
	Filter    model.Filter
}

// Hit is one ranked, budget-accepted result.
type Hit struct {
	Chunk                model.Chunk
	Score                float64
	ProviderContributions map[string]float64
}

// Result is a completed query: ordered hits plus fan-out metadata.
type Result struct {
	Hits     []Hit
	Warnings []string
}

// fused is one chunk_id's RRF state while providers are being merged.
type fused struct {
	chunkID       string
	score         float64
	contributions map[string]float64
}

// Query runs the full pipeline: fan out, RRF fuse, MMR rerank, budget.
// ctx's deadline (if any) is honored per-provider: a provider that has
// not returned when ctx is done contributes nothing, and a warning is
// recorded rather than the query failing outright.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Result, error) {
	if req.K <= 0 {
		req.K = 10
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.defaultMaxTokens
	}

	kPrime := req.K * 3
	if kPrime > 100 {
		kPrime = 100
	}

	perProvider, warnings := p.fanOut(ctx, req.Query, req.Filter, kPrime)

	pool := p.rrfFuse(perProvider)

	poolSize := req.K * 2
	if poolSize > 50 {
		poolSize = 50
	}
	if len(pool) > poolSize {
		pool = pool[:poolSize]
	}

	var selected []fused
	if p.rerankEnabled {
		selected = p.mmrRerank(pool, req.K)
	} else {
		selected = p.topKAboveThreshold(pool, req.K)
	}

	if p.graph != nil {
		selected = p.expandWithGraph(selected)
	}

	hits, err := p.enforceBudget(selected, maxTokens-p.reserveForPrompt)
	if err != nil {
		return nil, err
	}

	return &Result{Hits: hits, Warnings: warnings}, nil
}

// fanOut runs every enabled provider concurrently, each asked for up to
// k candidates, and returns each provider's ranked list keyed by name.
// A provider whose Search call errors or misses ctx's deadline is
// simply absent from the map; its absence becomes a warning.
func (p *Pipeline) fanOut(ctx context.Context, query string, filter model.Filter, k int) (map[string][]provider.Result, []string) {
	type outcome struct {
		name    string
		results []provider.Result
		err     error
	}

	resultsCh := make(chan outcome, len(p.providers))
	var wg sync.WaitGroup

	for _, wp := range p.providers {
		wg.Add(1)
		go func(wp WeightedProvider) {
			defer wg.Done()
			res, err := wp.Provider.Search(ctx, query, filter, k)
			select {
			case resultsCh <- outcome{name: wp.Provider.Name(), results: res, err: err}:
			case <-ctx.Done():
			}
		}(wp)
	}
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	perProvider := make(map[string][]provider.Result, len(p.providers))
	var warnings []string
	seen := make(map[string]bool, len(p.providers))

	for {
		select {
		case out, ok := <-resultsCh:
			if !ok {
				for _, wp := range p.providers {
					name := wp.Provider.Name()
					if !seen[name] {
						warnings = append(warnings, fmt.Sprintf("provider %s did not return before the query deadline", name))
					}
				}
				return perProvider, warnings
			}
			seen[out.name] = true
			if out.err != nil {
				warnings = append(warnings, fmt.Sprintf("provider %s failed: %v", out.name, out.err))
				continue
			}
			perProvider[out.name] = out.results
		case <-ctx.Done():
			for _, wp := range p.providers {
				name := wp.Provider.Name()
				if !seen[name] {
					warnings = append(warnings, fmt.Sprintf("provider %s did not return before the query deadline", name))
				}
			}
			return perProvider, warnings
		}
	}
}

// rrfFuse merges per-provider ranked lists into one score_rrf-ordered
// slice, tie-breaking on chunk_id so fixed inputs always produce the
// same order.
func (p *Pipeline) rrfFuse(perProvider map[string][]provider.Result) []fused {
	byChunk := make(map[string]*fused)

	for _, wp := range p.providers {
		results, ok := perProvider[wp.Provider.Name()]
		if !ok {
			continue
		}
		for rank, r := range results {
			f, ok := byChunk[r.ChunkID]
			if !ok {
				f = &fused{chunkID: r.ChunkID, contributions: make(map[string]float64)}
				byChunk[r.ChunkID] = f
			}
			contribution := wp.Weight / float64(kRRF+rank+1)
			f.score += contribution
			f.contributions[wp.Provider.Name()] = contribution
		}
	}

	out := make([]fused, 0, len(byChunk))
	for _, f := range byChunk {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// topKAboveThreshold is the non-reranked path: take the RRF order
// as-is, still honoring minScoreThreshold against normalized relevance.
func (p *Pipeline) topKAboveThreshold(pool []fused, k int) []fused {
	maxScore := maxFusedScore(pool)
	var out []fused
	for _, f := range pool {
		if len(out) >= k {
			break
		}
		if relevance(f, maxScore) < p.minScoreThreshold {
			break
		}
		out = append(out, f)
	}
	return out
}

// mmrRerank greedily selects chunks maximizing
// λ·relevance(c,q) − (1−λ)·max_{s∈selected} sim(c,s), stopping at k
// selections or once the next candidate's relevance drops below
// minScoreThreshold.
func (p *Pipeline) mmrRerank(pool []fused, k int) []fused {
	if len(pool) == 0 {
		return nil
	}
	maxScore := maxFusedScore(pool)

	chunkIDs := make([]string, len(pool))
	for i, f := range pool {
		chunkIDs[i] = f.chunkID
	}
	vectors, err := p.store.FetchEmbeddings(chunkIDs)
	if err != nil || len(vectors) == 0 {
		// Embeddings unavailable: fall back to plain RRF order rather
		// than failing the whole query over a diversity nicety.
		return p.topKAboveThreshold(pool, k)
	}

	remaining := make([]fused, len(pool))
	copy(remaining, pool)
	var selected []fused
	var selectedVecs [][]float32

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		var bestMMR float64
		for i, f := range remaining {
			rel := relevance(f, maxScore)
			if rel < p.minScoreThreshold {
				continue
			}
			sim := 0.0
			if vec, ok := vectors[f.chunkID]; ok {
				for _, sv := range selectedVecs {
					if s := cosineSimilarity(vec, sv); s > sim {
						sim = s
					}
				}
			}
			mmr := p.mmrLambda*rel - (1-p.mmrLambda)*sim
			if bestIdx == -1 || mmr > bestMMR ||
				(mmr == bestMMR && f.chunkID < remaining[bestIdx].chunkID) {
				bestIdx = i
				bestMMR = mmr
			}
		}
		if bestIdx == -1 {
			break // every remaining candidate is below minScoreThreshold
		}
		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		if vec, ok := vectors[chosen.chunkID]; ok {
			selectedVecs = append(selectedVecs, vec)
		}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// expandWithGraph pulls each selected hit's direct link-graph neighbors
// (both import targets and referencing sources) into the result, scored
// as a fraction of the hit that pulled them in. A neighbor already
// present keeps its own score rather than being boosted or duplicated.
func (p *Pipeline) expandWithGraph(selected []fused) []fused {
	present := make(map[string]bool, len(selected))
	for _, f := range selected {
		present[f.chunkID] = true
	}

	out := append([]fused(nil), selected...)
	for _, hit := range selected {
		neighbors := p.graphNeighbors(hit.chunkID)
		added := 0
		for _, chunkID := range neighbors {
			if added >= maxGraphNeighborsPerHit {
				break
			}
			if present[chunkID] {
				continue
			}
			present[chunkID] = true
			added++
			out = append(out, fused{
				chunkID:       chunkID,
				score:         hit.score * graphExpansionFraction,
				contributions: map[string]float64{"graph": hit.score * graphExpansionFraction},
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// graphNeighbors merges a chunk's link targets and sources, logging
// nothing on error: a graph lookup failure should never fail the query,
// just skip expansion for that hit.
func (p *Pipeline) graphNeighbors(chunkID string) []string {
	var out []string
	if targets, err := p.graph.Targets(chunkID); err == nil {
		out = append(out, targets...)
	}
	if sources, err := p.graph.Sources(chunkID); err == nil {
		out = append(out, sources...)
	}
	return out
}

func maxFusedScore(pool []fused) float64 {
	max := 0.0
	for _, f := range pool {
		if f.score > max {
			max = f.score
		}
	}
	return max
}

func relevance(f fused, maxScore float64) float64 {
	if maxScore == 0 {
		return 0
	}
	return f.score / maxScore
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// enforceBudget fetches chunk bodies in selected order and keeps adding
// them until the next one would exceed maxTokens.
func (p *Pipeline) enforceBudget(selected []fused, maxTokens int) ([]Hit, error) {
	if len(selected) == 0 {
		return nil, nil
	}
	chunkIDs := make([]string, len(selected))
	byID := make(map[string]fused, len(selected))
	for i, f := range selected {
		chunkIDs[i] = f.chunkID
		byID[f.chunkID] = f
	}

	chunks, err := p.store.FetchChunks(chunkIDs, true)
	if err != nil {
		return nil, fmt.Errorf("search pipeline: fetching chunk bodies: %w", err)
	}

	var hits []Hit
	tokens := 0
	for _, c := range chunks {
		if maxTokens > 0 && tokens+c.TokenCount > maxTokens {
			break
		}
		f := byID[c.ID]
		hits = append(hits, Hit{Chunk: c, Score: f.score, ProviderContributions: f.contributions})
		tokens += c.TokenCount
	}
	return hits, nil
}
