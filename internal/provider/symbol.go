package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/agentfusion/contextengine/internal/model"
)

// ChunkFilterer applies path/language/kind/exclude filtering to a
// candidate ID list. storage.Store.FilterChunkIDs satisfies this.
type ChunkFilterer interface {
	FilterChunkIDs(chunkIDs []string, filter model.Filter) ([]string, error)
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// SymbolProvider ranks chunks by how well their symbols' names match the
// query tokens, rebuilt incrementally as files are reindexed.
type SymbolProvider struct {
	mu     sync.RWMutex
	index  bleve.Index
	filter ChunkFilterer
}

type symbolDoc struct {
	Name    string `json:"name"`
	ChunkID string `json:"chunk_id"`
	Kind    string `json:"kind"`
}

// NewSymbolProvider builds an empty in-memory symbol index.
func NewSymbolProvider(filter ChunkFilterer) (*SymbolProvider, error) {
	index, err := bleve.NewMemOnly(buildSymbolMapping())
	if err != nil {
		return nil, fmt.Errorf("symbol provider: building bleve index: %w", err)
	}
	return &SymbolProvider{index: index, filter: filter}, nil
}

func buildSymbolMapping() *mapping.IndexMappingImpl {
	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = "standard"
	nameField.Store = true
	nameField.Index = true

	chunkIDField := bleve.NewTextFieldMapping()
	chunkIDField.Analyzer = "keyword"
	chunkIDField.Store = true
	chunkIDField.Index = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", nameField)
	doc.AddFieldMappingsAt("chunk_id", chunkIDField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// IndexSymbols upserts symbols into the index. Called after a file's
// artifacts are replaced, with the chunk IDs involved already cleared
// by DeleteByChunkIDs.
func (p *SymbolProvider) IndexSymbols(symbols []model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.index.NewBatch()
	for _, s := range symbols {
		doc := symbolDoc{Name: s.Name, ChunkID: s.ChunkID, Kind: string(s.Kind)}
		if err := batch.Index(s.ID, doc); err != nil {
			return fmt.Errorf("symbol provider: indexing %s: %w", s.ID, err)
		}
	}
	return p.index.Batch(batch)
}

// DeleteByChunkIDs removes every symbol belonging to any of chunkIDs,
// mirroring the Store's own cascade-delete-then-insert discipline.
func (p *SymbolProvider) DeleteByChunkIDs(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var toDelete []string
	for _, chunkID := range chunkIDs {
		q := bleve.NewMatchQuery(chunkID)
		q.SetField("chunk_id")
		req := bleve.NewSearchRequestOptions(q, 10000, 0, false)
		res, err := p.index.Search(req)
		if err != nil {
			return fmt.Errorf("symbol provider: finding symbols for %s: %w", chunkID, err)
		}
		for _, hit := range res.Hits {
			toDelete = append(toDelete, hit.ID)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}
	batch := p.index.NewBatch()
	for _, id := range toDelete {
		batch.Delete(id)
	}
	return p.index.Batch(batch)
}

func (p *SymbolProvider) Name() string { return "symbol" }

// Search tokenizes query and scores each candidate chunk by bleve's
// native relevance for a per-token (exact name match boosted 2x, OR
// prefix match boosted 1x) disjunction — an operationalization of the
// coarse "(exact*2 + prefix) / token_count" scoring rule using the
// library's own TF-IDF scoring rather than a hand-rolled counter.
func (p *SymbolProvider) Search(ctx context.Context, query string, filter model.Filter, k int) ([]Result, error) {
	tokens := tokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var subQueries []bleveQuery.Query
	for _, tok := range tokens {
		exact := bleve.NewMatchQuery(tok)
		exact.SetField("name")
		exact.SetBoost(2.0)

		prefix := bleve.NewPrefixQuery(strings.ToLower(tok))
		prefix.SetField("name")
		prefix.SetBoost(1.0)

		subQueries = append(subQueries, exact, prefix)
	}

	disjunction := bleve.NewDisjunctionQuery(subQueries...)
	req := bleve.NewSearchRequestOptions(disjunction, k*3, 0, false)
	req.Fields = []string{"chunk_id"}

	res, err := p.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("symbol provider: searching: %w", err)
	}

	best := map[string]float64{}
	order := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		chunkID, _ := hit.Fields["chunk_id"].(string)
		if chunkID == "" {
			continue
		}
		if _, seen := best[chunkID]; !seen {
			order = append(order, chunkID)
		}
		if hit.Score > best[chunkID] {
			best[chunkID] = hit.Score
		}
	}

	if p.filter != nil {
		order, err = p.filter.FilterChunkIDs(order, filter)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		if len(out) >= k {
			break
		}
		out = append(out, Result{ChunkID: id, Score: best[id]})
	}
	return out, nil
}
