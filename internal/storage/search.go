package storage

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/agentfusion/contextengine/internal/model"
)

// Match is one ranked (chunk_id, score) pair, common to every provider's
// backing search. Higher score is always better.
type Match struct {
	ChunkID string
	Score   float64
}

// SearchVector ranks chunks by cosine similarity to queryVec.
func (s *Store) SearchVector(queryVec []float32, filter model.Filter, k int) ([]Match, error) {
	fetch := k
	if !filter.IsZero() {
		fetch = k * 8 // over-fetch so post-filtering still has k candidates
		if fetch > 500 {
			fetch = 500
		}
	}
	raw, err := QueryVectorSimilarity(s.db, queryVec, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return s.applyFilter(raw2matches(raw), filter, k)
}

func raw2matches(vm []VectorMatch) []Match {
	out := make([]Match, len(vm))
	for i, v := range vm {
		out[i] = Match{ChunkID: v.ChunkID, Score: v.Score}
	}
	return out
}

// SearchFullText ranks chunks by BM25 relevance to query.
func (s *Store) SearchFullText(query string, filter model.Filter, k int) ([]Match, error) {
	fetch := k
	if !filter.IsZero() {
		fetch = k * 8
		if fetch > 500 {
			fetch = 500
		}
	}
	raw, err := QueryFullText(s.db, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	out := make([]Match, len(raw))
	for i, r := range raw {
		out[i] = Match{ChunkID: r.ChunkID, Score: r.Score}
	}
	return s.applyFilter(out, filter, k)
}

// SearchSymbol ranks chunks whose symbols match the given name tokens.
// Scoring is the caller's responsibility (the symbol provider computes
// the exact/prefix-weighted score); the Store only returns candidate
// chunks containing any symbol whose name contains one of the tokens.
func (s *Store) SearchSymbol(tokens []string, filter model.Filter, limit int) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	var chunkIDs []string

	stmt, err := s.db.Prepare("SELECT DISTINCT chunk_id FROM symbols WHERE name LIKE ? LIMIT ?")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare symbol query: %w", err)
	}
	defer stmt.Close()

	for _, tok := range tokens {
		rows, err := stmt.Query("%"+tok+"%", limit)
		if err != nil {
			return nil, fmt.Errorf("symbol search failed: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan symbol result: %w", err)
			}
			if !seen[id] {
				seen[id] = true
				chunkIDs = append(chunkIDs, id)
			}
		}
		rows.Close()
	}
	return chunkIDs, nil
}

// FetchEmbeddings loads the stored vectors for chunkIDs, keyed by chunk_id.
func (s *Store) FetchEmbeddings(chunkIDs []string) (map[string][]float32, error) {
	return FetchEmbeddings(s.db, chunkIDs)
}

// FetchChunks loads full Chunk+File data for the given IDs. When
// preserveOrder is true, the result is reordered to match chunkIDs
// exactly (missing IDs are simply absent, never zero-valued).
func (s *Store) FetchChunks(chunkIDs []string, preserveOrder bool) ([]model.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(chunkIDs)
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT chunk_id, file_id, ordinal, kind, start_line, end_line, byte_start, byte_end, token_count, text, summary
		FROM chunks WHERE chunk_id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]model.Chunk, len(chunkIDs))
	for rows.Next() {
		var c model.Chunk
		var kind string
		if err := rows.Scan(&c.ID, &c.FileID, &c.Ordinal, &kind, &c.StartLine, &c.EndLine, &c.ByteStart, &c.ByteEnd, &c.TokenCount, &c.Text, &c.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Kind = model.ChunkKind(kind)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !preserveOrder {
		out := make([]model.Chunk, 0, len(byID))
		for _, c := range byID {
			out = append(out, c)
		}
		return out, nil
	}

	out := make([]model.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// applyFilter drops matches whose chunk fails filter, trimming to k.
func (s *Store) applyFilter(matches []Match, filter model.Filter, k int) ([]Match, error) {
	if filter.IsZero() {
		if len(matches) > k {
			matches = matches[:k]
		}
		return matches, nil
	}

	pathGlobs := compileGlobs(filter.Paths)
	excludeGlobs := compileGlobs(filter.ExcludePatterns)
	langSet := toSet(filter.Languages)
	kindSet := make(map[model.ChunkKind]bool, len(filter.Kinds))
	for _, kind := range filter.Kinds {
		kindSet[kind] = true
	}

	out := make([]Match, 0, k)
	for _, m := range matches {
		if len(out) >= k {
			break
		}
		ok, err := s.chunkPasses(m.ChunkID, pathGlobs, excludeGlobs, langSet, kindSet)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) chunkPasses(chunkID string, pathGlobs, excludeGlobs []glob.Glob, langSet map[string]bool, kindSet map[model.ChunkKind]bool) (bool, error) {
	var relPath, language, kind string
	err := s.db.QueryRow(`
		SELECT f.rel_path, f.language, c.kind
		FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id = ?
	`, chunkID).Scan(&relPath, &language, &kind)
	if err != nil {
		return false, fmt.Errorf("failed to load chunk %s for filtering: %w", chunkID, err)
	}

	if len(pathGlobs) > 0 && !matchesAnyGlob(pathGlobs, relPath) {
		return false, nil
	}
	if matchesAnyGlob(excludeGlobs, relPath) {
		return false, nil
	}
	if len(langSet) > 0 && !langSet[language] {
		return false, nil
	}
	if len(kindSet) > 0 && !kindSet[model.ChunkKind(kind)] {
		return false, nil
	}
	return true, nil
}

// FilterChunkIDs keeps only the chunk IDs that pass filter, preserving
// input order. Used by providers (e.g. the symbol provider) whose
// backing index has no native path/language/kind filtering of its own.
func (s *Store) FilterChunkIDs(chunkIDs []string, filter model.Filter) ([]string, error) {
	if filter.IsZero() {
		return chunkIDs, nil
	}

	pathGlobs := compileGlobs(filter.Paths)
	excludeGlobs := compileGlobs(filter.ExcludePatterns)
	langSet := toSet(filter.Languages)
	kindSet := make(map[model.ChunkKind]bool, len(filter.Kinds))
	for _, kind := range filter.Kinds {
		kindSet[kind] = true
	}

	out := make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ok, err := s.chunkPasses(id, pathGlobs, excludeGlobs, langSet, kindSet)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func compileGlobs(patterns []string) []glob.Glob {
	var globs []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}
	return globs
}

func matchesAnyGlob(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
