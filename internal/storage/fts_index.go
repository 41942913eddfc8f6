package storage

import (
	"database/sql"
	"fmt"
)

// CreateFTSIndex creates the FTS5 virtual table backing searchFullText.
// Separators add '.' and '_' to unicode61's defaults, so dotted and
// snake_case identifiers split into sub-tokens (user_id -> user, id).
// unicode61 casefolds but does not split camelCase: getUserById is
// indexed as the single token getuserbyid.
func CreateFTSIndex(db *sql.DB) error {
	createSQL := `
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			text,
			tokenize = "unicode61 separators '._'"
		)
	`
	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create FTS5 index: %w", err)
	}
	return nil
}

// UpsertFTS replaces the FTS rows for the given chunks. FTS5 has no native
// upsert, so each row is deleted before it is reinserted.
func UpsertFTS(tx *sql.Tx, chunkID, text string) error {
	if _, err := tx.Exec("DELETE FROM chunks_fts WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("failed to delete FTS entry for chunk %s: %w", chunkID, err)
	}
	if _, err := tx.Exec("INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)", chunkID, text); err != nil {
		return fmt.Errorf("failed to insert FTS entry for chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeleteFTS removes FTS rows for the given chunk IDs.
func DeleteFTS(tx *sql.Tx, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("DELETE FROM chunks_fts WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare FTS delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete FTS entry for chunk %s: %w", id, err)
		}
	}
	return nil
}

// FullTextMatch is one ranked result from a BM25 full-text search.
type FullTextMatch struct {
	ChunkID string
	Score   float64 // higher is better
}

// QueryFullText runs a BM25-ranked FTS5 match. SQLite's bm25() returns
// lower-is-better scores (it reports them negated internally for ORDER BY
// convenience); negate again so callers see higher-is-better like every
// other provider.
func QueryFullText(db *sql.DB, query string, limit int) ([]FullTextMatch, error) {
	rows, err := db.Query(`
		SELECT chunk_id, bm25(chunks_fts, 0.0, 1.0) as rank
		FROM chunks_fts
		WHERE chunks_fts.text MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query FTS index: %w", err)
	}
	defer rows.Close()

	var results []FullTextMatch
	for rows.Next() {
		var chunkID string
		var rank float64
		if err := rows.Scan(&chunkID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		results = append(results, FullTextMatch{ChunkID: chunkID, Score: -rank})
	}
	return results, rows.Err()
}
