package storage

import (
	"database/sql"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentfusion/contextengine/internal/model"
)

// InitVectorExtension registers the sqlite-vec extension with every future
// connection. Must run once, before opening any database handle.
func InitVectorExtension() {
	sqlite_vec.Auto()
}

// CreateVectorIndex creates the vec0 virtual table backing searchVector.
// It mirrors chunks by chunk_id but stores only the embedding: joins
// against chunks fetch the rest of a result.
func CreateVectorIndex(db *sql.DB, dim int) error {
	createSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dim)

	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// UpsertVectors replaces the vector rows for the given embeddings. vec0
// virtual tables do not support INSERT OR REPLACE, so each row is deleted
// before it is reinserted.
func UpsertVectors(tx *sql.Tx, embeddings []model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	deleteStmt, err := tx.Prepare("DELETE FROM chunks_vec WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare vector delete: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.Prepare("INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert: %w", err)
	}
	defer insertStmt.Close()

	for _, e := range embeddings {
		if _, err := deleteStmt.Exec(e.ChunkID); err != nil {
			return fmt.Errorf("failed to delete vector for chunk %s: %w", e.ChunkID, err)
		}
		embBytes, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding for chunk %s: %w", e.ChunkID, err)
		}
		if _, err := insertStmt.Exec(e.ChunkID, embBytes); err != nil {
			return fmt.Errorf("failed to insert vector for chunk %s: %w", e.ChunkID, err)
		}
	}
	return nil
}

// DeleteVectors removes vector rows for the given chunk IDs.
func DeleteVectors(tx *sql.Tx, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("DELETE FROM chunks_vec WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare vector delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete vector for chunk %s: %w", id, err)
		}
	}
	return nil
}

// FetchEmbeddings loads the stored vectors for chunkIDs, keyed by chunk_id.
// Missing IDs are simply absent from the result. Used by the MMR reranker,
// which needs raw vectors rather than a similarity ranking.
func FetchEmbeddings(db *sql.DB, chunkIDs []string) (map[string][]float32, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(chunkIDs)
	rows, err := db.Query(fmt.Sprintf(
		"SELECT chunk_id, embedding FROM chunks_vec WHERE chunk_id IN (%s)", placeholders,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(chunkIDs))
	for rows.Next() {
		var chunkID string
		var raw []byte
		if err := rows.Scan(&chunkID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := deserializeFloat32(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", chunkID, err)
		}
		out[chunkID] = vec
	}
	return out, rows.Err()
}

func deserializeFloat32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob: length %d not divisible by 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// VectorMatch is one ranked result from a vector similarity search.
type VectorMatch struct {
	ChunkID string
	Score   float64 // cosine similarity, higher is better
}

// QueryVectorSimilarity runs a KNN search over chunks_vec using cosine
// distance and converts it to a similarity score (1 - distance) so
// callers uniformly treat "higher is better" across all providers.
func QueryVectorSimilarity(db *sql.DB, queryVec []float32, limit int) ([]VectorMatch, error) {
	queryBytes, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := db.Query(`
		SELECT chunk_id, vec_distance_cosine(embedding, ?) as distance
		FROM chunks_vec
		ORDER BY distance
		LIMIT ?
	`, queryBytes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}
	defer rows.Close()

	var results []VectorMatch
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector result: %w", err)
		}
		results = append(results, VectorMatch{ChunkID: chunkID, Score: 1 - distance})
	}
	return results, rows.Err()
}
