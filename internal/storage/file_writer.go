// Package storage is the Store: the sole mutator of persisted files,
// chunks, embeddings, symbols and links. Every other component calls
// into it; none hold long-lived references to rows.
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentfusion/contextengine/internal/model"
)

// Store wraps a single SQLite connection. Writers are serialized through
// writeMu (a single writer lane); reads may run concurrently with a
// writer since SQLite's WAL journal mode tolerates it.
type Store struct {
	db      *sql.DB
	dim     int
	writeMu sync.Mutex
}

// Open creates (or reuses) the database at path and ensures its schema is
// current. dim is the configured embedding dimensionality.
func Open(path string, dim int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	version, err := GetSchemaVersion(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == "0" {
		if err := CreateSchema(db, dim); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, dim: dim}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceFileArtifacts is the Store's critical operation: it atomically
// swaps a file's chunks, embeddings and symbols for a freshly indexed
// set. If the file already has rows, every owned row is deleted in
// strict dependency order first (links, then symbols, then embeddings,
// then usage_metrics, then chunks) because SQLite foreign keys here only
// cascade within the chunks/symbols/links subgraph when the parent chunk
// itself is deleted — and chunks are being replaced wholesale with fresh
// IDs, not updated in place, so the cascade must be driven explicitly.
func (s *Store) ReplaceFileArtifacts(file model.File, chunks []model.Chunk, embeddings []model.Embedding, symbols []model.Symbol, links []model.Link) (fileID int64, replacedChunkIDs []string, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	existingID, existingChunkIDs, err := existingFile(tx, file.RelPath)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to look up existing file %s: %w", file.RelPath, err)
	}

	if existingID != 0 {
		if err := deleteOwnedRows(tx, existingChunkIDs); err != nil {
			return 0, nil, fmt.Errorf("failed to clear prior artifacts for %s: %w", file.RelPath, err)
		}
		if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", existingID); err != nil {
			return 0, nil, fmt.Errorf("failed to delete prior chunks for %s: %w", file.RelPath, err)
		}
		fileID = existingID
	}

	fileID, err = upsertFile(tx, fileID, file)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to upsert file %s: %w", file.RelPath, err)
	}

	if err := insertChunks(tx, fileID, chunks); err != nil {
		return 0, nil, fmt.Errorf("failed to insert chunks for %s: %w", file.RelPath, err)
	}
	if err := insertEmbeddings(tx, embeddings); err != nil {
		return 0, nil, fmt.Errorf("failed to insert embeddings for %s: %w", file.RelPath, err)
	}
	if err := insertSymbols(tx, symbols); err != nil {
		return 0, nil, fmt.Errorf("failed to insert symbols for %s: %w", file.RelPath, err)
	}
	if err := insertLinks(tx, links); err != nil {
		return 0, nil, fmt.Errorf("failed to insert links for %s: %w", file.RelPath, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit replace for %s: %w", file.RelPath, err)
	}
	return fileID, existingChunkIDs, nil
}

// existingFile returns the file_id and its current chunk IDs, or (0, nil)
// if relPath has no live row.
func existingFile(tx *sql.Tx, relPath string) (int64, []string, error) {
	var fileID int64
	err := tx.QueryRow("SELECT file_id FROM files WHERE rel_path = ? AND is_deleted = 0", relPath).Scan(&fileID)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	rows, err := tx.Query("SELECT chunk_id FROM chunks WHERE file_id = ?", fileID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, err
		}
		ids = append(ids, id)
	}
	return fileID, ids, rows.Err()
}

// deleteOwnedRows removes links, symbols, embeddings and usage_metrics
// referencing chunkIDs, in that order, per the Store's cascade contract.
func deleteOwnedRows(tx *sql.Tx, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders, args := inClause(chunkIDs)

	if _, err := tx.Exec(fmt.Sprintf(
		"DELETE FROM links WHERE source_chunk_id IN (%s) OR target_chunk_id IN (%s)",
		placeholders, placeholders,
	), append(append([]interface{}{}, args...), args...)...); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM symbols WHERE chunk_id IN (%s)", placeholders), args...); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}

	if err := DeleteVectors(tx, chunkIDs); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM usage_metrics WHERE chunk_id IN (%s)", placeholders), args...); err != nil {
		return fmt.Errorf("failed to delete usage metrics: %w", err)
	}

	if err := DeleteFTS(tx, chunkIDs); err != nil {
		return err
	}

	return nil
}

func inClause(ids []string) (string, []interface{}) {
	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

func upsertFile(tx *sql.Tx, existingID int64, file model.File) (int64, error) {
	if existingID != 0 {
		_, err := sq.Update("files").
			Set("language", file.Language).
			Set("size_bytes", file.SizeBytes).
			Set("content_hash", file.ContentHash).
			Set("last_modified_ms", file.LastModifiedMs).
			Set("indexed_at_ms", model.NowMs()).
			Set("status", model.FileStatusIndexed).
			Set("is_deleted", false).
			Where(sq.Eq{"file_id": existingID}).
			RunWith(tx).
			Exec()
		return existingID, err
	}

	res, err := sq.Insert("files").
		Columns("rel_path", "language", "size_bytes", "content_hash", "last_modified_ms", "indexed_at_ms", "status", "is_deleted").
		Values(file.RelPath, file.Language, file.SizeBytes, file.ContentHash, file.LastModifiedMs, model.NowMs(), model.FileStatusIndexed, false).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertChunks(tx *sql.Tx, fileID int64, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	builder := sq.Insert("chunks").Columns(
		"chunk_id", "file_id", "ordinal", "kind", "start_line", "end_line",
		"byte_start", "byte_end", "token_count", "text", "summary",
	)
	for _, c := range chunks {
		builder = builder.Values(c.ID, fileID, c.Ordinal, string(c.Kind), c.StartLine, c.EndLine, c.ByteStart, c.ByteEnd, c.TokenCount, c.Text, c.Summary)
	}
	_, err := builder.RunWith(tx).Exec()
	if err != nil {
		return err
	}

	for _, c := range chunks {
		if err := UpsertFTS(tx, c.ID, c.Text); err != nil {
			return err
		}
	}
	return nil
}

func insertEmbeddings(tx *sql.Tx, embeddings []model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	if err := UpsertVectors(tx, embeddings); err != nil {
		return err
	}
	stmt, err := tx.Prepare("UPDATE chunks SET model_tag = ? WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare model_tag update: %w", err)
	}
	defer stmt.Close()
	for _, e := range embeddings {
		if _, err := stmt.Exec(e.ModelTag, e.ChunkID); err != nil {
			return fmt.Errorf("failed to stamp model_tag for chunk %s: %w", e.ChunkID, err)
		}
	}
	return nil
}

func insertSymbols(tx *sql.Tx, symbols []model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	builder := sq.Insert("symbols").Columns("symbol_id", "chunk_id", "name", "kind", "qualified_name")
	for _, sym := range symbols {
		builder = builder.Values(sym.ID, sym.ChunkID, sym.Name, string(sym.Kind), sym.QualifiedName)
	}
	_, err := builder.RunWith(tx).Exec()
	return err
}

func insertLinks(tx *sql.Tx, links []model.Link) error {
	if len(links) == 0 {
		return nil
	}
	builder := sq.Insert("links").Columns("link_id", "source_chunk_id", "target_chunk_id", "relation")
	for _, l := range links {
		builder = builder.Values(l.ID, l.SourceChunkID, l.TargetChunkID, l.Relation)
	}
	_, err := builder.RunWith(tx).Exec()
	return err
}

// FetchAllLinks loads every live link row, for rebuilding the in-memory
// linkgraph.Graph after a bootstrap, rebuild or refresh.
func (s *Store) FetchAllLinks() ([]model.Link, error) {
	rows, err := s.db.Query("SELECT link_id, source_chunk_id, target_chunk_id, relation FROM links")
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		var l model.Link
		if err := rows.Scan(&l.ID, &l.SourceChunkID, &l.TargetChunkID, &l.Relation); err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// MarkDeleted tombstones a file and cascades the delete to its owned
// chunks, embeddings, symbols and links.
func (s *Store) MarkDeleted(relPath string) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	fileID, chunkIDs, err := existingFile(tx, relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %s: %w", relPath, err)
	}
	if fileID == 0 {
		return nil, tx.Commit()
	}

	if err := deleteOwnedRows(tx, chunkIDs); err != nil {
		return nil, fmt.Errorf("failed to clear artifacts for %s: %w", relPath, err)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return nil, fmt.Errorf("failed to delete chunks for %s: %w", relPath, err)
	}
	if _, err := tx.Exec("UPDATE files SET is_deleted = 1 WHERE file_id = ?", fileID); err != nil {
		return nil, fmt.Errorf("failed to tombstone file %s: %w", relPath, err)
	}

	return chunkIDs, tx.Commit()
}
