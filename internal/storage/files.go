package storage

import (
	"database/sql"
	"fmt"

	"github.com/agentfusion/contextengine/internal/model"
)

// GetFileByPath returns the live file row for relPath, or (nil, nil) if
// it has no non-tombstoned row.
func (s *Store) GetFileByPath(relPath string) (*model.File, error) {
	row := s.db.QueryRow(`
		SELECT file_id, rel_path, language, size_bytes, content_hash, last_modified_ms, indexed_at_ms, status, is_deleted
		FROM files WHERE rel_path = ? AND is_deleted = 0
	`, relPath)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", relPath, err)
	}
	return f, nil
}

// ListAllFiles returns every non-tombstoned file, ordered by rel_path for
// deterministic diffing.
func (s *Store) ListAllFiles() ([]model.File, error) {
	rows, err := s.db.Query(`
		SELECT file_id, rel_path, language, size_bytes, content_hash, last_modified_ms, indexed_at_ms, status, is_deleted
		FROM files WHERE is_deleted = 0 ORDER BY rel_path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row scanner) (*model.File, error) {
	var f model.File
	var status string
	var isDeleted bool
	if err := row.Scan(&f.ID, &f.RelPath, &f.Language, &f.SizeBytes, &f.ContentHash, &f.LastModifiedMs, &f.IndexedAtMs, &status, &isDeleted); err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	f.IsDeleted = isDeleted
	return &f, nil
}

// MarkError flags a file as failed indexing without touching its existing
// chunks, per the Indexer's "never drop the last good copy" contract.
func (s *Store) MarkError(relPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec("UPDATE files SET status = ? WHERE rel_path = ? AND is_deleted = 0", model.FileStatusError, relPath)
	if err != nil {
		return fmt.Errorf("failed to mark %s as errored: %w", relPath, err)
	}
	return nil
}
