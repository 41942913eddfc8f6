package storage

import "fmt"

// Stats summarizes the current index: total live files/chunks and a
// per-language file count, used by the CLI's `stats` command.
type Stats struct {
	TotalFiles     int
	TotalChunks    int
	ByLanguage     map[string]int
}

func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByLanguage: map[string]int{}}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM files WHERE is_deleted = 0").Scan(&stats.TotalFiles); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM chunks c JOIN files f ON f.file_id = c.file_id WHERE f.is_deleted = 0
	`).Scan(&stats.TotalChunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := s.db.Query("SELECT language, COUNT(*) FROM files WHERE is_deleted = 0 GROUP BY language")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by language: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		var count int
		if err := rows.Scan(&lang, &count); err != nil {
			return nil, fmt.Errorf("failed to scan language stat: %w", err)
		}
		stats.ByLanguage[lang] = count
	}
	return stats, rows.Err()
}
