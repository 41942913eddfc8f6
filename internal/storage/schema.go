package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSchema creates every table, index, and virtual table the Store
// needs. Uses a transaction for the core tables; FTS5 and vec0 virtual
// tables must be created outside a transaction, so they run after commit.
//
// Must be called with PRAGMA foreign_keys = ON already set on the
// connection. The sqlite-vec extension must be registered (InitVectorExtension)
// before this runs.
func CreateSchema(db *sql.DB, dim int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"files", createFilesTable},
		{"chunks", createChunksTable},
		{"symbols", createSymbolsTable},
		{"links", createLinksTable},
		{"bootstrap_progress", createBootstrapProgressTable},
		{"usage_metrics", createUsageMetricsTable},
		{"cache_metadata", createCacheMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	if err := CreateFTSIndex(db); err != nil {
		return fmt.Errorf("failed to create FTS index: %w", err)
	}
	if err := CreateVectorIndex(db, dim); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	tx, err = db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	bootstrapSQL := `
		INSERT INTO cache_metadata (key, value, updated_at) VALUES
			('schema_version', '1', ?),
			('embedding_dimensions', ?, ?)
	`
	if _, err := tx.Exec(bootstrapSQL, now, fmt.Sprintf("%d", dim), now); err != nil {
		return fmt.Errorf("failed to bootstrap cache_metadata: %w", err)
	}

	return tx.Commit()
}

// GetSchemaVersion retrieves the schema version, or "0" for a fresh database.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check cache_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM cache_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in cache_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

const createFilesTable = `
CREATE TABLE files (
    file_id          INTEGER PRIMARY KEY AUTOINCREMENT,
    rel_path         TEXT NOT NULL,
    language         TEXT NOT NULL,
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    content_hash     TEXT NOT NULL,
    last_modified_ms INTEGER NOT NULL,
    indexed_at_ms    INTEGER NOT NULL,
    status           TEXT NOT NULL DEFAULT 'PENDING',
    is_deleted       INTEGER NOT NULL DEFAULT 0
)
`

const createChunksTable = `
CREATE TABLE chunks (
    chunk_id    TEXT PRIMARY KEY,
    file_id     INTEGER NOT NULL,
    ordinal     INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    start_line  INTEGER NOT NULL,
    end_line    INTEGER NOT NULL,
    byte_start  INTEGER NOT NULL,
    byte_end    INTEGER NOT NULL,
    token_count INTEGER NOT NULL,
    text        TEXT NOT NULL,
    summary     TEXT NOT NULL DEFAULT '',
    model_tag   TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (file_id) REFERENCES files(file_id) ON DELETE CASCADE,
    UNIQUE (file_id, ordinal)
)
`

const createSymbolsTable = `
CREATE TABLE symbols (
    symbol_id      TEXT PRIMARY KEY,
    chunk_id       TEXT NOT NULL,
    name           TEXT NOT NULL,
    kind           TEXT NOT NULL,
    qualified_name TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
)
`

const createLinksTable = `
CREATE TABLE links (
    link_id         TEXT PRIMARY KEY,
    source_chunk_id TEXT NOT NULL,
    target_chunk_id TEXT NOT NULL,
    relation        TEXT NOT NULL,
    FOREIGN KEY (source_chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE,
    FOREIGN KEY (target_chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
)
`

const createBootstrapProgressTable = `
CREATE TABLE bootstrap_progress (
    rel_path      TEXT PRIMARY KEY,
    enqueued_at_ms INTEGER NOT NULL,
    state         TEXT NOT NULL DEFAULT 'PENDING',
    attempts      INTEGER NOT NULL DEFAULT 0
)
`

// usage_metrics holds a per-chunk hit counter. The Store creates the
// table and deletes a chunk's row whenever the chunk is replaced or
// deleted; no component writes or reads the counters.
const createUsageMetricsTable = `
CREATE TABLE usage_metrics (
    chunk_id     TEXT PRIMARY KEY,
    hit_count    INTEGER NOT NULL DEFAULT 0,
    last_hit_ms  INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
)
`

const createCacheMetadataTable = `
CREATE TABLE cache_metadata (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

func getAllIndexes() []string {
	return []string{
		"CREATE UNIQUE INDEX idx_files_rel_path_live ON files(rel_path) WHERE is_deleted = 0",
		"CREATE INDEX idx_files_status ON files(status)",
		"CREATE INDEX idx_files_language ON files(language)",

		"CREATE INDEX idx_chunks_file_id ON chunks(file_id)",
		"CREATE INDEX idx_chunks_kind ON chunks(kind)",

		"CREATE INDEX idx_symbols_chunk_id ON symbols(chunk_id)",
		"CREATE INDEX idx_symbols_name ON symbols(name)",
		"CREATE INDEX idx_symbols_kind ON symbols(kind)",

		"CREATE INDEX idx_links_source ON links(source_chunk_id)",
		"CREATE INDEX idx_links_target ON links(target_chunk_id)",

		"CREATE INDEX idx_bootstrap_progress_state ON bootstrap_progress(state)",
	}
}
