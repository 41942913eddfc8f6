// Package model defines the domain types shared by every Context Engine
// component: files, chunks, embeddings, symbols, links and bootstrap
// progress rows. These are lightweight data-transfer structs, not an ORM —
// the storage package owns their persisted shape.
package model

import "time"

// FileStatus tracks a File's position in the indexing lifecycle.
type FileStatus string

const (
	FileStatusPending  FileStatus = "PENDING"
	FileStatusIndexed  FileStatus = "INDEXED"
	FileStatusOutdated FileStatus = "OUTDATED"
	FileStatusError    FileStatus = "ERROR"
)

// File is one record per currently-known source file.
type File struct {
	ID             int64
	RelPath        string
	Language       string
	SizeBytes      int64
	ContentHash    string
	LastModifiedMs int64
	IndexedAtMs    int64
	Status         FileStatus
	IsDeleted      bool
}

// ChunkKind classifies the origin/shape of a Chunk.
type ChunkKind string

const (
	ChunkKindCodeClass    ChunkKind = "CODE_CLASS"
	ChunkKindCodeFunction ChunkKind = "CODE_FUNCTION"
	ChunkKindCodeBlock    ChunkKind = "CODE_BLOCK"
	ChunkKindDocSection   ChunkKind = "DOC_SECTION"
	ChunkKindDocParagraph ChunkKind = "DOC_PARAGRAPH"
	ChunkKindText         ChunkKind = "TEXT"
)

// Chunk is a contiguous text span of a file, produced by the Chunker.
type Chunk struct {
	ID         string // globally unique, assigned by the Indexer before insert
	FileID     int64
	Ordinal    int
	Kind       ChunkKind
	StartLine  int
	EndLine    int
	ByteStart  int
	ByteEnd    int
	TokenCount int
	Text       string
	Summary    string
}

// Embedding is the single vector attached to a Chunk.
type Embedding struct {
	ChunkID  string
	Dim      int
	Vector   []float32
	ModelTag string
}

// SymbolKind classifies a Symbol row.
type SymbolKind string

const (
	SymbolKindClass    SymbolKind = "CLASS"
	SymbolKindFunction SymbolKind = "FUNCTION"
	SymbolKindMethod   SymbolKind = "METHOD"
	SymbolKindVariable SymbolKind = "VARIABLE"
	SymbolKindHeading  SymbolKind = "HEADING"
)

// Symbol is a coarse symbol-table entry extracted from a Chunk.
type Symbol struct {
	ID            string
	ChunkID       string
	Name          string
	Kind          SymbolKind
	QualifiedName string
}

// Link is a directional reference between two chunks (e.g. import -> definition).
type Link struct {
	ID             string
	SourceChunkID  string
	TargetChunkID  string
	Relation       string
}

// BootstrapState tracks a BootstrapProgress row's lifecycle.
type BootstrapState string

const (
	BootstrapPending    BootstrapState = "PENDING"
	BootstrapInProgress BootstrapState = "IN_PROGRESS"
	BootstrapDone       BootstrapState = "DONE"
	BootstrapFailed     BootstrapState = "FAILED"
)

// BootstrapProgress is resumable scan state for one candidate path.
type BootstrapProgress struct {
	RelPath     string
	EnqueuedMs  int64
	State       BootstrapState
	Attempts    int
}

// NowMs returns the current time as Unix milliseconds. Centralized so
// callers never scatter time.Now().UnixMilli() across the codebase.
func NowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
