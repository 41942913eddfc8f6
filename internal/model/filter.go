package model

// Filter narrows a provider search to a subset of chunks. Empty slices
// mean "no restriction" on that dimension.
type Filter struct {
	Paths           []string // exact rel_paths or glob patterns
	Languages       []string
	Kinds           []ChunkKind
	ExcludePatterns []string // glob patterns; a match excludes the chunk
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return len(f.Paths) == 0 && len(f.Languages) == 0 && len(f.Kinds) == 0 && len(f.ExcludePatterns) == 0
}
