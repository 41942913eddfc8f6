package chunker

import "strings"

// languageByExt maps a lowercase file extension (with leading dot) to the
// language tag used throughout config, chunking and storage.
var languageByExt = map[string]string{
	".md":         "markdown",
	".markdown":   "markdown",
	".mdx":        "markdown",
	".rst":        "rst",
	".go":         "go",
	".java":       "java",
	".ts":         "typescript",
	".tsx":        "tsx",
	".js":         "javascript",
	".jsx":        "jsx",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".py":         "python",
	".pyi":        "python",
	".c":          "c",
	".h":          "c",
}

// LanguageFromExt returns the language tag for ext (as returned by
// filepath.Ext, including the leading dot), or "text" if unrecognized.
func LanguageFromExt(ext string) string {
	if lang, ok := languageByExt[strings.ToLower(ext)]; ok {
		return lang
	}
	return "text"
}
