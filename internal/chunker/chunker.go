// Package chunker splits file text into bounded, language-aware Chunks.
// Each strategy is a plain function registered by language; there is no
// type hierarchy, only a small dispatch table (per the composition-root
// style favored across the codebase).
package chunker

import (
	"strings"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

// strategy turns file text into ordered chunk drafts, ignoring ordinal and
// ID assignment (the caller fills those in).
type strategy func(text string, lc config.LanguageChunkingConfig) ([]draft, error)

// draft is a chunk before ordinal assignment.
type draft struct {
	kind      model.ChunkKind
	startLine int
	endLine   int
	byteStart int
	byteEnd   int
	text      string
	summary   string
}

// Chunker dispatches to a per-language strategy and stamps ordinals.
type Chunker struct {
	chunking config.ChunkingConfig
}

func New(chunking config.ChunkingConfig) *Chunker {
	return &Chunker{chunking: chunking}
}

// curlyBraceLanguages lists languages with a tree-sitter grammar wired in
// (java, typescript, c). javascript/jsx/tsx are routed through the
// typescript grammar, which parses them well enough for boundary
// detection; there is no dedicated javascript grammar in the dependency
// set.
var curlyBraceLanguages = map[string]bool{
	"java": true, "typescript": true, "javascript": true,
	"tsx": true, "jsx": true, "c": true,
}

// Chunk splits text for fileID, returning chunks in source order with
// dense ordinals starting at 0.
func (c *Chunker) Chunk(fileID int64, text string, language string) ([]model.Chunk, error) {
	lc := c.chunking.ForLanguage(language)

	var strat strategy
	switch {
	case language == "markdown" || language == "rst":
		strat = chunkMarkdown
	case language == "python":
		strat = chunkPython
	case curlyBraceLanguages[language]:
		strat = chunkCurlyBrace(language)
	default:
		strat = chunkPlainText
	}

	drafts, err := strat(text, lc)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.Chunk, 0, len(drafts))
	for i, d := range drafts {
		chunks = append(chunks, model.Chunk{
			FileID:     fileID,
			Ordinal:    i,
			Kind:       d.kind,
			StartLine:  d.startLine,
			EndLine:    d.endLine,
			ByteStart:  d.byteStart,
			ByteEnd:    d.byteEnd,
			TokenCount: EstimateTokens(d.text),
			Text:       d.text,
			Summary:    d.summary,
		})
	}
	return chunks, nil
}

// EstimateTokens approximates token count as chars/4, the convention used
// throughout the spec for budgeting.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// splitOverlong breaks a too-large draft at the nearest line boundary
// inside maxTokens, producing two or more drafts of the same kind.
func splitOverlong(d draft, maxTokens int) []draft {
	if EstimateTokens(d.text) <= maxTokens {
		return []draft{d}
	}

	lines := strings.Split(d.text, "\n")
	var out []draft
	var cur strings.Builder
	curStartLine := d.startLine
	lineNo := d.startLine
	byteOffset := d.byteStart

	flush := func(endLine int) {
		if cur.Len() == 0 {
			return
		}
		txt := cur.String()
		out = append(out, draft{
			kind:      d.kind,
			startLine: curStartLine,
			endLine:   endLine,
			byteStart: byteOffset,
			byteEnd:   byteOffset + len(txt),
			text:      txt,
			summary:   d.summary,
		})
		byteOffset += len(txt)
		cur.Reset()
	}

	for _, line := range lines {
		candidate := cur.Len() + len(line) + 1
		if cur.Len() > 0 && candidate/4 > maxTokens {
			flush(lineNo - 1)
			curStartLine = lineNo
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		lineNo++
	}
	flush(lineNo - 1)

	if len(out) == 0 {
		return []draft{d}
	}
	return out
}
