package indexer

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/agentfusion/contextengine/internal/model"
)

// referenceWord finds a symbol's name as a whole word, used to spot a
// chunk mentioning a name some other chunk in the same file defines.
func referenceWord(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

// symbolPattern pairs a regex with the SymbolKind it produces. Regex-based
// extraction is explicitly acceptable per the spec; a full AST-backed
// symbol table is out of scope for this pass (the chunker already did the
// precise AST work needed for chunk boundaries).
type symbolPattern struct {
	re   *regexp.Regexp
	kind model.SymbolKind
}

var patternsByLanguage = map[string][]symbolPattern{
	"go": {
		{regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)`), model.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)`), model.SymbolKindClass},
	},
	"java": {
		{regexp.MustCompile(`(?m)\b(?:class|interface|enum)\s+(\w+)`), model.SymbolKindClass},
		{regexp.MustCompile(`(?m)\b(?:public|private|protected)\s+[\w<>\[\],\s]+?\s+(\w+)\s*\(`), model.SymbolKindMethod},
	},
	"python": {
		{regexp.MustCompile(`(?m)^class\s+(\w+)`), model.SymbolKindClass},
		{regexp.MustCompile(`(?m)^def\s+(\w+)`), model.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^[ \t]+def\s+(\w+)`), model.SymbolKindMethod},
	},
	"typescript": {
		{regexp.MustCompile(`(?m)\bclass\s+(\w+)`), model.SymbolKindClass},
		{regexp.MustCompile(`(?m)\bfunction\s+(\w+)`), model.SymbolKindFunction},
	},
	"javascript": {
		{regexp.MustCompile(`(?m)\bclass\s+(\w+)`), model.SymbolKindClass},
		{regexp.MustCompile(`(?m)\bfunction\s+(\w+)`), model.SymbolKindFunction},
	},
	"c": {
		{regexp.MustCompile(`(?m)^\w[\w\s\*]*?\b(\w+)\s*\([^;{]*\)\s*\{`), model.SymbolKindFunction},
	},
	"markdown": {
		{regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`), model.SymbolKindHeading},
	},
}

// extractSymbols finds coarse symbol occurrences within one chunk's text.
func extractSymbols(chunk model.Chunk, language string) []model.Symbol {
	patterns := patternsByLanguage[language]
	if len(patterns) == 0 {
		return nil
	}

	var symbols []model.Symbol
	for _, p := range patterns {
		for _, match := range p.re.FindAllStringSubmatch(chunk.Text, -1) {
			if len(match) < 2 {
				continue
			}
			symbols = append(symbols, model.Symbol{
				ID:      uuid.NewString(),
				ChunkID: chunk.ID,
				Name:    match[1],
				Kind:    p.kind,
			})
		}
	}
	return symbols
}

// extractLinks finds same-file "reference" edges: a chunk that mentions
// another chunk's defined symbol name gets a Link from the mentioning
// chunk to the defining one. This is a coarse, same-file approximation
// of import/definition edges — good enough to populate the link graph
// without a second cross-file resolution pass.
func extractLinks(chunks []model.Chunk, symbols []model.Symbol) []model.Link {
	if len(symbols) == 0 || len(chunks) < 2 {
		return nil
	}

	var links []model.Link
	for _, sym := range symbols {
		if len(sym.Name) < 3 {
			continue // too short to avoid noisy incidental matches
		}
		re := referenceWord(sym.Name)
		for _, chunk := range chunks {
			if chunk.ID == sym.ChunkID {
				continue
			}
			if !re.MatchString(chunk.Text) {
				continue
			}
			links = append(links, model.Link{
				ID:            uuid.NewString(),
				SourceChunkID: chunk.ID,
				TargetChunkID: sym.ChunkID,
				Relation:      "reference",
			})
		}
	}
	return links
}
