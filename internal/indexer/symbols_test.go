package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/model"
)

func TestExtractSymbols_GoFunctionsAndTypes(t *testing.T) {
	chunk := model.Chunk{ID: "c1", Text: "func Parse(s string) error {\n\treturn nil\n}\n\ntype Config struct {\n\tName string\n}\n"}

	symbols := extractSymbols(chunk, "go")

	var names []string
	for _, s := range symbols {
		names = append(names, s.Name)
		assert.Equal(t, "c1", s.ChunkID)
		assert.NotEmpty(t, s.ID)
	}
	assert.Contains(t, names, "Parse")
	assert.Contains(t, names, "Config")
}

func TestExtractSymbols_GoMethodReceiverIsIgnoredForName(t *testing.T) {
	chunk := model.Chunk{ID: "c1", Text: "func (p *Parser) Run() {}\n"}
	symbols := extractSymbols(chunk, "go")
	require.NotEmpty(t, symbols)
	assert.Equal(t, "Run", symbols[0].Name)
	assert.Equal(t, model.SymbolKindFunction, symbols[0].Kind)
}

func TestExtractSymbols_PythonClassesAndFunctions(t *testing.T) {
	chunk := model.Chunk{ID: "c2", Text: "class Widget:\n    def render(self):\n        pass\n\ndef helper():\n    pass\n"}

	symbols := extractSymbols(chunk, "python")

	var names []string
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "render")
	assert.Contains(t, names, "helper")
}

func TestExtractSymbols_MarkdownHeadings(t *testing.T) {
	chunk := model.Chunk{ID: "c3", Text: "# Title\n\nSome text.\n\n## Subsection\n"}

	symbols := extractSymbols(chunk, "markdown")

	require.Len(t, symbols, 2)
	assert.Equal(t, "Title", symbols[0].Name)
	assert.Equal(t, model.SymbolKindHeading, symbols[0].Kind)
	assert.Equal(t, "Subsection", symbols[1].Name)
}

func TestExtractSymbols_UnknownLanguageReturnsNil(t *testing.T) {
	chunk := model.Chunk{ID: "c4", Text: "whatever content"}
	assert.Nil(t, extractSymbols(chunk, "rust"))
}

func TestExtractSymbols_TypeScriptClassesAndFunctions(t *testing.T) {
	chunk := model.Chunk{ID: "c5", Text: "export class Service {}\n\nfunction build() {}\n"}

	symbols := extractSymbols(chunk, "typescript")

	var names []string
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Service")
	assert.Contains(t, names, "build")
}
