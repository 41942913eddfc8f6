package chunker

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

// chunkPython splits at top-level def/class, preserving the docstring with
// its enclosing function or class by keeping the whole node body intact.
func chunkPython(source string, lc config.LanguageChunkingConfig) ([]draft, error) {
	src := []byte(source)

	parser := sitter.NewParser()
	defer parser.Close()
	lang := sitter.NewLanguage(python.Language())
	parser.SetLanguage(lang)

	tree := parser.Parse(src, nil)
	if tree == nil {
		return chunkPlainText(source, lc)
	}
	defer tree.Close()

	root := tree.RootNode()
	var drafts []draft
	lastEnd := 0

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(uint(i))
		kind := child.Kind()
		if kind != "function_definition" && kind != "class_definition" {
			continue
		}

		start := int(child.StartByte())
		end := int(child.EndByte())
		text := string(src[start:end])
		chunkKind := model.ChunkKindCodeFunction
		if kind == "class_definition" {
			chunkKind = model.ChunkKindCodeClass
		}

		d := draft{
			kind:      chunkKind,
			startLine: int(child.StartPosition().Row) + 1,
			endLine:   int(child.EndPosition().Row) + 1,
			byteStart: start,
			byteEnd:   end,
			text:      text,
			summary:   pythonSignature(child, src),
		}
		drafts = append(drafts, splitOverlong(d, lc.MaxTokens)...)
		lastEnd = end
	}

	if len(drafts) == 0 {
		return chunkPlainText(source, lc)
	}
	if lastEnd < len(src) {
		trailing := strings.TrimSpace(string(src[lastEnd:]))
		if trailing != "" {
			d := draft{
				kind:      model.ChunkKindCodeBlock,
				startLine: int(root.EndPosition().Row) + 1,
				endLine:   int(root.EndPosition().Row) + 1,
				byteStart: lastEnd,
				byteEnd:   len(src),
				text:      trailing,
			}
			drafts = append(drafts, splitOverlong(d, lc.MaxTokens)...)
		}
	}
	return drafts, nil
}

func pythonSignature(node *sitter.Node, src []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	name := string(src[nameNode.StartByte():nameNode.EndByte()])
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return name
	}
	return name + string(src[params.StartByte():params.EndByte()])
}
