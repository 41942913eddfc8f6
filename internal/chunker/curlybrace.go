package chunker

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

// langSpec names the tree-sitter node kinds that bound a class and a
// method/function for one curly-brace language family.
type langSpec struct {
	language    func() *sitter.Language
	classKinds  map[string]bool
	funcKinds   map[string]bool // top-level functions, outside any class
	methodKinds map[string]bool // member functions inside a class body
}

func javaSpec() langSpec {
	return langSpec{
		language:    func() *sitter.Language { return sitter.NewLanguage(java.Language()) },
		classKinds:  set("class_declaration", "interface_declaration", "enum_declaration"),
		methodKinds: set("method_declaration", "constructor_declaration"),
	}
}

func typescriptSpec() langSpec {
	return langSpec{
		language:    func() *sitter.Language { return sitter.NewLanguage(typescript.LanguageTypescript()) },
		classKinds:  set("class_declaration"),
		funcKinds:   set("function_declaration"),
		methodKinds: set("method_definition"),
	}
}

func cSpec() langSpec {
	return langSpec{
		language:  func() *sitter.Language { return sitter.NewLanguage(c.Language()) },
		funcKinds: set("function_definition"),
	}
}

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func specFor(language string) langSpec {
	switch language {
	case "java":
		return javaSpec()
	case "typescript", "javascript", "tsx", "jsx":
		return typescriptSpec()
	case "c":
		return cSpec()
	default:
		return cSpec()
	}
}

// chunkCurlyBrace returns a strategy bound to one language's node kinds.
// Classes become CODE_CLASS chunks containing the full body unless that
// body exceeds max_tokens, in which case member methods are split out as
// CODE_FUNCTION chunks and the class declaration keeps only its own span.
func chunkCurlyBrace(language string) strategy {
	spec := specFor(language)
	return func(source string, lc config.LanguageChunkingConfig) ([]draft, error) {
		src := []byte(source)

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(spec.language())

		tree := parser.Parse(src, nil)
		if tree == nil {
			return chunkPlainText(source, lc)
		}
		defer tree.Close()

		root := tree.RootNode()
		drafts := walkCurlyBrace(root, src, spec, lc)
		if len(drafts) == 0 {
			return chunkPlainText(source, lc)
		}
		return drafts, nil
	}
}

func walkCurlyBrace(node *sitter.Node, src []byte, spec langSpec, lc config.LanguageChunkingConfig) []draft {
	var drafts []draft
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		kind := child.Kind()

		switch {
		case spec.classKinds[kind]:
			drafts = append(drafts, classDraft(child, src, spec, lc)...)
		case spec.funcKinds[kind]:
			start, end := int(child.StartByte()), int(child.EndByte())
			d := draft{
				kind:      model.ChunkKindCodeFunction,
				startLine: int(child.StartPosition().Row) + 1,
				endLine:   int(child.EndPosition().Row) + 1,
				byteStart: start,
				byteEnd:   end,
				text:      string(src[start:end]),
				summary:   signature(child, src),
			}
			drafts = append(drafts, splitOverlong(d, lc.MaxTokens)...)
		default:
			drafts = append(drafts, walkCurlyBrace(child, src, spec, lc)...)
		}
	}
	return drafts
}

// classDraft emits one CODE_CLASS chunk for the whole class body, unless
// it exceeds max_tokens, in which case methods are split into their own
// CODE_FUNCTION chunks and the class keeps only its declaration span.
func classDraft(node *sitter.Node, src []byte, spec langSpec, lc config.LanguageChunkingConfig) []draft {
	start, end := int(node.StartByte()), int(node.EndByte())
	fullText := string(src[start:end])

	if EstimateTokens(fullText) <= lc.MaxTokens {
		return []draft{{
			kind:      model.ChunkKindCodeClass,
			startLine: int(node.StartPosition().Row) + 1,
			endLine:   int(node.EndPosition().Row) + 1,
			byteStart: start,
			byteEnd:   end,
			text:      fullText,
			summary:   signature(node, src),
		}}
	}

	body := node.ChildByFieldName("body")
	var declEnd int
	if body != nil {
		declEnd = int(body.StartByte())
	} else {
		declEnd = end
	}

	drafts := []draft{{
		kind:      model.ChunkKindCodeClass,
		startLine: int(node.StartPosition().Row) + 1,
		endLine:   int(node.StartPosition().Row) + 1,
		byteStart: start,
		byteEnd:   declEnd,
		text:      string(src[start:declEnd]),
		summary:   signature(node, src),
	}}

	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			member := body.Child(uint(i))
			if !spec.methodKinds[member.Kind()] {
				continue
			}
			mStart, mEnd := int(member.StartByte()), int(member.EndByte())
			d := draft{
				kind:      model.ChunkKindCodeFunction,
				startLine: int(member.StartPosition().Row) + 1,
				endLine:   int(member.EndPosition().Row) + 1,
				byteStart: mStart,
				byteEnd:   mEnd,
				text:      string(src[mStart:mEnd]),
				summary:   signature(member, src),
			}
			drafts = append(drafts, splitOverlong(d, lc.MaxTokens)...)
		}
	}
	return drafts
}

func signature(node *sitter.Node, src []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return string(src[nameNode.StartByte():nameNode.EndByte()])
}
