package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

// chunkMarkdown splits at headings: each section (heading line through the
// byte before the next heading, whatever that heading's level) becomes one
// DOC_SECTION chunk, with the heading text as summary. Code fences are
// walked as ordinary block children so they are never split internally.
func chunkMarkdown(source string, lc config.LanguageChunkingConfig) ([]draft, error) {
	src := []byte(source)
	md := goldmark.DefaultParser()
	doc := md.Parse(text.NewReader(src))
	lineStarts := computeLineStarts(src)

	type section struct {
		heading   string
		level     int
		byteStart int
	}
	var sections []section

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		start := 0
		if lines.Len() > 0 {
			// Lines() covers only the heading's inline text, after any
			// '#' markers; back up to the start of that line.
			start = lineStarts[lineForByte(lineStarts, lines.At(0).Start)-1]
		}
		sections = append(sections, section{
			heading:   headingText(h, src),
			level:     h.Level,
			byteStart: start,
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}

	if len(sections) == 0 {
		return chunkPlainText(source, lc)
	}

	var drafts []draft
	for i, s := range sections {
		end := len(src)
		if i+1 < len(sections) {
			end = sections[i+1].byteStart
		}
		text := strings.TrimRight(string(src[s.byteStart:end]), "\n")
		if text == "" {
			continue
		}
		startLine := lineForByte(lineStarts, s.byteStart)
		endLine := lineForByte(lineStarts, s.byteStart+len(text))
		d := draft{
			kind:      model.ChunkKindDocSection,
			startLine: startLine,
			endLine:   endLine,
			byteStart: s.byteStart,
			byteEnd:   s.byteStart + len(text),
			text:      text,
			summary:   s.heading,
		}
		drafts = append(drafts, splitOverlong(d, lc.MaxTokens)...)
	}
	return drafts, nil
}

func headingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
	}
	return strings.TrimSpace(b.String())
}

func computeLineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineForByte returns the 1-based line number containing byte offset off.
func lineForByte(lineStarts []int, off int) int {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
