package chunker

import (
	"strings"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

// chunkPlainText splits unrecognized text into paragraph-bounded chunks of
// at most MaxTokens, with OverlapPercent carried from the previous chunk's
// tail into the next one's head.
func chunkPlainText(source string, lc config.LanguageChunkingConfig) ([]draft, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	paragraphs, paraLines := splitParagraphs(source)

	var drafts []draft
	var curParas []string
	var curLines [2]int // [startLine, endLine] of the accumulated run
	byteOffset := 0
	lineCursor := 1

	flush := func() {
		if len(curParas) == 0 {
			return
		}
		txt := strings.Join(curParas, "\n\n")
		drafts = append(drafts, draft{
			kind:      model.ChunkKindText,
			startLine: curLines[0],
			endLine:   curLines[1],
			byteStart: byteOffset,
			byteEnd:   byteOffset + len(txt),
			text:      txt,
		})
		byteOffset += len(txt) + 2
		curParas = nil
	}

	tokens := 0
	for i, p := range paragraphs {
		pTokens := EstimateTokens(p)
		if tokens > 0 && tokens+pTokens > lc.MaxTokens {
			flush()
			tokens = 0
			if lc.OverlapPercent > 0 && len(drafts) > 0 {
				overlap := overlapTail(drafts[len(drafts)-1].text, lc.OverlapPercent)
				if overlap != "" {
					curParas = append(curParas, overlap)
					tokens += EstimateTokens(overlap)
				}
			}
			curLines[0] = paraLines[i][0]
		}
		if len(curParas) == 0 {
			curLines[0] = paraLines[i][0]
		}
		curParas = append(curParas, p)
		curLines[1] = paraLines[i][1]
		tokens += pTokens
		lineCursor = paraLines[i][1]
	}
	_ = lineCursor
	flush()

	var out []draft
	for _, d := range drafts {
		out = append(out, splitOverlong(d, lc.MaxTokens)...)
	}
	return out, nil
}

// splitParagraphs splits on blank lines, returning each paragraph's text
// and its [startLine, endLine] (1-based, inclusive).
func splitParagraphs(source string) ([]string, [][2]int) {
	lines := strings.Split(source, "\n")
	var paras []string
	var spans [][2]int

	var cur []string
	start := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, "\n"))
				spans = append(spans, [2]int{start + 1, i})
				cur = nil
			}
			continue
		}
		if len(cur) == 0 {
			start = i
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, "\n"))
		spans = append(spans, [2]int{start + 1, len(lines)})
	}
	return paras, spans
}

// overlapTail returns the trailing percent of text, truncated to a line
// boundary, used to seed the next chunk for continuity.
func overlapTail(text string, percent int) string {
	if percent <= 0 {
		return ""
	}
	lines := strings.Split(text, "\n")
	keep := len(lines) * percent / 100
	if keep <= 0 {
		keep = 1
	}
	if keep >= len(lines) {
		return ""
	}
	return strings.Join(lines[len(lines)-keep:], "\n")
}
