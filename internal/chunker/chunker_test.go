package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/config"
	"github.com/agentfusion/contextengine/internal/model"
)

func testChunking() config.ChunkingConfig {
	return config.ChunkingConfig{
		Default: config.LanguageChunkingConfig{MaxTokens: 50, OverlapPercent: 0},
		PerLanguage: map[string]config.LanguageChunkingConfig{
			"markdown": {MaxTokens: 50, OverlapPercent: 0},
		},
	}
}

func TestLanguageFromExt_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, "go", LanguageFromExt(".go"))
	assert.Equal(t, "markdown", LanguageFromExt(".MD"))
	assert.Equal(t, "text", LanguageFromExt(".xyz"))
}

func TestEstimateTokens_ApproximatesCharsDividedByFour(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("12345678"))
}

func TestChunk_MarkdownSplitsOnHeadings(t *testing.T) {
	c := New(testChunking())
	source := "# Title\n\nIntro text.\n\n## Section One\n\nBody one.\n\n## Section Two\n\nBody two.\n"

	chunks, err := c.Chunk(1, source, "markdown")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.Equal(t, model.ChunkKindDocSection, ch.Kind)
		assert.Equal(t, i, ch.Ordinal)
	}
	assert.Equal(t, "Title", chunks[0].Summary)
	assert.Equal(t, "Section One", chunks[1].Summary)
	assert.Equal(t, "Section Two", chunks[2].Summary)
}

func TestChunk_MarkdownWithNoHeadingsFallsBackToPlainText(t *testing.T) {
	c := New(testChunking())
	source := "just a paragraph\nof text with no heading\n"

	chunks, err := c.Chunk(1, source, "markdown")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, model.ChunkKindText, chunks[0].Kind)
}

func TestChunk_PlainTextSplitsOnParagraphsWhenOverBudget(t *testing.T) {
	c := New(testChunking())
	para := strings.Repeat("word ", 60) // ~75 tokens, over the 50-token budget alone
	source := para + "\n\n" + para

	chunks, err := c.Chunk(1, source, "text")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.Equal(t, model.ChunkKindText, ch.Kind)
	}
}

func TestChunk_EmptyTextProducesNoChunks(t *testing.T) {
	c := New(testChunking())
	chunks, err := c.Chunk(1, "   \n\n  ", "text")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_OrdinalsAreDenseAndStartAtZero(t *testing.T) {
	c := New(testChunking())
	source := "# A\n\nbody a\n\n# B\n\nbody b\n\n# C\n\nbody c\n"

	chunks, err := c.Chunk(1, source, "markdown")
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestSplitOverlong_BreaksAtLineBoundaryWithinBudget(t *testing.T) {
	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		lines = append(lines, strings.Repeat("x", 20))
	}
	d := draft{kind: model.ChunkKindText, startLine: 1, endLine: 20, text: strings.Join(lines, "\n") + "\n"}

	out := splitOverlong(d, 20)
	require.Greater(t, len(out), 1)
	for _, part := range out {
		assert.LessOrEqual(t, EstimateTokens(part.text), 20+5) // allows the line that tips it over
	}
}

func TestSplitOverlong_ReturnsOriginalWhenUnderBudget(t *testing.T) {
	d := draft{kind: model.ChunkKindText, text: "short text"}
	out := splitOverlong(d, 500)
	require.Len(t, out, 1)
	assert.Equal(t, d.text, out[0].text)
}
