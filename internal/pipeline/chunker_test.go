package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_SmallTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(500, 100)
	pages := []Page{{Number: 1, Text: "A short page about mitochondria."}}

	chunks := chunker.ChunkPages(pages)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, "A short page about mitochondria.", chunks[0].Text)
}

func TestChunker_RespectsSizeLimit(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(100, 20)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("the cell membrane regulates transport ")
	}
	pages := []Page{{Number: 1, Text: sb.String()}}

	chunks := chunker.ChunkPages(pages)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 100, "chunk %d over size", chunk.Index)
		assert.NotEmpty(t, chunk.Text)
	}
}

func TestChunker_PrefersParagraphBoundaries(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(60, 0)
	text := "First paragraph about osmosis.\n\nSecond paragraph about diffusion across membranes."

	chunks := chunker.ChunkPages([]Page{{Number: 1, Text: text}})

	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph about osmosis.", chunks[0].Text)
	assert.Equal(t, "Second paragraph about diffusion across membranes.", chunks[1].Text)
}

func TestChunker_OverlapCarriesContext(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(40, 15)
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"

	chunks := chunker.ChunkPages([]Page{{Number: 1, Text: text}})
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with words from its predecessor.
	for i := 1; i < len(chunks); i++ {
		firstWord := strings.Fields(chunks[i].Text)[0]
		assert.Contains(t, chunks[i-1].Text, firstWord,
			"chunk %d should overlap with chunk %d", i, i-1)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(80, 20)
	text := "Cells divide by mitosis.\nThe cycle has phases.\n\nInterphase is the longest phase of the cycle in most cells. Prophase follows."
	pages := []Page{{Number: 1, Text: text}, {Number: 2, Text: text}}

	first := chunker.ChunkPages(pages)
	second := chunker.ChunkPages(pages)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestChunker_GlobalIndexAcrossPages(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(500, 100)
	pages := []Page{
		{Number: 1, Text: "Page one content."},
		{Number: 3, Text: "Page three content."},
	}

	chunks := chunker.ChunkPages(pages)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 3, chunks[1].PageNumber)
}

func TestChunker_UnbrokenTextHardCut(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(50, 10)
	text := strings.Repeat("x", 180)

	chunks := chunker.ChunkPages([]Page{{Number: 1, Text: text}})
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 50)
	}
}

func TestChunker_MultibyteHardCut(t *testing.T) {
	t.Parallel()

	// CJK prose has no spaces for the word separator, so everything goes
	// through the hard cut. No cut may land inside a rune.
	chunker := NewChunker(10, 2)
	text := strings.Repeat("細胞膜", 17)

	chunks := chunker.ChunkPages([]Page{{Number: 1, Text: text}})
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Text), "chunk %d is cut mid-rune: %q", chunk.Index, chunk.Text)
		assert.Equal(t, utf8.RuneCountInString(chunk.Text), chunk.Length)
	}
}

func TestChunker_RuneWiderThanSize(t *testing.T) {
	t.Parallel()

	// A chunk size below one rune's encoding still emits whole runes.
	chunks := NewChunker(1, 0).ChunkPages([]Page{{Number: 1, Text: "語語"}})

	require.Len(t, chunks, 2)
	assert.Equal(t, "語", chunks[0].Text)
	assert.Equal(t, "語", chunks[1].Text)
	assert.Equal(t, 1, chunks[0].Length)
}

func TestChunker_LengthCountsCharacters(t *testing.T) {
	t.Parallel()

	chunks := NewChunker(500, 100).ChunkPages([]Page{{Number: 1, Text: "Die Zellmembran ist eine Doppelschicht aus Lipiden — größtenteils."}})

	require.Len(t, chunks, 1)
	assert.Equal(t, utf8.RuneCountInString(chunks[0].Text), chunks[0].Length)
	assert.Less(t, chunks[0].Length, len(chunks[0].Text), "multibyte text has fewer characters than bytes")
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(100, 100)
	assert.Equal(t, 50, chunker.overlap)

	chunker = NewChunker(100, -5)
	assert.Equal(t, 0, chunker.overlap)
}
